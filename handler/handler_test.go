package handler

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmo-im/wis2node/errors"
	"github.com/wmo-im/wis2node/mapping"
	"github.com/wmo-im/wis2node/plugin"
	"github.com/wmo-im/wis2node/topics"
)

// recordingPlugin captures the jobs it is asked to transform
type recordingPlugin struct {
	mu    sync.Mutex
	jobs  []plugin.Job
	fail  error
	files []string
}

func (p *recordingPlugin) Transform(_ context.Context, job plugin.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.jobs = append(p.jobs, job)
	p.files = append(p.files, job.Key)
	return nil
}

func (p *recordingPlugin) Files() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.files
}

func testRegistry(t *testing.T, rec *recordingPlugin) *plugin.Registry {
	t.Helper()
	r := plugin.NewRegistry()
	require.NoError(t, r.Register("recorder", func(plugin.Deps) plugin.Plugin {
		return rec
	}))
	return r
}

func testTopic(t *testing.T) topics.Hierarchy {
	t.Helper()
	th, err := topics.New("ita.roma.data.core.weather.surface-based-observations.synop")
	require.NoError(t, err)
	return th
}

func TestHandler_RunsChain(t *testing.T) {
	rec := &recordingPlugin{}
	def := mapping.Definition{Plugins: map[string][]mapping.PluginDef{
		"bufr4": {{Name: "recorder", Notify: true}},
	}}

	h := New("ita/roma/data/core/synop_20260828T0000.bufr4", testTopic(t), def,
		testRegistry(t, rec), plugin.Deps{Logger: slog.Default()})

	require.NoError(t, h.Handle(context.Background()))
	require.Len(t, rec.jobs, 1)
	assert.Equal(t, "ita/roma/data/core/synop_20260828T0000.bufr4", rec.jobs[0].Key)
	assert.True(t, rec.jobs[0].Def.Notify)
	assert.Len(t, h.Plugins(), 1)
}

func TestHandler_UnknownFileType(t *testing.T) {
	rec := &recordingPlugin{}
	def := mapping.Definition{Plugins: map[string][]mapping.PluginDef{
		"bufr4": {{Name: "recorder"}},
	}}

	h := New("ita/roma/data/core/report.txt", testTopic(t), def,
		testRegistry(t, rec), plugin.Deps{})

	err := h.Handle(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsExpected(err))
	assert.ErrorIs(t, err, errors.ErrNotHandled)
	assert.Empty(t, rec.jobs)
}

func TestHandler_NoExtension(t *testing.T) {
	h := New("ita/roma/data/core/README", testTopic(t), mapping.Definition{},
		testRegistry(t, &recordingPlugin{}), plugin.Deps{})

	err := h.Handle(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestHandler_FilePatternSkips(t *testing.T) {
	rec := &recordingPlugin{}
	def := mapping.Definition{Plugins: map[string][]mapping.PluginDef{
		"bufr4": {
			{Name: "recorder", FilePattern: `^synop_.*$`},
			{Name: "recorder", FilePattern: `^temp_.*$`},
		},
	}}

	h := New("ita/roma/data/core/synop_20260828T0000.bufr4", testTopic(t), def,
		testRegistry(t, rec), plugin.Deps{})

	require.NoError(t, h.Handle(context.Background()))
	assert.Len(t, rec.jobs, 1, "only the matching pattern should run")
}

func TestHandler_AllPatternsSkip(t *testing.T) {
	rec := &recordingPlugin{}
	def := mapping.Definition{Plugins: map[string][]mapping.PluginDef{
		"bufr4": {{Name: "recorder", FilePattern: `^temp_.*$`}},
	}}

	h := New("ita/roma/data/core/synop_20260828T0000.bufr4", testTopic(t), def,
		testRegistry(t, rec), plugin.Deps{})

	err := h.Handle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotHandled)
}

func TestHandler_PluginFailurePropagates(t *testing.T) {
	rec := &recordingPlugin{fail: errors.WrapInvalid(errors.ErrInvalidData,
		"Recorder", "Transform", "decode payload")}
	def := mapping.Definition{Plugins: map[string][]mapping.PluginDef{
		"bufr4": {{Name: "recorder"}},
	}}

	h := New("ita/roma/data/core/synop.bufr4", testTopic(t), def,
		testRegistry(t, rec), plugin.Deps{})

	err := h.Handle(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Empty(t, h.Plugins())
}

func TestHandler_UnknownPlugin(t *testing.T) {
	def := mapping.Definition{Plugins: map[string][]mapping.PluginDef{
		"bufr4": {{Name: "no-such-plugin"}},
	}}

	h := New("ita/roma/data/core/synop.bufr4", testTopic(t), def,
		plugin.NewRegistry(), plugin.Deps{})

	err := h.Handle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownPlugin)
}

func TestFileTypeOf(t *testing.T) {
	assert.Equal(t, "bufr4", fileTypeOf("a/b/synop.bufr4"))
	assert.Equal(t, "bufr4", fileTypeOf("a/b/SYNOP.BUFR4"))
	assert.Equal(t, "json", fileTypeOf("meta.json"))
	assert.Equal(t, "", fileTypeOf("a/b/README"))
	assert.Equal(t, "", fileTypeOf("a/b/trailing."))
}
