package pubsub

import (
	"bytes"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{
		Identifier: "synop_202608280000",
		Topic:      "ita.roma.data.core.weather",
		Key:        "ita/roma/data/core/weather/synop_202608280000.bufr4",
		Data:       []byte("observation bytes"),
		Datetime:   time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
		PublicURL:  "http://wis2node.example.org/data/",
	}
}

func TestNew(t *testing.T) {
	msg := New(testParams())

	_, err := uuid.Parse(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "Feature", msg.Type)
	assert.Equal(t, "v04", msg.Version)
	assert.Equal(t, "ita.roma.data.core.weather/synop_202608280000", msg.Properties.DataID)
	assert.Equal(t, "2026-08-28T00:00:00Z", msg.Properties.Datetime)
	assert.NotEmpty(t, msg.Properties.Pubtime)

	sum := sha512.Sum512([]byte("observation bytes"))
	assert.Equal(t, "sha512", msg.Properties.Integrity.Method)
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), msg.Properties.Integrity.Value)

	require.Len(t, msg.Links, 1)
	assert.Equal(t, "canonical", msg.Links[0].Rel)
	assert.Equal(t, "application/x-bufr", msg.Links[0].Type)
	assert.Equal(t,
		"http://wis2node.example.org/data/ita/roma/data/core/weather/synop_202608280000.bufr4",
		msg.Links[0].Href)
	assert.Equal(t, len("observation bytes"), msg.Links[0].Length)
}

func TestNew_InlineContent(t *testing.T) {
	p := testParams()
	msg := New(p)

	// small payload is inlined
	require.NotNil(t, msg.Properties.Content)
	assert.Equal(t, "base64", msg.Properties.Content.Encoding)
	decoded, err := base64.StdEncoding.DecodeString(msg.Properties.Content.Value)
	require.NoError(t, err)
	assert.Equal(t, p.Data, decoded)

	// large payload is not
	p.Data = bytes.Repeat([]byte("x"), inlineContentLimit)
	msg = New(p)
	assert.Nil(t, msg.Properties.Content)
}

func TestNew_WIGOSLink(t *testing.T) {
	p := testParams()
	p.WIGOSID = "0-20000-0-16242"
	msg := New(p)

	assert.Equal(t, "0-20000-0-16242", msg.Properties.WIGOSID)
	require.Len(t, msg.Links, 2)
	assert.Equal(t, "via", msg.Links[1].Rel)
	assert.Contains(t, msg.Links[1].Href, "0-20000-0-16242")
}

func TestMediaType(t *testing.T) {
	tests := []struct {
		topic string
		key   string
		want  string
	}{
		{"ita.roma.data.core.weather", "a/b.bufr4", "application/x-bufr"},
		{"ita.roma.data.core.weather", "a/b.grib2", "application/x-grib2"},
		{"ita.roma.data.core.weather", "a/b.geojson", "application/json"},
		{"ita.roma.data.core.weather", "a/b.unknown", "application/octet-stream"},
		{"ita.roma.data.core.weather", "noext", "application/octet-stream"},
		{"ita.roma.metadata.core", "a/b.json", "application/geo+json"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MediaType(tt.topic, tt.key), tt.key)
	}
}

func TestMarshal(t *testing.T) {
	data, err := New(testParams()).Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Feature", decoded["type"])
}
