package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		dirPath string
		dotPath string
		wantErr bool
	}{
		{
			name:    "directory form",
			in:      "ita/roma/data/core/weather/surface-based-observations/synop",
			dirPath: "ita/roma/data/core/weather/surface-based-observations/synop",
			dotPath: "ita.roma.data.core.weather.surface-based-observations.synop",
		},
		{
			name:    "dotted form",
			in:      "ita.roma.data.core.weather.surface-based-observations.synop",
			dirPath: "ita/roma/data/core/weather/surface-based-observations/synop",
			dotPath: "ita.roma.data.core.weather.surface-based-observations.synop",
		},
		{
			name:    "leading and trailing separators trimmed",
			in:      "/foo/bar/",
			dirPath: "foo/bar",
			dotPath: "foo.bar",
		},
		{
			name:    "empty",
			in:      "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := New(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dirPath, h.DirPath)
			assert.Equal(t, tt.dotPath, h.DotPath)
			assert.Equal(t, tt.dotPath, h.String())
		})
	}
}

func TestFromObjectKey(t *testing.T) {
	h, err := FromObjectKey("wis2node-incoming/ita/roma/data/core/weather/synop_202608280000.bufr4")
	require.NoError(t, err)
	assert.Equal(t, "ita.roma.data.core.weather", h.DotPath)

	// no directory component at all
	_, err = FromObjectKey("orphan.bufr4")
	assert.Error(t, err)

	// file directly below the channel directory has no hierarchy
	_, err = FromObjectKey("wis2node-incoming/orphan.bufr4")
	assert.Error(t, err)
}
