package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmo-im/wis2node/errors"
)

func TestMemBucket_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewMemBucket()

	require.NoError(t, b.Put(ctx, "ita/roma/data/core/weather/obs.bufr4", []byte("payload")))

	data, err := b.Get(ctx, "ita/roma/data/core/weather/obs.bufr4")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	_, err = b.Get(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	keys, err := b.List(ctx, "ita/")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
	assert.Equal(t, 1, b.Len())
}

func TestStore_IsArchived(t *testing.T) {
	s := NewStoreWithBuckets(NewMemBucket(), NewMemBucket(), "wis2node-archive")

	assert.True(t, s.IsArchived("wis2node-archive/ita/roma/obs.bufr4"))
	assert.True(t, s.IsArchived("/wis2node-archive/ita/roma/obs.bufr4"))
	assert.False(t, s.IsArchived("wis2node-incoming/ita/roma/obs.bufr4"))

	noArchive := NewStoreWithBuckets(NewMemBucket(), NewMemBucket(), "")
	assert.False(t, noArchive.IsArchived("wis2node-archive/obs.bufr4"))
}
