package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockRecordEncoding(t *testing.T) {
	rec := BlockRecord{Identity: []byte{1, 2, 3}, Reward: 0x0102030405060708}
	encoded := rec.Encode()
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 1, 2, 3}, encoded)

	decoded, err := DecodeBlockRecord(encoded)
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)

	empty, err := DecodeBlockRecord(BlockRecord{Reward: 9}.Encode())
	require.NoError(t, err)
	assert.Equal(t, uint64(9), empty.Reward)
	assert.Empty(t, empty.Identity)

	_, err = DecodeBlockRecord([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestRecordStores(t *testing.T) {
	for _, backend := range []string{BackendPebble, BackendLevelDB} {
		t.Run(backend, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cache")
			store, err := OpenRecordStore(backend, path)
			require.NoError(t, err)

			_, ok, err := store.GetRecord(7)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.PutRecord(7, BlockRecord{Identity: []byte("miner-a"), Reward: 100}))
			require.NoError(t, store.PutRecord(8, BlockRecord{Identity: []byte("miner-b"), Reward: 200}))
			require.NoError(t, store.PutRecord(7, BlockRecord{Identity: []byte("miner-a"), Reward: 101}))

			rec, ok, err := store.GetRecord(7)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, BlockRecord{Identity: []byte("miner-a"), Reward: 101}, rec)

			count, err := store.RecordCount()
			require.NoError(t, err)
			assert.Equal(t, 2, count)

			var heights []uint64
			var rewards uint64
			require.NoError(t, store.ForEachRecord(func(height uint64, rec BlockRecord) error {
				heights = append(heights, height)
				rewards += rec.Reward
				return nil
			}))
			assert.Equal(t, []uint64{7, 8}, heights)
			assert.Equal(t, uint64(301), rewards)
			require.NoError(t, store.Close())

			reopened, err := OpenRecordStore(backend, path)
			require.NoError(t, err)
			defer reopened.Close()

			rec, ok, err = reopened.GetRecord(8)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, uint64(200), rec.Reward)
		})
	}

	t.Run("unknown backend", func(t *testing.T) {
		_, err := OpenRecordStore("bolt", t.TempDir())
		assert.Error(t, err)
	})
}

func TestKeyHelpers(t *testing.T) {
	key := recordKey(256)
	assert.Equal(t, []byte("blk/\x00\x00\x00\x00\x00\x00\x01\x00"), key)
	height, ok := heightOf(key)
	assert.True(t, ok)
	assert.Equal(t, uint64(256), height)
	_, ok = heightOf([]byte("blk/\x01"))
	assert.False(t, ok)
	_, ok = heightOf([]byte("hdr/\x00\x00\x00\x00\x00\x00\x01\x00"))
	assert.False(t, ok)

	assert.Equal(t, []byte("blk0"), prefixEnd([]byte("blk/")))
	assert.Equal(t, []byte{0x02}, prefixEnd([]byte{0x01, 0xff}))
	assert.Nil(t, prefixEnd([]byte{0xff, 0xff}))
}
