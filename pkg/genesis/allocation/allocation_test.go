package allocation

import (
	"encoding/hex"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/address"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/config"
)

func hashOf(t *testing.T, s string) address.Hash {
	t.Helper()
	raw, err := hex.DecodeString(s)
	require.NoError(t, err)
	h, ok := address.HashFromSlice(raw)
	require.True(t, ok)
	return h
}

func seqHash(b byte) address.Hash {
	var h address.Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func TestParseCKBAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Amount
		hasError bool
	}{
		{"raw amount", "1000000", MillionCKB, false},
		{"zero", "0", 0, false},
		{"max whole amount", "184467440737", Amount(184467440737 * config.ShannonsPerCKB), false},
		{"overflow", "184467440738", 0, true},
		{"empty string", "", 0, true},
		{"invalid format", "abc", 0, true},
		{"decimal", "1.5", 0, true},
		{"negative amount", "-100", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseCKBAmount(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestAmountArithmetic(t *testing.T) {
	t.Run("add", func(t *testing.T) {
		sum, err := OneCKB.Add(ThousandCKB)
		require.NoError(t, err)
		assert.Equal(t, uint64(1001), sum.CKB())

		_, err = Amount(math.MaxUint64).Add(1)
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("sub", func(t *testing.T) {
		diff, err := ThousandCKB.Sub(OneCKB)
		require.NoError(t, err)
		assert.Equal(t, uint64(999), diff.CKB())

		_, err = OneCKB.Sub(ThousandCKB)
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("sum", func(t *testing.T) {
		total, err := Sum(OneCKB, OneCKB, 5)
		require.NoError(t, err)
		assert.Equal(t, uint64(2*config.ShannonsPerCKB+5), total.Shannons())

		_, err = Sum(Amount(math.MaxUint64), 1)
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("format", func(t *testing.T) {
		assert.Equal(t, "1000 CKB", ThousandCKB.String())
		assert.Equal(t, "1.00000001 CKB", (OneCKB + 1).String())
		assert.Equal(t, "0.50000000 CKB", (OneCKB / 2).String())
	})
}

func TestOwnerOrdering(t *testing.T) {
	low, high := seqHash(0x01), seqHash(0x02)

	multi := func(hashes []address.Hash, n, threshold uint8, since uint64) Owner {
		o, err := NewMulti(hashes, n, threshold, since)
		require.NoError(t, err)
		return o
	}

	t.Run("single before multi", func(t *testing.T) {
		single := NewSingle(high)
		m := multi([]address.Hash{low}, 0, 1, 0)
		assert.Equal(t, -1, single.Compare(m))
		assert.Equal(t, 1, m.Compare(single))
	})

	t.Run("singles by hash", func(t *testing.T) {
		assert.Equal(t, -1, NewSingle(low).Compare(NewSingle(high)))
		assert.Equal(t, 0, NewSingle(low).Compare(NewSingle(low)))
	})

	t.Run("multis by n, threshold, hashes, since", func(t *testing.T) {
		base := multi([]address.Hash{low, high}, 0, 1, 5)
		ordered := []Owner{
			base,
			multi([]address.Hash{low, high}, 0, 1, 6),
			multi([]address.Hash{high, low}, 0, 1, 0),
			multi([]address.Hash{low, high}, 0, 2, 0),
			multi([]address.Hash{low, high}, 1, 1, 0),
		}
		for i := 0; i+1 < len(ordered); i++ {
			assert.Equal(t, -1, ordered[i].Compare(ordered[i+1]), "%s < %s", ordered[i], ordered[i+1])
			assert.Equal(t, 1, ordered[i+1].Compare(ordered[i]))
		}
		assert.True(t, base.Equal(multi([]address.Hash{low, high}, 0, 1, 5)))
	})

	t.Run("shorter hash list first", func(t *testing.T) {
		short := multi([]address.Hash{low}, 0, 1, 0)
		long := multi([]address.Hash{low, high}, 0, 1, 0)
		assert.Equal(t, -1, short.Compare(long))
	})

	t.Run("zero value is the zero hash", func(t *testing.T) {
		var zero Owner
		assert.True(t, zero.Equal(NewSingle(address.Hash{})))
		assert.Equal(t, -1, zero.Compare(NewSingle(low)))
		assert.Equal(t, NewSingle(address.Hash{}).key(), zero.key())
		assert.Equal(t, "0x"+strings.Repeat("00", address.HashSize), zero.LockArgs())
		assert.NotPanics(t, func() { _ = zero.String() })
	})
}

func TestNewMulti(t *testing.T) {
	hashes := []address.Hash{seqHash(1), seqHash(2)}

	tests := []struct {
		name      string
		n         uint8
		threshold uint8
		valid     bool
	}{
		{"1 of 2", 0, 1, true},
		{"2 of 2 first 2", 2, 2, true},
		{"threshold above key count", 0, 3, false},
		{"first n above threshold", 2, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMulti(hashes, tt.n, tt.threshold, 0)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidMultiSig)
			}
		})
	}
}

func TestLockArgs(t *testing.T) {
	foundation := hashOf(t, "4146af6d67742cca87a9b0d1d3eb070e7a544e1c")
	reserve := hashOf(t, "4d6d7c6d208c2e4e42348235afcf5f4d8e312fe7")

	t.Run("single", func(t *testing.T) {
		lock := NewSingle(foundation).Lock()
		assert.Equal(t, config.SighashCodeHash, lock.CodeHash)
		assert.Equal(t, "0x4146af6d67742cca87a9b0d1d3eb070e7a544e1c", lock.Args)
		assert.Equal(t, "type", lock.HashType)
	})

	t.Run("time locked", func(t *testing.T) {
		owner, err := NewTimeLocked(foundation, "2020-07-01", SinceParams{Epoch: 90, PlannedEpoch: 89})
		require.NoError(t, err)
		assert.Equal(t, uint64(0x2007_0803_8400_0555), owner.Since())

		lock := owner.Lock()
		assert.Equal(t, config.MultisigCodeHash, lock.CodeHash)
		assert.Equal(t, "0x1f9f24ead7fce258ce9112b714b739bf9c492d395505008403080720", lock.Args)
	})

	t.Run("2 of 2", func(t *testing.T) {
		owner, err := NewMulti([]address.Hash{foundation, reserve}, 1, 2, 0)
		require.NoError(t, err)
		assert.Equal(t, "0xbf7a982bbf1f3fc224869c8f826a721d19aa438f0000000000000000", owner.LockArgs())
	})
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		name     string
		date     string
		params   SinceParams
		expected uint64
		hasError bool
	}{
		{"after planned launch", "2020-07-01", SinceParams{Epoch: 90, PlannedEpoch: 89}, 0x2007_0803_8400_0555, false},
		{"unpadded date", "2020-7-1", SinceParams{Epoch: 90, PlannedEpoch: 89}, 0x2007_0803_8400_0555, false},
		{"already unlocked", "2020-07-01", SinceParams{Epoch: 2000, PlannedEpoch: 89}, 0x2007_0800_0000_0000, false},
		{"before reference start", "2019-11-16", SinceParams{Epoch: 1}, 0, true},
		{"invalid day", "2020-02-30", SinceParams{}, 0, true},
		{"redundant field", "2020-07-01-01", SinceParams{}, 0, true},
		{"not a date", "soon", SinceParams{}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			since, err := ParseSince(tt.date, tt.params)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, since)
		})
	}
}

func TestBuilder(t *testing.T) {
	a, b := NewSingle(seqHash(9)), NewSingle(seqHash(3))
	locked, err := NewMulti([]address.Hash{seqHash(1)}, 0, 1, 77)
	require.NoError(t, err)
	sameLocked, err := NewMulti([]address.Hash{seqHash(1)}, 0, 1, 77)
	require.NoError(t, err)

	input := []Asset{
		a.With(10 * OneCKB),
		locked.With(OneCKB),
		b.With(5 * OneCKB),
		a.With(OneCKB),
		sameLocked.With(2),
	}

	builder := NewBuilder()
	require.NoError(t, builder.AddAll(input))

	assert.Equal(t, 3, builder.Len())
	assert.Equal(t, 17*OneCKB+2, builder.Total())

	assets := builder.Assets()
	require.Len(t, assets, 3)
	assert.True(t, assets[0].Owner.Equal(b))
	assert.Equal(t, 5*OneCKB, assets[0].Amount)
	assert.True(t, assets[1].Owner.Equal(a))
	assert.Equal(t, 11*OneCKB, assets[1].Amount)
	assert.True(t, assets[2].Owner.Equal(locked))
	assert.Equal(t, OneCKB+2, assets[2].Amount)

	t.Run("merging merged output is idempotent", func(t *testing.T) {
		again := NewBuilder()
		require.NoError(t, again.AddAll(assets))
		assert.Equal(t, assets, again.Assets())
		assert.Equal(t, builder.Total(), again.Total())
	})

	t.Run("overflow", func(t *testing.T) {
		over := NewBuilder()
		require.NoError(t, over.Add(a.With(Amount(math.MaxUint64))))
		assert.ErrorIs(t, over.Add(b.With(1)), ErrOverflow)
	})

	t.Run("cells", func(t *testing.T) {
		cell := assets[1].Cell()
		assert.Equal(t, uint64(11*config.ShannonsPerCKB), cell.Capacity)
		assert.Equal(t, a.LockArgs(), cell.Lock.Args)
	})
}
