package allocation

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/minio/blake2b-simd"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/address"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/config"
)

// ErrInvalidMultiSig is returned for a multisig owner whose threshold and
// first-n requirement cannot be met by its key hashes
var ErrInvalidMultiSig = errors.New("invalid multisig owner")

var ckbHashPersonal = []byte("ckb-default-hash")

// Owner is either a single key hash or a multisig configuration with a lock
// time. The zero value is the single owner of the zero hash.
type Owner struct {
	multi         bool
	hashes        []address.Hash
	requireFirstN uint8
	threshold     uint8
	since         uint64
}

// NewSingle creates an owner controlled by a single key hash
func NewSingle(hash address.Hash) Owner {
	return Owner{hashes: []address.Hash{hash}}
}

// NewMulti creates a multisig owner. Requires len(hashes) >= threshold >= requireFirstN.
func NewMulti(hashes []address.Hash, requireFirstN, threshold uint8, since uint64) (Owner, error) {
	if len(hashes) > 255 || len(hashes) < int(threshold) || threshold < requireFirstN {
		return Owner{}, fmt.Errorf("%w: %d hashes, threshold %d, first %d",
			ErrInvalidMultiSig, len(hashes), threshold, requireFirstN)
	}
	return Owner{
		multi:         true,
		hashes:        slices.Clone(hashes),
		requireFirstN: requireFirstN,
		threshold:     threshold,
		since:         since,
	}, nil
}

// NewTimeLocked creates a 1-of-1 multisig owner that unlocks at the given date
func NewTimeLocked(hash address.Hash, date string, params SinceParams) (Owner, error) {
	since, err := ParseSince(date, params)
	if err != nil {
		return Owner{}, err
	}
	return NewMulti([]address.Hash{hash}, 0, 1, since)
}

// single returns the hash of a single owner
func (o Owner) single() address.Hash {
	if len(o.hashes) == 0 {
		return address.Hash{}
	}
	return o.hashes[0]
}

// IsMulti reports whether the owner is a multisig
func (o Owner) IsMulti() bool {
	return o.multi
}

// Hashes returns the key hashes
func (o Owner) Hashes() []address.Hash {
	return slices.Clone(o.hashes)
}

// RequireFirstN returns the number of leading hashes that must sign
func (o Owner) RequireFirstN() uint8 {
	return o.requireFirstN
}

// Threshold returns the number of signatures required
func (o Owner) Threshold() uint8 {
	return o.threshold
}

// Since returns the lock time of a multisig owner
func (o Owner) Since() uint64 {
	return o.since
}

// Compare orders singles before multisigs. Singles compare by hash; multisigs
// by first-n, threshold, hashes and lock time.
func (o Owner) Compare(other Owner) int {
	switch {
	case !o.multi && other.multi:
		return -1
	case o.multi && !other.multi:
		return 1
	case !o.multi:
		a, b := o.single(), other.single()
		return bytes.Compare(a[:], b[:])
	}
	if c := cmp.Compare(o.requireFirstN, other.requireFirstN); c != 0 {
		return c
	}
	if c := cmp.Compare(o.threshold, other.threshold); c != 0 {
		return c
	}
	if c := slices.CompareFunc(o.hashes, other.hashes, func(a, b address.Hash) int {
		return bytes.Compare(a[:], b[:])
	}); c != 0 {
		return c
	}
	return cmp.Compare(o.since, other.since)
}

// Equal reports structural equality
func (o Owner) Equal(other Owner) bool {
	return o.Compare(other) == 0
}

// key is a unique encoding of the owner used for grouping
func (o Owner) key() string {
	if !o.multi {
		h := o.single()
		return string(h[:])
	}
	var b strings.Builder
	b.WriteByte(0xff)
	b.WriteByte(o.requireFirstN)
	b.WriteByte(o.threshold)
	b.WriteByte(byte(len(o.hashes)))
	for _, h := range o.hashes {
		b.Write(h[:])
	}
	var since [8]byte
	binary.BigEndian.PutUint64(since[:], o.since)
	b.Write(since[:])
	return b.String()
}

// LockArgs returns the 0x-prefixed lock args. A single owner uses its hash;
// a multisig uses blake160 of the multisig script followed by the little
// endian lock time.
func (o Owner) LockArgs() string {
	if !o.multi {
		return o.single().Hex()
	}

	script := make([]byte, 0, 4+len(o.hashes)*address.HashSize)
	script = append(script, 0, o.requireFirstN, o.threshold, byte(len(o.hashes)))
	for _, h := range o.hashes {
		script = append(script, h[:]...)
	}

	hasher, err := blake2b.New(&blake2b.Config{Size: 32, Person: ckbHashPersonal})
	if err != nil {
		// the config is static and valid
		panic(err)
	}
	hasher.Write(script)
	digest := hasher.Sum(nil)

	args := make([]byte, 0, address.HashSize+8)
	args = append(args, digest[:address.HashSize]...)
	args = binary.LittleEndian.AppendUint64(args, o.since)
	return "0x" + hex.EncodeToString(args)
}

// Lock returns the lock script for the owner
func (o Owner) Lock() Lock {
	codeHash := config.SighashCodeHash
	if o.multi {
		codeHash = config.MultisigCodeHash
	}
	return Lock{CodeHash: codeHash, Args: o.LockArgs(), HashType: config.HashTypeType}
}

// With attaches an amount to the owner
func (o Owner) With(amount Amount) Asset {
	return Asset{Owner: o, Amount: amount}
}

func (o Owner) String() string {
	if !o.multi {
		return fmt.Sprintf("Single(%s)", o.single().Hex())
	}
	hashes := make([]string, len(o.hashes))
	for i, h := range o.hashes {
		hashes[i] = hex.EncodeToString(h[:])
	}
	return fmt.Sprintf("Multi{n: %d, t: %d, s: %d, hashes: [%s]}",
		o.requireFirstN, o.threshold, o.since, strings.Join(hashes, ", "))
}
