package address

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Human-readable parts
const (
	MainnetHRP = "ckb"
	TestnetHRP = "ckt"
)

// HashSize is the size of a blake160 lock hash
const HashSize = 20

const (
	shortFormat    = 0x01
	sighashCodeIdx = 0x00
)

// deprecatedPrefix is the payload prefix of the pre-launch testnet format
var deprecatedPrefix = []byte{shortFormat, 'P', '2', 'P', 'H'}

// ErrUnsupportedAddress is returned for well-formed addresses that do not carry a sighash lock
var ErrUnsupportedAddress = errors.New("unsupported address")

// Hash is a blake160 public key hash
type Hash [HashSize]byte

// HashFromSlice returns false unless b is exactly HashSize bytes
func HashFromSlice(b []byte) (Hash, bool) {
	var h Hash
	if len(b) != HashSize {
		return h, false
	}
	copy(h[:], b)
	return h, true
}

// Hex returns the 0x-prefixed hex encoding
func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) String() string {
	return h.Hex()
}

// Converter handles address conversion for a specific network
type Converter struct {
	hrp string // Human-readable part
}

// NewConverter creates a new address converter for a specific network
func NewConverter(hrp string) *Converter {
	return &Converter{hrp: hrp}
}

// Mainnet and Testnet converters
var (
	Mainnet = NewConverter(MainnetHRP)
	Testnet = NewConverter(TestnetHRP)
)

// HRP returns the human-readable part
func (c *Converter) HRP() string {
	return c.hrp
}

// ParseShort extracts the lock hash from a short sighash address.
// ok is false when the string is not valid bech32 at all.
func (c *Converter) ParseShort(addr string) (hash Hash, ok bool, err error) {
	payload, ok, err := c.decode(addr)
	if !ok || err != nil {
		return hash, ok, err
	}
	if len(payload) == 0 {
		return hash, false, nil
	}
	if len(payload) < 2 || payload[0] != shortFormat || payload[1] != sighashCodeIdx {
		return hash, true, fmt.Errorf("%w: %s is not a short sighash address", ErrUnsupportedAddress, addr)
	}
	hash, valid := HashFromSlice(payload[2:])
	if !valid {
		return hash, true, fmt.Errorf("%w: %s carries %d hash bytes", ErrUnsupportedAddress, addr, len(payload)-2)
	}
	return hash, true, nil
}

// ParseDeprecated extracts the lock hash from a pre-launch P2PH address.
// ok is false when the string does not decode to a P2PH payload.
func (c *Converter) ParseDeprecated(addr string) (hash Hash, ok bool, err error) {
	payload, ok, err := c.decode(addr)
	if !ok || err != nil {
		return hash, ok, err
	}
	if len(payload) != len(deprecatedPrefix)+HashSize {
		return hash, false, nil
	}
	if !bytes.Equal(payload[:len(deprecatedPrefix)], deprecatedPrefix) {
		return hash, true, fmt.Errorf("%w: %s is not a P2PH address", ErrUnsupportedAddress, addr)
	}
	copy(hash[:], payload[len(deprecatedPrefix):])
	return hash, true, nil
}

// FormatShort encodes a lock hash as a short sighash address
func (c *Converter) FormatShort(hash Hash) (string, error) {
	return c.encode(append([]byte{shortFormat, sighashCodeIdx}, hash[:]...))
}

// FormatDeprecated encodes a lock hash as a pre-launch P2PH address
func (c *Converter) FormatDeprecated(hash Hash) (string, error) {
	return c.encode(append(append([]byte(nil), deprecatedPrefix...), hash[:]...))
}

// decode returns the 8-bit payload. A string that is not valid bech32 is
// reported with ok false; a valid string for another network is an error.
func (c *Converter) decode(addr string) ([]byte, bool, error) {
	hrp, data, err := bech32.DecodeNoLimit(addr)
	if err != nil {
		return nil, false, nil
	}
	if hrp != c.hrp {
		return nil, true, fmt.Errorf("address %s has prefix %q, want %q", addr, hrp, c.hrp)
	}
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, false, nil
	}
	return payload, true, nil
}

func (c *Converter) encode(payload []byte) (string, error) {
	data, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("failed to convert payload: %w", err)
	}
	addr, err := bech32.Encode(c.hrp, data)
	if err != nil {
		return "", fmt.Errorf("failed to format address: %w", err)
	}
	return addr, nil
}
