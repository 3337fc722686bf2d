package genesis

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/zeebo/blake3"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/chain"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/allocation"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/config"
)

const (
	messagePrefix = "lina "
	zeroHash      = "0x0000000000000000000000000000000000000000000000000000000000000000"
)

// Spec is the rendered chain spec
type Spec struct {
	Name    string        `toml:"name"`
	Genesis GenesisConfig `toml:"genesis"`
	Params  Params        `toml:"params"`
}

// GenesisConfig is the genesis block section
type GenesisConfig struct {
	Version       uint32            `toml:"version"`
	ParentHash    string            `toml:"parent_hash"`
	Timestamp     uint64            `toml:"timestamp"`
	CompactTarget CompactTarget     `toml:"compact_target"`
	UnclesHash    string            `toml:"uncles_hash"`
	Nonce         string            `toml:"nonce"`
	GenesisCell   GenesisCell       `toml:"genesis_cell"`
	IssuedCells   []allocation.Cell `toml:"issued_cells"`
}

// CompactTarget is written as a 0x-prefixed hex string
type CompactTarget uint32

// MarshalText implements encoding.TextMarshaler
func (t CompactTarget) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%#x", uint32(t))), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *CompactTarget) UnmarshalText(text []byte) error {
	v, err := hexutil.DecodeUint64(string(text))
	if err != nil {
		return fmt.Errorf("compact target %q: %w", text, err)
	}
	if v > math.MaxUint32 {
		return fmt.Errorf("compact target %q overflows 32 bits", text)
	}
	*t = CompactTarget(v)
	return nil
}

// GenesisCell carries the genesis message
type GenesisCell struct {
	Message string          `toml:"message"`
	Lock    allocation.Lock `toml:"lock"`
}

// Params are the consensus parameters
type Params struct {
	GenesisEpochLength uint64 `toml:"genesis_epoch_length"`
}

// NewSpec returns the spec with the defaults of a network
func NewSpec(network *config.NetworkConfig) *Spec {
	return &Spec{
		Name: network.Name,
		Genesis: GenesisConfig{
			ParentHash:    zeroHash,
			Timestamp:     network.DefaultTimestamp,
			CompactTarget: CompactTarget(network.DefaultCompactTarget),
			UnclesHash:    zeroHash,
			Nonce:         "0x0",
			GenesisCell: GenesisCell{
				Message: messagePrefix + zeroHash,
				Lock: allocation.Lock{
					CodeHash: config.BurnCodeHash,
					Args:     "0x",
					HashType: config.HashTypeData,
				},
			},
		},
		Params: Params{GenesisEpochLength: network.DefaultEpochLength},
	}
}

// UpdateByHeader anchors the spec to the last testnet block
func (s *Spec) UpdateByHeader(header *chain.Header) *Spec {
	s.Genesis.Timestamp = header.Timestamp
	s.Genesis.GenesisCell.Message = messagePrefix + header.Hash.Hex()
	s.Params.GenesisEpochLength = header.Epoch.Length()
	return s
}

// UpdateTarget sets the initial compact target
func (s *Spec) UpdateTarget(target uint32) *Spec {
	s.Genesis.CompactTarget = CompactTarget(target)
	return s
}

// AppendCells adds issued cells
func (s *Spec) AppendCells(cells []allocation.Cell) *Spec {
	s.Genesis.IssuedCells = append(s.Genesis.IssuedCells, cells...)
	return s
}

// Render encodes the spec as TOML
func (s *Spec) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("failed to render spec: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseSpec decodes a rendered spec
func ParseSpec(data []byte) (*Spec, error) {
	var s Spec
	if _, err := toml.Decode(string(data), &s); err != nil {
		return nil, fmt.Errorf("failed to parse spec: %w", err)
	}
	return &s, nil
}

// Capacity returns the sum of the issued cells
func (s *Spec) Capacity() (allocation.Amount, error) {
	var total allocation.Amount
	for i, cell := range s.Genesis.IssuedCells {
		var err error
		if total, err = total.Add(allocation.Amount(cell.Capacity)); err != nil {
			return 0, fmt.Errorf("cell %d: %w", i, err)
		}
	}
	return total, nil
}

// Digest fingerprints rendered output
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return "0x" + hex.EncodeToString(sum[:])
}

// WriteFile writes data to a new file. It refuses to replace an existing
// file and never leaves a partially written one behind.
func WriteFile(path string, data []byte) error {
	if _, err := os.Lstat(path); err == nil {
		return fmt.Errorf("output %s: %w", path, fs.ErrExist)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("output %s: %w", path, err)
	}

	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+strings.TrimPrefix(name, ".")+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmp.Name(), err)
	}
	// link fails if the target appeared in the meantime
	if err := os.Link(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to publish %s: %w", path, err)
	}
	return nil
}
