package chain

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedWitness is returned when a cellbase witness does not decode
var ErrMalformedWitness = errors.New("malformed cellbase witness")

const numberSize = 4

// Script is a lock or type script
type Script struct {
	CodeHash Hash
	HashType byte
	Args     []byte
}

// CellbaseWitness is the witness of a cellbase transaction: the miner lock and
// an arbitrary message
type CellbaseWitness struct {
	Lock    Script
	Message []byte
}

// CellbaseLockArgs returns the miner lock args recorded in the cellbase witness
// of a block
func CellbaseLockArgs(block *Block) ([]byte, error) {
	if block == nil || len(block.Transactions) == 0 {
		return nil, fmt.Errorf("%w: block has no cellbase", ErrMalformedWitness)
	}
	witnesses := block.Transactions[0].Witnesses
	if len(witnesses) == 0 {
		return nil, fmt.Errorf("%w: cellbase of block %d has no witness", ErrMalformedWitness, block.Header.Number)
	}
	witness, err := ParseCellbaseWitness(witnesses[0])
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", block.Header.Number, err)
	}
	return witness.Lock.Args, nil
}

// ParseCellbaseWitness decodes a molecule encoded CellbaseWitness
func ParseCellbaseWitness(raw []byte) (*CellbaseWitness, error) {
	fields, err := parseTable(raw, 2)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWitness, err)
	}
	lock, err := parseScript(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: lock: %v", ErrMalformedWitness, err)
	}
	message, err := parseBytes(fields[1])
	if err != nil {
		return nil, fmt.Errorf("%w: message: %v", ErrMalformedWitness, err)
	}
	return &CellbaseWitness{Lock: *lock, Message: message}, nil
}

// Bytes returns the molecule encoding of the witness
func (w *CellbaseWitness) Bytes() []byte {
	return buildTable(w.Lock.Bytes(), buildBytes(w.Message))
}

// Bytes returns the molecule encoding of the script
func (s *Script) Bytes() []byte {
	return buildTable(s.CodeHash.Bytes(), []byte{s.HashType}, buildBytes(s.Args))
}

func parseScript(raw []byte) (*Script, error) {
	fields, err := parseTable(raw, 3)
	if err != nil {
		return nil, err
	}
	if len(fields[0]) != len(Hash{}) {
		return nil, fmt.Errorf("code hash has %d bytes", len(fields[0]))
	}
	if len(fields[1]) != 1 {
		return nil, fmt.Errorf("hash type has %d bytes", len(fields[1]))
	}
	args, err := parseBytes(fields[2])
	if err != nil {
		return nil, fmt.Errorf("args: %w", err)
	}
	script := &Script{HashType: fields[1][0], Args: args}
	copy(script.CodeHash[:], fields[0])
	return script, nil
}

// parseTable splits a molecule table with exactly count fields
func parseTable(raw []byte, count int) ([][]byte, error) {
	if len(raw) < numberSize {
		return nil, fmt.Errorf("table header truncated: %d bytes", len(raw))
	}
	total := int(binary.LittleEndian.Uint32(raw))
	if total != len(raw) {
		return nil, fmt.Errorf("table size %d does not match %d bytes", total, len(raw))
	}
	if total == numberSize {
		if count != 0 {
			return nil, fmt.Errorf("empty table, want %d fields", count)
		}
		return nil, nil
	}
	if total < numberSize*2 {
		return nil, fmt.Errorf("table header truncated: %d bytes", total)
	}
	first := int(binary.LittleEndian.Uint32(raw[numberSize:]))
	if first%numberSize != 0 || first < numberSize*2 || first > total {
		return nil, fmt.Errorf("invalid first offset %d", first)
	}
	if got := first/numberSize - 1; got != count {
		return nil, fmt.Errorf("table has %d fields, want %d", got, count)
	}

	offsets := make([]int, count+1)
	for i := 0; i < count; i++ {
		offsets[i] = int(binary.LittleEndian.Uint32(raw[numberSize*(i+1):]))
	}
	offsets[count] = total

	fields := make([][]byte, count)
	for i := 0; i < count; i++ {
		start, end := offsets[i], offsets[i+1]
		if start > end || end > total {
			return nil, fmt.Errorf("invalid offsets %d..%d", start, end)
		}
		fields[i] = raw[start:end]
	}
	return fields, nil
}

func parseBytes(raw []byte) ([]byte, error) {
	if len(raw) < numberSize {
		return nil, fmt.Errorf("bytes header truncated: %d bytes", len(raw))
	}
	size := int(binary.LittleEndian.Uint32(raw))
	if size != len(raw)-numberSize {
		return nil, fmt.Errorf("bytes length %d does not match %d bytes", size, len(raw)-numberSize)
	}
	out := make([]byte, size)
	copy(out, raw[numberSize:])
	return out, nil
}

func buildTable(fields ...[]byte) []byte {
	header := numberSize * (len(fields) + 1)
	total := header
	for _, f := range fields {
		total += len(f)
	}
	out := make([]byte, header, total)
	binary.LittleEndian.PutUint32(out, uint32(total))
	offset := header
	for i, f := range fields {
		binary.LittleEndian.PutUint32(out[numberSize*(i+1):], uint32(offset))
		offset += len(f)
	}
	for _, f := range fields {
		out = append(out, f...)
	}
	return out
}

func buildBytes(data []byte) []byte {
	out := make([]byte, numberSize, numberSize+len(data))
	binary.LittleEndian.PutUint32(out, uint32(len(data)))
	return append(out, data...)
}
