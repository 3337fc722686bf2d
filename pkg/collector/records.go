package collector

import (
	"sync"
	"sync/atomic"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/db"
)

// recordSet is shared between the driver and the fetch workers
type recordSet struct {
	mu      sync.Mutex
	records map[uint64]db.BlockRecord

	completed atomic.Uint64
}

func newRecordSet() *recordSet {
	return &recordSet{records: make(map[uint64]db.BlockRecord)}
}

func (s *recordSet) put(height uint64, rec db.BlockRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[height] = rec
}

func (s *recordSet) get(height uint64) (db.BlockRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[height]
	return rec, ok
}

// missing returns the heights in [1, last] without a record
func (s *recordSet) missing(last uint64) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uint64
	for height := uint64(1); height <= last; height++ {
		if _, ok := s.records[height]; !ok {
			out = append(out, height)
		}
	}
	return out
}

func (s *recordSet) complete() {
	s.completed.Add(1)
}
