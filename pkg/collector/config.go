package collector

import (
	"errors"
	"fmt"
	"time"
)

// NearBlocks is how close to the end of the epoch before the target the tip
// must be for polling to switch to the short wait
const NearBlocks = 16

// Config tunes the collector
type Config struct {
	// Epoch is the target epoch. Collection covers every block before its start.
	Epoch uint64
	// Confirmations is the distance between a block and the block paying its reward
	Confirmations uint64
	// BatchSize caps the number of heights dispatched at once
	BatchSize uint64
	// EpochAvgCount is the number of epochs before the target whose
	// difficulties are averaged
	EpochAvgCount uint64
	// Workers bounds concurrent fetches
	Workers int

	ShortWait  time.Duration
	LongWait   time.Duration
	SettleWait time.Duration
	// SettleTimeout bounds the wait for in-flight fetches to be accounted
	SettleTimeout time.Duration
}

// DefaultConfig returns the mainnet tuning for a target epoch
func DefaultConfig(epoch uint64) Config {
	return Config{
		Epoch:         epoch,
		Confirmations: 11,
		BatchSize:     512,
		EpochAvgCount: 4,
		Workers:       16,
		ShortWait:     2 * time.Second,
		LongWait:      60 * time.Second,
		SettleWait:    500 * time.Millisecond,
		SettleTimeout: 30 * time.Second,
	}
}

// Validate checks the parameters are usable
func (c Config) Validate() error {
	var errs []error
	if c.Confirmations == 0 {
		errs = append(errs, errors.New("confirmations must be positive"))
	}
	if c.BatchSize == 0 {
		errs = append(errs, errors.New("batch size must be positive"))
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.EpochAvgCount == 0 {
		errs = append(errs, errors.New("epoch average window must be positive"))
	}
	if c.Epoch < c.EpochAvgCount {
		errs = append(errs, fmt.Errorf("epoch %d is smaller than the average window %d", c.Epoch, c.EpochAvgCount))
	}
	if c.SettleWait <= 0 {
		errs = append(errs, errors.New("settle wait must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid collector config: %w", errors.Join(errs...))
	}
	return nil
}
