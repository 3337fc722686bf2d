// Package collector follows a CKB node until a target epoch and gathers the
// primary block reward of every miner before it
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/chain"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/db"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/logging"
)

var (
	// ErrCounterOverrun is returned when more fetches finished than were dispatched
	ErrCounterOverrun = errors.New("completion counter overrun")
	// ErrMissingHeights is returned when heights stay unfetched after the refetch
	ErrMissingHeights = errors.New("missing block records")
)

// Observation is what the chain says about the competition
type Observation struct {
	// Rewards maps raw miner lock args to the sum of their primary rewards
	Rewards map[string]uint64
	// Header is the last block before the target epoch
	Header *chain.Header
	// DifficultyAvg is the mean difficulty of the epochs before the target
	DifficultyAvg *uint256.Int
}

// Option configures a Collector
type Option func(*Collector)

// WithCache consults and fills a record cache
func WithCache(cache db.RecordStore) Option {
	return func(c *Collector) { c.cache = cache }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(c *Collector) { c.log = logging.OrNop(log) }
}

// WithMetrics sets the metrics
func WithMetrics(m *Metrics) Option {
	return func(c *Collector) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSleep replaces the wait between polls
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Collector) { c.sleep = sleep }
}

// Collector gathers block rewards from a node
type Collector struct {
	cfg     Config
	node    chain.Node
	cache   db.RecordStore
	log     *zap.Logger
	metrics *Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a collector
func New(node chain.Node, cfg Config, opts ...Option) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Collector{
		cfg:     cfg,
		node:    node,
		log:     zap.NewNop(),
		metrics: NewMetrics(nil),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Collect runs until the target epoch is confirmed and returns the rewards
// of every block in [1, start of target epoch - 1]
func (c *Collector) Collect(ctx context.Context) (*Observation, error) {
	records := newRecordSet()
	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	defer func() { _ = g.Wait() }()

	next, err := c.follow(ctx, &g, records)
	if err != nil {
		return nil, err
	}

	target, err := c.node.EpochByNumber(ctx, c.cfg.Epoch)
	if err != nil {
		return nil, fmt.Errorf("failed to get epoch %d: %w", c.cfg.Epoch, err)
	}
	if target.StartNumber == 0 {
		return nil, fmt.Errorf("epoch %d starts at genesis", c.cfg.Epoch)
	}
	last := target.StartNumber - 1
	stop := last + c.cfg.Confirmations

	for next <= stop {
		end := min(next+c.cfg.BatchSize-1, stop)
		c.dispatch(ctx, &g, records, next, end)
		_ = g.Wait()
		next = end + 1
	}
	_ = g.Wait()

	if err := c.settle(ctx, records, last); err != nil {
		return nil, err
	}
	if err := c.refetch(ctx, records, last); err != nil {
		return nil, err
	}
	return c.observe(ctx, records, last)
}

// follow polls the tip and dispatches reward heights as they appear until
// the target epoch has enough confirmations. It returns the next height to dispatch.
func (c *Collector) follow(ctx context.Context, g *errgroup.Group, records *recordSet) (uint64, error) {
	next := c.cfg.Confirmations + 1
	for {
		tip, err := c.node.TipHeader(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to get tip header: %w", err)
		}
		c.metrics.TipNumber.Set(float64(tip.Number))
		c.metrics.Completed.Set(float64(records.completed.Load()))

		epoch := tip.Epoch
		if epoch.Number() > c.cfg.Epoch ||
			(epoch.Number() == c.cfg.Epoch && epoch.Index() >= c.cfg.Confirmations-1) {
			c.log.Info("target epoch confirmed",
				zap.Uint64("tip", tip.Number),
				zap.Stringer("epoch", epoch),
			)
			return next, nil
		}

		if tip.Number > next {
			end := min(next+c.cfg.BatchSize-1, tip.Number)
			c.dispatch(ctx, g, records, next, end)
			next = end + 1
		}

		near := epoch.Number() >= c.cfg.Epoch ||
			(epoch.Number()+1 == c.cfg.Epoch && epoch.Length()-epoch.Index() < NearBlocks)
		wait := c.cfg.LongWait
		if near || tip.Number > next {
			wait = c.cfg.ShortWait
		}
		c.log.Debug("waiting for tip",
			zap.Uint64("tip", tip.Number),
			zap.Stringer("epoch", epoch),
			zap.Uint64("next", next),
			zap.Duration("wait", wait),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return 0, err
		}
	}
}

// dispatch schedules fetch tasks for reward heights [from, to]
func (c *Collector) dispatch(ctx context.Context, g *errgroup.Group, records *recordSet, from, to uint64) {
	c.log.Info("dispatching block fetches", zap.Uint64("from", from), zap.Uint64("to", to))
	for height := from; height <= to; height++ {
		g.Go(func() error {
			defer records.complete()
			number := height - c.cfg.Confirmations
			rec, err := c.fetchRecord(ctx, height)
			if err != nil {
				c.metrics.FetchFailures.Inc()
				c.log.Warn("failed to fetch block record", zap.Uint64("block", number), zap.Error(err))
				return nil
			}
			records.put(number, rec)
			return nil
		})
	}
}

// fetchRecord extracts the miner identity of block height - confirmations
// and the primary reward paid for it at height
func (c *Collector) fetchRecord(ctx context.Context, height uint64) (db.BlockRecord, error) {
	number := height - c.cfg.Confirmations
	if c.cache != nil {
		rec, ok, err := c.cache.GetRecord(number)
		if err != nil {
			c.log.Warn("record cache read failed", zap.Uint64("block", number), zap.Error(err))
		} else if ok {
			c.metrics.CacheHits.Inc()
			return rec, nil
		}
	}

	block, err := c.node.BlockByNumber(ctx, number)
	if err != nil {
		return db.BlockRecord{}, fmt.Errorf("block %d: %w", number, err)
	}
	identity, err := chain.CellbaseLockArgs(block)
	if err != nil {
		return db.BlockRecord{}, err
	}
	hash, err := c.node.BlockHash(ctx, height)
	if err != nil {
		return db.BlockRecord{}, fmt.Errorf("block hash %d: %w", height, err)
	}
	reward, err := c.node.CellbaseOutputCapacityDetails(ctx, hash)
	if err != nil {
		return db.BlockRecord{}, fmt.Errorf("reward of block %d: %w", height, err)
	}

	rec := db.BlockRecord{Identity: identity, Reward: reward.Primary}
	if c.cache != nil {
		if err := c.cache.PutRecord(number, rec); err != nil {
			c.log.Warn("record cache write failed", zap.Uint64("block", number), zap.Error(err))
		}
	}
	return rec, nil
}

// settle waits until every dispatched task is accounted for
func (c *Collector) settle(ctx context.Context, records *recordSet, last uint64) error {
	deadline := time.Now().Add(c.cfg.SettleTimeout)
	for {
		completed := records.completed.Load()
		c.metrics.Completed.Set(float64(completed))
		if completed > last {
			return fmt.Errorf("%w: %d completed, %d dispatched", ErrCounterOverrun, completed, last)
		}
		if completed == last || !time.Now().Before(deadline) {
			c.log.Info("fetches settled", zap.Uint64("completed", completed), zap.Uint64("expected", last))
			return nil
		}
		if err := c.sleep(ctx, c.cfg.SettleWait); err != nil {
			return err
		}
	}
}

// refetch synchronously retries every height without a record
func (c *Collector) refetch(ctx context.Context, records *recordSet, last uint64) error {
	missing := records.missing(last)
	if len(missing) == 0 {
		return nil
	}
	c.log.Warn("refetching missing blocks", zap.Int("count", len(missing)))

	var errs error
	for _, number := range missing {
		rec, err := c.fetchRecord(ctx, number+c.cfg.Confirmations)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		records.put(number, rec)
		c.metrics.Refetched.Inc()
	}
	if errs != nil {
		return fmt.Errorf("%w: %w", ErrMissingHeights, errs)
	}
	return nil
}

// observe aggregates rewards per identity and reads the reference header and
// difficulty window
func (c *Collector) observe(ctx context.Context, records *recordSet, last uint64) (*Observation, error) {
	rewards := make(map[string]uint64)
	for number := uint64(1); number <= last; number++ {
		rec, ok := records.get(number)
		if !ok {
			return nil, fmt.Errorf("%w: block %d", ErrMissingHeights, number)
		}
		key := string(rec.Identity)
		sum := rewards[key] + rec.Reward
		if sum < rec.Reward {
			return nil, fmt.Errorf("reward of miner %x overflows", rec.Identity)
		}
		rewards[key] = sum
	}

	header, err := c.node.HeaderByNumber(ctx, last)
	if err != nil {
		return nil, fmt.Errorf("failed to get header %d: %w", last, err)
	}

	total := new(uint256.Int)
	for i := uint64(1); i <= c.cfg.EpochAvgCount; i++ {
		epoch, err := c.node.EpochByNumber(ctx, c.cfg.Epoch-i)
		if err != nil {
			return nil, fmt.Errorf("failed to get epoch %d: %w", c.cfg.Epoch-i, err)
		}
		if _, overflow := total.AddOverflow(total, chain.CompactToDifficulty(epoch.CompactTarget)); overflow {
			return nil, errors.New("difficulty sum overflows")
		}
	}
	avg := total.Div(total, uint256.NewInt(c.cfg.EpochAvgCount))

	c.log.Info("collected block rewards",
		zap.Uint64("blocks", last),
		zap.Int("miners", len(rewards)),
		zap.Stringer("difficulty_avg", avg),
	)
	return &Observation{Rewards: rewards, Header: header, DifficultyAvg: avg}, nil
}
