package collector

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/chain/chaintest"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/db"
)

// sleepRecorder replaces real waits
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) all() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

func testConfig() Config {
	cfg := DefaultConfig(4)
	cfg.Confirmations = 3
	cfg.Workers = 4
	cfg.SettleTimeout = time.Second
	return cfg
}

func testChain() *chaintest.Chain {
	return chaintest.New(chaintest.Config{EpochLength: 10, Step: 5, MaxTip: 60})
}

func heights(from, to uint64) []uint64 {
	var out []uint64
	for h := from; h <= to; h++ {
		out = append(out, h)
	}
	return out
}

// expectedRewards credits block n, mined by identity n%3, with the reward
// reported by block n+3
func expectedRewards() map[string]uint64 {
	return map[string]uint64{
		string(chaintest.IdentityOf(0)): 13_000_312,
		string(chaintest.IdentityOf(1)): 13_000_286,
		string(chaintest.IdentityOf(2)): 13_000_299,
	}
}

func TestExpectedRewards(t *testing.T) {
	sim := testChain()
	conf := testConfig().Confirmations
	want := make(map[string]uint64)
	for n := uint64(1); n <= 39; n++ {
		want[string(chaintest.IdentityOf(n%3))] += 1_000_000 + n + conf
	}
	assert.Equal(t, want, expectedRewards())

	reward, err := sim.CellbaseOutputCapacityDetails(context.Background(), chaintest.HashOf(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), reward.Primary)
}

func TestCollect(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sim := testChain()
	sleeper := &sleepRecorder{}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	c, err := New(sim, testConfig(), WithSleep(sleeper.sleep), WithMetrics(metrics))
	require.NoError(t, err)

	obs, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, heights(4, 42), sim.HashQueries())
	assert.Equal(t, expectedRewards(), obs.Rewards)
	assert.Equal(t, uint64(39), obs.Header.Number)
	assert.Equal(t, chaintest.HashOf(39), obs.Header.Hash)
	assert.Equal(t, uint64(256), obs.DifficultyAvg.Uint64())

	sleeps := sleeper.all()
	require.Len(t, sleeps, 9)
	for _, d := range sleeps[:6] {
		assert.Equal(t, c.cfg.LongWait, d)
	}
	for _, d := range sleeps[6:] {
		assert.Equal(t, c.cfg.ShortWait, d)
	}

	assert.Equal(t, float64(39), testutil.ToFloat64(metrics.Completed))
	assert.Equal(t, float64(45), testutil.ToFloat64(metrics.TipNumber))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.FetchFailures))
	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestCollectSmallBatches(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sim := testChain()
	sleeper := &sleepRecorder{}
	cfg := testConfig()
	cfg.BatchSize = 2

	c, err := New(sim, cfg, WithSleep(sleeper.sleep))
	require.NoError(t, err)

	obs, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, heights(4, 42), sim.HashQueries())
	assert.Equal(t, expectedRewards(), obs.Rewards)

	// more heights were dispatchable after every batch past the first poll
	for _, d := range sleeper.all()[2:] {
		assert.Equal(t, cfg.ShortWait, d)
	}
}

func TestCollectRefetch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	t.Run("transient failure is recovered", func(t *testing.T) {
		sim := testChain()
		sim.FailBlock(7, 1)
		metrics := NewMetrics(nil)
		sleeper := &sleepRecorder{}

		c, err := New(sim, testConfig(), WithSleep(sleeper.sleep), WithMetrics(metrics))
		require.NoError(t, err)

		obs, err := c.Collect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, expectedRewards(), obs.Rewards)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.FetchFailures))
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Refetched))
		assert.Equal(t, float64(39), testutil.ToFloat64(metrics.Completed))
	})

	t.Run("persistent failures are reported together", func(t *testing.T) {
		sim := testChain()
		sim.FailBlock(7, 2)
		sim.FailBlock(30, 2)
		sleeper := &sleepRecorder{}

		c, err := New(sim, testConfig(), WithSleep(sleeper.sleep))
		require.NoError(t, err)

		_, err = c.Collect(context.Background())
		require.ErrorIs(t, err, ErrMissingHeights)
		assert.Contains(t, err.Error(), "block 7")
		assert.Contains(t, err.Error(), "block 30")
	})
}

func TestCollectCache(t *testing.T) {
	store, err := db.OpenRecordStore(db.BackendPebble, filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	defer store.Close()

	sleeper := &sleepRecorder{}
	first, err := New(testChain(), testConfig(), WithSleep(sleeper.sleep), WithCache(store))
	require.NoError(t, err)
	_, err = first.Collect(context.Background())
	require.NoError(t, err)

	count, err := store.RecordCount()
	require.NoError(t, err)
	assert.Equal(t, 39, count)

	sim := testChain()
	metrics := NewMetrics(nil)
	second, err := New(sim, testConfig(), WithSleep(sleeper.sleep), WithCache(store), WithMetrics(metrics))
	require.NoError(t, err)
	obs, err := second.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, expectedRewards(), obs.Rewards)
	assert.Empty(t, sim.HashQueries())
	assert.Equal(t, float64(39), testutil.ToFloat64(metrics.CacheHits))
}

func TestCollectCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// the tip never reaches the target epoch
	sim := chaintest.New(chaintest.Config{EpochLength: 10, Step: 5, MaxTip: 20})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	polls := 0
	sleep := func(ctx context.Context, _ time.Duration) error {
		polls++
		if polls == 10 {
			cancel()
		}
		return ctx.Err()
	}

	c, err := New(sim, testConfig(), WithSleep(sleep))
	require.NoError(t, err)
	_, err = c.Collect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSettleOverrun(t *testing.T) {
	c, err := New(testChain(), testConfig())
	require.NoError(t, err)

	records := newRecordSet()
	for range 5 {
		records.complete()
	}
	assert.ErrorIs(t, c.settle(context.Background(), records, 4), ErrCounterOverrun)
	assert.NoError(t, c.settle(context.Background(), records, 5))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig(90).Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no confirmations", func(c *Config) { c.Confirmations = 0 }},
		{"no batch", func(c *Config) { c.BatchSize = 0 }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"no window", func(c *Config) { c.EpochAvgCount = 0 }},
		{"epoch inside window", func(c *Config) { c.Epoch = 3 }},
		{"no settle wait", func(c *Config) { c.SettleWait = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(90)
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
