package integration_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/holiman/uint256"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/chain"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/chain/chaintest"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/collector"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/db"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/allocation"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/ledger"
)

const (
	epochLength   = 10
	targetEpoch   = 4
	confirmations = 3
	lastBlock     = targetEpoch*epochLength - 1
)

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

var _ = Describe("Genesis pipeline", Ordered, func() {
	var (
		sim     *chaintest.Chain
		client  *chain.Client
		reg     *prometheus.Registry
		obs     *collector.Observation
		report  *ledger.Report
		builder *genesis.Builder
		workDir string
	)

	BeforeAll(func() {
		sim = chaintest.New(chaintest.Config{
			EpochLength: epochLength,
			Step:        5,
			MaxTip:      60,
			Reward:      func(n uint64) uint64 { return 100_000_000_000_000 + n },
		})
		server := httptest.NewServer(sim.Handler())
		DeferCleanup(server.Close)

		var err error
		client, err = chain.Dial(context.Background(), server.URL)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(client.Close)

		reg = prometheus.NewRegistry()
		workDir = GinkgoT().TempDir()

		builder, err = genesis.NewBuilder("lina",
			allocation.SinceParams{Epoch: targetEpoch, PlannedEpoch: targetEpoch},
			genesis.WithLogger(zaptest.NewLogger(GinkgoT())),
		)
		Expect(err).NotTo(HaveOccurred())
	})

	It("collects every reward before the target epoch", func() {
		cache, err := db.OpenRecordStore(db.BackendLevelDB, filepath.Join(workDir, "cache"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(cache.Close)

		cfg := collector.DefaultConfig(targetEpoch)
		cfg.Confirmations = confirmations
		cfg.BatchSize = 8
		cfg.Workers = 4

		c, err := collector.New(client, cfg,
			collector.WithCache(cache),
			collector.WithMetrics(collector.NewMetrics(reg)),
			collector.WithSleep(noSleep),
			collector.WithLogger(zaptest.NewLogger(GinkgoT())),
		)
		Expect(err).NotTo(HaveOccurred())

		obs, err = c.Collect(context.Background())
		Expect(err).NotTo(HaveOccurred())

		var want []uint64
		for h := uint64(1 + confirmations); h <= lastBlock+confirmations; h++ {
			want = append(want, h)
		}
		Expect(sim.HashQueries()).To(Equal(want))
		Expect(obs.Header.Number).To(BeEquivalentTo(lastBlock))
		Expect(obs.Rewards).To(HaveLen(3))
		Expect(obs.DifficultyAvg.Uint64()).To(BeEquivalentTo(256))

		count, err := cache.RecordCount()
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(lastBlock))
		families, err := testutil.GatherAndCount(reg,
			"gbgc_collector_tip_number", "gbgc_collector_completed")
		Expect(err).NotTo(HaveOccurred())
		Expect(families).To(Equal(2))
	})

	It("validates the ten ledgers", func() {
		var err error
		report, err = ledger.Collect(obs, ledger.NewLoader(zaptest.NewLogger(GinkgoT())))
		Expect(err).NotTo(HaveOccurred())

		Expect(report.Results).To(HaveLen(10))
		Expect(report.Assets).To(HaveLen(598))
		Expect(report.Expected.CKB()).To(BeEquivalentTo(65_000_000))
		Expect(report.Target).To(Equal(chain.DifficultyToCompact(uint256.NewInt(832))))

		chainResult := report.Results[9]
		Expect(chainResult.Name).To(Equal("round-5.3 mined"))
		paid, err := chainResult.Total()
		Expect(err).NotTo(HaveOccurred())
		Expect(paid.CKB()).To(BeEquivalentTo(17_999_999))
	})

	It("renders a conserving spec and writes it once", func() {
		spec, merged, err := builder.Assemble(report, obs.Header)
		Expect(err).NotTo(HaveOccurred())
		Expect(merged.Assets).To(HaveLen(402))
		Expect(merged.Total.CKB()).To(BeEquivalentTo(64_754_164))
		Expect(merged.Remainder.CKB()).To(BeEquivalentTo(168_000_000 - 64_754_164))

		Expect(spec.Genesis.GenesisCell.Message).To(Equal("lina " + chaintest.HashOf(lastBlock).Hex()))
		Expect(spec.Genesis.Timestamp).To(Equal(sim.Header(lastBlock).Timestamp))
		Expect(spec.Params.GenesisEpochLength).To(BeEquivalentTo(epochLength))
		Expect(spec.Genesis.IssuedCells).To(HaveLen(429))

		data, err := spec.Render()
		Expect(err).NotTo(HaveOccurred())

		path := filepath.Join(workDir, "lina.toml")
		Expect(genesis.WriteFile(path, data)).To(Succeed())
		Expect(genesis.WriteFile(path, []byte("again"))).To(MatchError(os.ErrExist))

		validator, err := genesis.NewValidator("lina")
		Expect(err).NotTo(HaveOccurred())
		result, err := validator.ValidateFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Cells).To(Equal(429))
		Expect(result.Digest).To(Equal(genesis.Digest(data)))
		Expect(result.Capacity.CKB()).To(BeEquivalentTo(33_600_000_000 - 1_264_963))
	})
})
