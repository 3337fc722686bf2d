package collector_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/chain"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/chain/chaintest"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/collector"
)

func TestConvergence(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Collector Convergence Suite")
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

var _ = Describe("Collector over JSON-RPC", func() {
	var (
		sim    *chaintest.Chain
		server *httptest.Server
		client *chain.Client
	)

	dial := func(cfg chaintest.Config) {
		sim = chaintest.New(cfg)
		server = httptest.NewServer(sim.Handler())
		DeferCleanup(server.Close)

		var err error
		client, err = chain.Dial(context.Background(), server.URL)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(client.Close)
	}

	config := func(epoch, confirmations uint64) collector.Config {
		cfg := collector.DefaultConfig(epoch)
		cfg.Confirmations = confirmations
		cfg.EpochAvgCount = 2
		cfg.BatchSize = 7
		cfg.Workers = 3
		return cfg
	}

	DescribeTable("dispatches every reward height exactly once",
		func(epochLength, step, epoch, confirmations uint64) {
			dial(chaintest.Config{EpochLength: epochLength, Step: step, MaxTip: 10 * epochLength * epoch})

			c, err := collector.New(client, config(epoch, confirmations), collector.WithSleep(noSleep))
			Expect(err).NotTo(HaveOccurred())

			obs, err := c.Collect(context.Background())
			Expect(err).NotTo(HaveOccurred())

			last := epoch*epochLength - 1
			var want []uint64
			for h := 1 + confirmations; h <= last+confirmations; h++ {
				want = append(want, h)
			}
			Expect(sim.HashQueries()).To(Equal(want))
			Expect(obs.Header.Number).To(Equal(last))

			var blocks, total uint64
			for _, reward := range obs.Rewards {
				total += reward
			}
			// block n is paid by the header confirmations blocks later
			for n := uint64(1); n <= last; n++ {
				blocks += 1_000_000 + n + confirmations
			}
			Expect(total).To(Equal(blocks))
		},
		Entry("slow tip", uint64(10), uint64(1), uint64(4), uint64(3)),
		Entry("fast tip", uint64(10), uint64(25), uint64(4), uint64(3)),
		Entry("long confirmations", uint64(20), uint64(6), uint64(3), uint64(11)),
		Entry("single confirmation", uint64(8), uint64(3), uint64(5), uint64(1)),
	)

	It("averages the difficulty of the epochs before the target", func() {
		dial(chaintest.Config{
			EpochLength: 10,
			Step:        10,
			MaxTip:      200,
			// difficulties 256 and 512
			CompactTarget: func(epoch uint64) uint32 {
				if epoch%2 == 0 {
					return 0x20010000
				}
				return 0x20008000
			},
		})

		c, err := collector.New(client, config(6, 3), collector.WithSleep(noSleep))
		Expect(err).NotTo(HaveOccurred())

		obs, err := c.Collect(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(obs.DifficultyAvg.Uint64()).To(Equal(uint64(384)))
	})

	It("fails when the node goes away", func() {
		dial(chaintest.Config{EpochLength: 10, Step: 1, MaxTip: 100})

		polls := 0
		sleep := func(ctx context.Context, _ time.Duration) error {
			polls++
			if polls == 3 {
				server.Close()
			}
			return nil
		}
		c, err := collector.New(client, config(4, 3), collector.WithSleep(sleep))
		Expect(err).NotTo(HaveOccurred())

		_, err = c.Collect(context.Background())
		Expect(err).To(MatchError(ContainSubstring("tip header")))
	})
})
