package ledger

import (
	"fmt"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/collector"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/allocation"
)

// Report is the combined output of all sources
type Report struct {
	Results  []*Result
	Assets   []allocation.Asset
	Expected allocation.Amount
	// Target is the initial compact target, zero for offline reports
	Target uint32
}

func (r *Report) add(result *Result) error {
	expected, err := r.Expected.Add(result.Expected)
	if err != nil {
		return fmt.Errorf("%s: %w", result.Name, err)
	}
	r.Expected = expected
	r.Results = append(r.Results, result)
	r.Assets = append(r.Assets, result.Assets...)
	return nil
}

// VerifyHistorical loads and validates the nine historical sources
func VerifyHistorical(loader *Loader) (*Report, error) {
	sources, err := HistoricalSources()
	if err != nil {
		return nil, err
	}
	report := &Report{}
	for _, src := range sources {
		result, err := loader.Load(src)
		if err != nil {
			return nil, err
		}
		if err := report.add(result); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// Collect loads the historical sources followed by the chain observation
func Collect(obs *collector.Observation, loader *Loader) (*Report, error) {
	report, err := VerifyHistorical(loader)
	if err != nil {
		return nil, err
	}
	result, target, err := loader.FromObservation(obs, Round53)
	if err != nil {
		return nil, err
	}
	if err := report.add(result); err != nil {
		return nil, err
	}
	report.Target = target
	return report, nil
}
