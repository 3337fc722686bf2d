package allocation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/chain"
)

// Lock time parameters. Dates are mapped onto planned mainnet epochs of four
// hours counted from the testnet reference start.
var SinceStart = time.Date(2019, 11, 16, 6, 0, 0, 0, time.UTC)

const (
	SinceEpochPeriod = 4 * time.Hour
	SinceEpochLength = 1800

	sinceEpochFlag uint64 = 0x2000_0000_0000_0000
)

// SinceParams relates testnet epochs to the planned mainnet launch
type SinceParams struct {
	// Epoch is the testnet epoch whose start ends the observation
	Epoch uint64
	// PlannedEpoch is the testnet epoch at which the mainnet launch was planned
	PlannedEpoch uint64
}

// ParseSince converts a YYYY-MM-DD date into an absolute epoch lock time
func ParseSince(date string, params SinceParams) (uint64, error) {
	end, err := parseDate(date)
	if err != nil {
		return 0, err
	}
	if end.Before(SinceStart) {
		return 0, fmt.Errorf("date %s is before %s", date, SinceStart.Format(time.DateTime))
	}

	elapsed := uint64(end.Sub(SinceStart) / time.Second)
	period := uint64(SinceEpochPeriod / time.Second)
	epochs, remainder := elapsed/period, elapsed%period

	var number, index uint64
	if epochs+params.PlannedEpoch > params.Epoch {
		number = epochs + params.PlannedEpoch - params.Epoch
		index = remainder * SinceEpochLength / period
	}
	epoch := chain.NewEpochNumberWithFraction(number, index, SinceEpochLength)
	return epoch.FullValue() | sinceEpochFlag, nil
}

// parseDate accepts unpadded fields, e.g. 2020-7-1
func parseDate(date string) (time.Time, error) {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
	}
	var fields [3]int
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
		}
		fields[i] = int(n)
	}
	year, month, day := fields[0], time.Month(fields[1]), fields[2]
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if year < 1970 || t.Year() != year || t.Month() != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid date %q", date)
	}
	return t, nil
}
