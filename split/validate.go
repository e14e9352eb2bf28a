package split

import (
	"fmt"
	"math/big"

	"github.com/bitfsorg/libsplit-go/ledger"
)

// Validate checks a (token, receivers, percentages) tuple against the
// construction invariants and returns the zipped shares. The first failing
// check determines the reported error kind.
func Validate(token ledger.Address, receivers []ledger.Address, percentages []uint8) ([]Share, error) {
	if token.IsZero() {
		return nil, fmt.Errorf("%w: token", ErrZeroAddress)
	}
	if len(receivers) == 0 {
		return nil, ErrNoAddresses
	}
	if len(percentages) == 0 {
		return nil, ErrNoPercentages
	}
	if len(receivers) != len(percentages) {
		return nil, fmt.Errorf("%w: %d receivers, %d percentages", ErrAddressPercentageMismatch, len(receivers), len(percentages))
	}

	var sum uint64
	shares := make([]Share, len(receivers))
	for i := range receivers {
		if receivers[i].IsZero() {
			return nil, fmt.Errorf("%w: receiver %d", ErrZeroAddress, i)
		}
		if percentages[i] == 0 {
			return nil, fmt.Errorf("%w: share %d", ErrZeroPercentage, i)
		}
		sum += uint64(percentages[i])
		shares[i] = Share{Receiver: receivers[i], Percentage: percentages[i]}
	}
	if sum != PercentageTotal {
		return nil, fmt.Errorf("%w: got %d", ErrPercentageSumMismatch, sum)
	}
	return shares, nil
}

// ValidateDistribution checks that distributions match the share
// proportions of total: same receivers in order, each amount the floor of
// total*percentage/100, and nothing created beyond total.
func ValidateDistribution(distributions []Distribution, shares []Share, total *big.Int) error {
	if len(distributions) != len(shares) {
		return fmt.Errorf("%w: distribution count %d != share count %d", ErrDistributionMismatch, len(distributions), len(shares))
	}

	expected, err := Portions(total, shares)
	if err != nil {
		return err
	}

	paid := new(big.Int)
	for i := range distributions {
		if distributions[i].Receiver != expected[i].Receiver {
			return fmt.Errorf("%w: entry %d: receiver mismatch", ErrDistributionMismatch, i)
		}
		if distributions[i].Amount == nil || distributions[i].Amount.Cmp(expected[i].Amount) != 0 {
			return fmt.Errorf("%w: entry %d: amount %v != expected %s", ErrDistributionMismatch, i, distributions[i].Amount, expected[i].Amount)
		}
		paid.Add(paid, distributions[i].Amount)
	}
	if paid.Cmp(total) > 0 {
		return fmt.Errorf("%w: paid %s exceeds total %s", ErrDistributionMismatch, paid, total)
	}
	return nil
}
