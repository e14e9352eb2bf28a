package split

import (
	"math/big"

	"github.com/bitfsorg/libsplit-go/ledger"
)

var hundred = big.NewInt(PercentageTotal)

// Portions calculates per-receiver payouts of total as
// floor(total * percentage / 100). The integer-division remainder is not
// redistributed; it stays with the payer (see Remainder).
func Portions(total *big.Int, shares []Share) ([]Distribution, error) {
	if err := ledger.CheckAmount(total); err != nil {
		return nil, err
	}
	if len(shares) == 0 {
		return nil, ErrNoAddresses
	}

	distributions := make([]Distribution, len(shares))
	for i, s := range shares {
		amount := new(big.Int).Mul(total, big.NewInt(int64(s.Percentage)))
		amount.Quo(amount, hundred)
		distributions[i] = Distribution{Receiver: s.Receiver, Amount: amount}
	}
	return distributions, nil
}

// Remainder returns the part of total that Portions leaves undistributed.
func Remainder(total *big.Int, distributions []Distribution) *big.Int {
	paid := new(big.Int)
	for _, d := range distributions {
		paid.Add(paid, d.Amount)
	}
	return new(big.Int).Sub(total, paid)
}
