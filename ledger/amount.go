package ledger

import (
	"fmt"
	"math/big"
)

var (
	// MaxAmount is the largest representable amount, 2^256 - 1.
	MaxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	// BaseUnitsPerCoin is the number of base units in one whole coin (10^18).
	BaseUnitsPerCoin = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// Zero returns a fresh zero amount.
func Zero() *big.Int { return new(big.Int) }

// Ether converts a whole-coin count into base units.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), BaseUnitsPerCoin)
}

// CheckAmount verifies that amount fits the unsigned 256-bit range.
func CheckAmount(amount *big.Int) error {
	if amount == nil {
		return fmt.Errorf("%w: nil", ErrInvalidAmount)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: negative value %s", ErrInvalidAmount, amount)
	}
	if amount.Cmp(MaxAmount) > 0 {
		return fmt.Errorf("%w: exceeds 256 bits", ErrInvalidAmount)
	}
	return nil
}

// Copy returns an independent copy of amount; nil becomes zero.
func Copy(amount *big.Int) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(amount)
}

// Sum adds up amounts without mutating them.
func Sum(amounts ...*big.Int) *big.Int {
	total := new(big.Int)
	for _, a := range amounts {
		if a != nil {
			total.Add(total, a)
		}
	}
	return total
}
