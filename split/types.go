package split

import (
	"math/big"

	"github.com/bitfsorg/libsplit-go/ledger"
)

// PercentageTotal is the exact sum all share percentages must reach.
const PercentageTotal = 100

// Share is one receiver and its percentage of every distribution.
type Share struct {
	Receiver   ledger.Address
	Percentage uint8
}

// SplitConfig is the immutable configuration of a distributor.
type SplitConfig struct {
	Token  ledger.Address // the one token ledger this instance distributes
	Shares []Share        // iteration order for all distributions
}

// FindShare returns the index and share of the first entry for addr, or -1 if not found.
func (c *SplitConfig) FindShare(addr ledger.Address) (int, *Share) {
	for i := range c.Shares {
		if c.Shares[i].Receiver == addr {
			return i, &c.Shares[i]
		}
	}
	return -1, nil
}

// Receivers returns the receivers in share order.
func (c *SplitConfig) Receivers() []ledger.Address {
	out := make([]ledger.Address, len(c.Shares))
	for i, s := range c.Shares {
		out[i] = s.Receiver
	}
	return out
}

// Percentages returns the percentages in share order.
func (c *SplitConfig) Percentages() []uint8 {
	out := make([]uint8, len(c.Shares))
	for i, s := range c.Shares {
		out[i] = s.Percentage
	}
	return out
}

// Distribution is a single payout of a distribution.
type Distribution struct {
	Receiver ledger.Address
	Amount   *big.Int
}

// Details is the preview of a full token distribution.
type Details struct {
	Receivers   []ledger.Address
	Percentages []uint8
	Amounts     []*big.Int
}

// ShareDetails is the preview of one receiver's portion. The zero value
// (zero address, zero percentage, zero amount) stands for "not a receiver".
type ShareDetails struct {
	Receiver   ledger.Address
	Percentage uint8
	Amount     *big.Int
}
