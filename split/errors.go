package split

import "errors"

var (
	// ErrZeroAddress indicates the token or a receiver is the zero address.
	ErrZeroAddress = errors.New("split: zero address")

	// ErrNoAddresses indicates an empty receiver list.
	ErrNoAddresses = errors.New("split: no receiver addresses")

	// ErrNoPercentages indicates an empty percentage list.
	ErrNoPercentages = errors.New("split: no percentages")

	// ErrAddressPercentageMismatch indicates receivers and percentages differ in length.
	ErrAddressPercentageMismatch = errors.New("split: receivers and percentages length mismatch")

	// ErrZeroPercentage indicates a share with a zero percentage.
	ErrZeroPercentage = errors.New("split: zero percentage")

	// ErrPercentageSumMismatch indicates percentages do not add up to 100.
	ErrPercentageSumMismatch = errors.New("split: percentages do not sum to 100")

	// ErrZeroNumber indicates a native-currency payment of zero.
	ErrZeroNumber = errors.New("split: zero amount received")

	// ErrNoFunds indicates the distributor holds no token balance.
	ErrNoFunds = errors.New("split: no funds to distribute")

	// ErrReentrantCall indicates a distribution was entered while another one
	// on the same instance is in progress.
	ErrReentrantCall = errors.New("split: reentrant call")

	// ErrTokenUnavailable indicates the configured token is not a deployed token ledger.
	ErrTokenUnavailable = errors.New("split: token ledger unavailable")

	// ErrIndexOutOfRange indicates a share index past the end of the configuration.
	ErrIndexOutOfRange = errors.New("split: share index out of range")

	// ErrDistributionMismatch indicates computed portions violate conservation.
	ErrDistributionMismatch = errors.New("split: distribution does not match shares")
)

// reasons maps each error kind to its stable revert reason code.
var reasons = []struct {
	err    error
	reason string
}{
	{ErrZeroAddress, "ZERO_ADDRESS"},
	{ErrNoAddresses, "NO_ADDRESSES"},
	{ErrNoPercentages, "NO_PERCENTAGES"},
	{ErrAddressPercentageMismatch, "ADDRESSES_PERCENTAGES_MISMATCH"},
	{ErrZeroPercentage, "ZERO_PERCENTAGE"},
	{ErrPercentageSumMismatch, "PERCENTAGES_SUM_MISMATCH"},
	{ErrZeroNumber, "ZERO_NUMBER"},
	{ErrNoFunds, "NO_FUNDS"},
	{ErrReentrantCall, "REENTRANT_CALL"},
	{ErrTokenUnavailable, "TOKEN_UNAVAILABLE"},
	{ErrIndexOutOfRange, "INDEX_OUT_OF_RANGE"},
}

// Reason returns the revert reason code for err, or "UNKNOWN".
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "UNKNOWN"
}
