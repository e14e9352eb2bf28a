package split

import (
	"github.com/bitfsorg/libsplit-go/ledger"
	"github.com/bitfsorg/libsplit-go/wallet"
)

// testMnemonic is the BIP39 reference phrase the fixture accounts derive from.
const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// testAccounts returns the first n account addresses of the test wallet.
func testAccounts(n int) []ledger.Address {
	w, err := wallet.FromMnemonic(testMnemonic, "", &wallet.TestNet)
	if err != nil {
		panic(err)
	}
	addrs, err := w.Addresses(n)
	if err != nil {
		panic(err)
	}
	return addrs
}
