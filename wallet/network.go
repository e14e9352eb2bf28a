package wallet

import (
	"fmt"

	chaincfg "github.com/bsv-blockchain/go-sdk/transaction/chaincfg"
)

// Network selects BIP32 key version bytes and the address encoding prefix.
type Network struct {
	Name    string
	MainNet bool // mainnet address prefix when true
	params  *chaincfg.Params
}

// Predefined networks. Regtest shares the testnet parameters.
var (
	MainNet = Network{Name: "mainnet", MainNet: true, params: &chaincfg.MainNet}
	TestNet = Network{Name: "testnet", params: &chaincfg.TestNet}
	RegTest = Network{Name: "regtest", params: &chaincfg.TestNet}
)

// predefined maps network names to their configs.
var predefined = map[string]*Network{
	"mainnet": &MainNet,
	"testnet": &TestNet,
	"regtest": &RegTest,
}

// GetNetwork returns a predefined network by name.
func GetNetwork(name string) (*Network, error) {
	if net, ok := predefined[name]; ok {
		return net, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidNetwork, name)
}
