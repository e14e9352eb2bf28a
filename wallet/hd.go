package wallet

import (
	"fmt"
	"strings"

	bip32 "github.com/bsv-blockchain/go-sdk/compat/bip32"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	bsvhash "github.com/bsv-blockchain/go-sdk/primitives/hash"
	script "github.com/bsv-blockchain/go-sdk/script"

	"github.com/bitfsorg/libsplit-go/ledger"
)

const (
	// BIP44 path constants.
	PurposeBIP44   = 44
	CoinType       = 60
	DefaultAccount = 0

	// ExternalChain holds receive addresses.
	ExternalChain = 0

	// MaxAccountIndex is the BIP32 non-hardened max.
	MaxAccountIndex = 1<<31 - 1

	// BIP32 hardened offset.
	Hardened = 0x80000000
)

// Wallet is an HD wallet handing out participant accounts.
type Wallet struct {
	masterKey *bip32.ExtendedKey
	chainKey  *bip32.ExtendedKey // m/44'/60'/0'/0
	network   *Network
}

// KeyPair holds a derived key pair and the account address it controls.
type KeyPair struct {
	PrivateKey *ec.PrivateKey `json:"-"`
	PublicKey  *ec.PublicKey  `json:"public_key"`
	Address    ledger.Address `json:"address"`
	Path       string         `json:"path"` // Human-readable derivation path
}

// NewWallet creates a new Wallet from a BIP39 seed.
func NewWallet(seed []byte, network *Network) (*Wallet, error) {
	if len(seed) == 0 {
		return nil, ErrInvalidSeed
	}
	if network == nil {
		network = &MainNet
	}

	masterKey, err := bip32.NewMaster(seed, network.params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}

	// m/44'/60'/0'/0
	key := masterKey
	for _, idx := range []uint32{PurposeBIP44 + Hardened, CoinType + Hardened, DefaultAccount + Hardened, ExternalChain} {
		key, err = key.Child(idx)
		if err != nil {
			return nil, fmt.Errorf("%w: chain derivation: %w", ErrDerivationFailed, err)
		}
	}

	return &Wallet{
		masterKey: masterKey,
		chainKey:  key,
		network:   network,
	}, nil
}

// FromMnemonic builds a Wallet from a BIP39 mnemonic and optional passphrase.
func FromMnemonic(mnemonic, passphrase string, network *Network) (*Wallet, error) {
	seed, err := SeedFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	return NewWallet(seed, network)
}

// Network returns the wallet's network.
func (w *Wallet) Network() *Network {
	return w.network
}

// DeriveAccount derives the key pair of account index.
//
//	Path: m/44'/60'/0'/0/index
func (w *Wallet) DeriveAccount(index uint32) (*KeyPair, error) {
	if index > MaxAccountIndex {
		return nil, fmt.Errorf("%w: %d", ErrAccountIndexOutOfRange, index)
	}

	childKey, err := w.chainKey.Child(index)
	if err != nil {
		return nil, fmt.Errorf("%w: index derivation: %w", ErrDerivationFailed, err)
	}

	return extKeyToKeyPair(childKey, fmt.Sprintf("m/44'/60'/0'/0/%d", index))
}

// Accounts derives the first n accounts.
func (w *Wallet) Accounts(n int) ([]*KeyPair, error) {
	out := make([]*KeyPair, 0, n)
	for i := 0; i < n; i++ {
		kp, err := w.DeriveAccount(uint32(i))
		if err != nil {
			return nil, err
		}
		out = append(out, kp)
	}
	return out, nil
}

// Addresses returns the account addresses of the first n accounts.
func (w *Wallet) Addresses(n int) ([]ledger.Address, error) {
	kps, err := w.Accounts(n)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Address, len(kps))
	for i, kp := range kps {
		out[i] = kp.Address
	}
	return out, nil
}

// AddressFromPublicKey returns Hash160 of the compressed public key.
func AddressFromPublicKey(pub *ec.PublicKey) ledger.Address {
	var a ledger.Address
	copy(a[:], bsvhash.Hash160(pub.Compressed()))
	return a
}

// EncodeAddress renders addr as a Base58Check P2PKH address for network.
func EncodeAddress(addr ledger.Address, network *Network) (string, error) {
	if network == nil {
		network = &MainNet
	}
	a, err := script.NewAddressFromPublicKeyHash(addr[:], network.MainNet)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return a.AddressString, nil
}

// DecodeAddress parses a Base58Check P2PKH address.
func DecodeAddress(s string) (ledger.Address, error) {
	a, err := script.NewAddressFromString(s)
	if err != nil {
		return ledger.ZeroAddress, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	addr, err := ledger.AddressFromHash(a.PublicKeyHash)
	if err != nil {
		return ledger.ZeroAddress, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return addr, nil
}

// extKeyToKeyPair converts a BIP32 extended key to a KeyPair.
func extKeyToKeyPair(extKey *bip32.ExtendedKey, path string) (*KeyPair, error) {
	privKey, err := extKey.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to extract EC private key: %w", ErrDerivationFailed, err)
	}

	pubKey := privKey.PubKey()
	if pubKey == nil {
		return nil, fmt.Errorf("%w: failed to derive public key", ErrDerivationFailed)
	}

	return &KeyPair{
		PrivateKey: privKey,
		PublicKey:  pubKey,
		Address:    AddressFromPublicKey(pubKey),
		Path:       path,
	}, nil
}

// ResolveAddress accepts either the 0x-prefixed hex form or a Base58Check
// P2PKH address of any network.
func ResolveAddress(s string) (ledger.Address, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		addr, err := ledger.ParseAddress(s)
		if err != nil {
			return ledger.ZeroAddress, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
		}
		return addr, nil
	}
	return DecodeAddress(s)
}
