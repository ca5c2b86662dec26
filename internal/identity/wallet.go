package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"

	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
)

var (
	ErrInvalidMnemonic  = errors.New("invalid mnemonic")
	ErrMnemonicRequired = errors.New("mnemonic is required")
	ErrDerivation       = errors.New("key derivation failed")
)

// EthereumAccountPath is m/44'/60'/0'/0, the account prefix used by common
// Ethereum wallets. The address index is appended per account.
var EthereumAccountPath = []uint32{
	44 + hardenedOffset,
	60 + hardenedOffset,
	0 + hardenedOffset,
	0,
}

func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(normalizeMnemonic(mnemonic))
}

// WalletFromMnemonic derives the secp256k1 account at m/44'/60'/0'/0/index
// and wraps it as a local wallet signer. It exists for development and tests;
// production wallets sign outside this process.
func WalletFromMnemonic(mnemonic, passphrase string, index uint32) (*crypto.KeySigner, error) {
	mnemonic = normalizeMnemonic(mnemonic)
	if mnemonic == "" {
		return nil, ErrMnemonicRequired
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	defer zeroBytes(seed)

	path := append(append([]uint32(nil), EthereumAccountPath...), index)
	raw, err := derivePath(seed, path)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(raw)

	key, err := crypto.PrivateKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDerivation, err)
	}
	return crypto.NewKeySigner(key), nil
}

func normalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(mnemonic), " ")
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
