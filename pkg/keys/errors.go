package keys

import "errors"

var (
	ErrMissingKey               = errors.New("missing key")
	ErrMissingSignature         = errors.New("key is not signed")
	ErrInvalidPreKeySignature   = errors.New("prekey is not signed by identity key")
	ErrPreKeyNotFound           = errors.New("no matching prekey in bundle")
	ErrNotWalletSigned          = errors.New("identity key is not signed by a wallet")
	ErrWalletSignatureMismatch  = errors.New("wallet signature does not recover to wallet address")
	ErrInvalidRole              = errors.New("invalid key agreement role")
	ErrNotLegacyKey             = errors.New("key was not converted from a legacy key")
	ErrUnsupportedBundleVersion = errors.New("unsupported key bundle version")
)
