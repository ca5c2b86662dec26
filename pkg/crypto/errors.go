package crypto

import "errors"

var (
	// ErrInvalidSignatureLength is returned when a compact signature body is
	// not exactly 64 bytes.
	ErrInvalidSignatureLength = errors.New("invalid signature length")

	// ErrInvalidRecoveryID is returned when the recovery id is outside 0..3.
	ErrInvalidRecoveryID = errors.New("invalid signature recovery id")

	// ErrMalformedSignature is returned when r or s are out of range or s is
	// not in the lower half of the curve order.
	ErrMalformedSignature = errors.New("malformed signature values")

	// ErrMissingSignature is returned when a signature union carries no variant.
	ErrMissingSignature = errors.New("signature has no variant")

	// ErrRecoveryFailed is returned when no public key can be recovered.
	ErrRecoveryFailed = errors.New("public key recovery failed")

	// ErrSignatureMismatch is returned when the recovered key differs from the
	// expected one.
	ErrSignatureMismatch = errors.New("signature does not match public key")

	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrInvalidPrivateKey = errors.New("invalid private key")

	// ErrDecryptionFailed is returned when AEAD authentication fails. It never
	// says whether the key, the nonce, the payload or the associated data was
	// wrong.
	ErrDecryptionFailed = errors.New("decryption failed")

	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrInvalidSecret     = errors.New("invalid secret")
)
