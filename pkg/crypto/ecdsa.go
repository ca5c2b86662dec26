package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	PrivateKeySize = 32
	PublicKeySize  = 65
)

func GenerateKey() (*ecdsa.PrivateKey, error) {
	return gethcrypto.GenerateKey()
}

func PrivateKeyFromBytes(b []byte) (*ecdsa.PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidPrivateKey, len(b), PrivateKeySize)
	}
	key, err := gethcrypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return key, nil
}

func PrivateKeyBytes(key *ecdsa.PrivateKey) []byte {
	return gethcrypto.FromECDSA(key)
}

// PublicKeyFromBytes parses a 65-byte uncompressed secp256k1 point.
func PublicKeyFromBytes(b []byte) (*ecdsa.PublicKey, error) {
	if len(b) != PublicKeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidPublicKey, len(b), PublicKeySize)
	}
	pub, err := gethcrypto.UnmarshalPubkey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

func PublicKeyBytes(pub *ecdsa.PublicKey) []byte {
	return gethcrypto.FromECDSAPub(pub)
}

// Address returns the EIP-55 checksummed wallet address of pub.
func Address(pub *ecdsa.PublicKey) string {
	return gethcrypto.PubkeyToAddress(*pub).Hex()
}

// NormalizeAddress returns the checksummed form of a hex address.
func NormalizeAddress(addr string) (string, bool) {
	if !common.IsHexAddress(addr) {
		return "", false
	}
	return common.HexToAddress(addr).Hex(), true
}

// SignDigest signs a raw content digest. The digest is not hashed again.
func SignDigest(key *ecdsa.PrivateKey, digest ContentDigest) (Signature, error) {
	raw, err := gethcrypto.Sign(digest[:], key)
	if err != nil {
		return Signature{}, err
	}
	return newSignature(raw, false)
}

// SignPersonalMessage signs text with the wallet personal_sign convention.
func SignPersonalMessage(key *ecdsa.PrivateKey, text string) (Signature, error) {
	digest := PersonalMessageDigest(text)
	raw, err := gethcrypto.Sign(digest[:], key)
	if err != nil {
		return Signature{}, err
	}
	return newSignature(raw, true)
}

func RecoverContentSigner(sig Signature, digest ContentDigest) (*ecdsa.PublicKey, error) {
	return recoverPublicKey(sig, digest[:])
}

// RecoverWalletSigner only accepts personal_sign digests.
func RecoverWalletSigner(sig Signature, digest WalletDigest) (*ecdsa.PublicKey, error) {
	return recoverPublicKey(sig, digest[:])
}

// RecoverWalletAddress recovers the wallet address that signed text.
func RecoverWalletAddress(sig Signature, text string) (string, error) {
	pub, err := RecoverWalletSigner(sig, PersonalMessageDigest(text))
	if err != nil {
		return "", err
	}
	return Address(pub), nil
}

// VerifyDigest checks that sig over digest was produced by pub.
func VerifyDigest(sig Signature, digest ContentDigest, pub *ecdsa.PublicKey) error {
	if pub == nil {
		return ErrInvalidPublicKey
	}
	recovered, err := RecoverContentSigner(sig, digest)
	if err != nil {
		return err
	}
	if !bytes.Equal(PublicKeyBytes(recovered), PublicKeyBytes(pub)) {
		return ErrSignatureMismatch
	}
	return nil
}

func recoverPublicKey(sig Signature, digest []byte) (*ecdsa.PublicKey, error) {
	rs, err := sig.compact()
	if err != nil {
		return nil, err
	}
	raw, err := normalize(rs)
	if err != nil {
		return nil, err
	}
	pub, err := gethcrypto.SigToPub(digest, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}
	return pub, nil
}

func normalize(rs *RecoverableSignature) ([]byte, error) {
	if len(rs.Bytes) != SignatureBodySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidSignatureLength, len(rs.Bytes), SignatureBodySize)
	}
	if rs.Recovery > 3 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRecoveryID, rs.Recovery)
	}
	r := new(big.Int).SetBytes(rs.Bytes[:32])
	s := new(big.Int).SetBytes(rs.Bytes[32:])
	if !gethcrypto.ValidateSignatureValues(0, r, s, true) {
		return nil, ErrMalformedSignature
	}
	raw := make([]byte, SignatureSize)
	copy(raw, rs.Bytes)
	raw[SignatureBodySize] = byte(rs.Recovery)
	return raw, nil
}
