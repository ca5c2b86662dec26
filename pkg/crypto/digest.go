package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// WalletDigest is a keccak256 personal_sign digest. It is only produced by
// PersonalMessageDigest so it cannot be confused with a ContentDigest.
type WalletDigest [32]byte

// ContentDigest is a raw SHA-256 digest signed directly by a key.
type ContentDigest [32]byte

const personalMessagePrefix = "\x19Ethereum Signed Message:\n"

const (
	createIdentityHeader = "XMTP : Create Identity\n"
	enableIdentityHeader = "XMTP : Enable Identity\n"
	signaturesFooter     = "\n\nFor more info: https://xmtp.org/signatures/"
)

func PersonalMessageDigest(text string) WalletDigest {
	var d WalletDigest
	copy(d[:], gethcrypto.Keccak256([]byte(personalMessagePrefix+strconv.Itoa(len(text))+text)))
	return d
}

// SHA256Digest hashes the concatenation of parts.
func SHA256Digest(parts ...[]byte) ContentDigest {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var d ContentDigest
	copy(d[:], h.Sum(nil))
	return d
}

// CreateIdentityText is the text a wallet signs to vouch for an identity key.
func CreateIdentityText(keyBytes []byte) string {
	return createIdentityHeader + hex.EncodeToString(keyBytes) + signaturesFooter
}

// EnableIdentityText is the text a wallet signs to unlock a stored key bundle.
func EnableIdentityText(keyBytes []byte) string {
	return enableIdentityHeader + hex.EncodeToString(keyBytes) + signaturesFooter
}
