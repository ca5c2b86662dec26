package identity

import (
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"

	"github.com/xmtp/libxmtp-sub003/pkg/keys"
)

// InstallationID names one device's key bundle. It is stable for the
// lifetime of the identity key and never reveals the wallet address.
func InstallationID(bundle keys.SignedPublicKeyBundle) string {
	sum := blake2b.Sum256(bundle.IdentityKey.KeyBytes)
	return base58.Encode(sum[:20])
}
