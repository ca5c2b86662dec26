package crypto

import (
	"crypto/ecdsa"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ECDH returns the uncompressed 65-byte shared point priv*pub.
func ECDH(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) ([]byte, error) {
	if priv == nil {
		return nil, ErrInvalidPrivateKey
	}
	if pub == nil {
		return nil, ErrInvalidPublicKey
	}
	peer, err := secp256k1.ParsePubKey(PublicKeyBytes(pub))
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	sk := secp256k1.PrivKeyFromBytes(PrivateKeyBytes(priv))
	defer sk.Zero()

	var point, shared secp256k1.JacobianPoint
	peer.AsJacobian(&point)
	secp256k1.ScalarMultNonConst(&sk.Key, &point, &shared)
	shared.ToAffine()
	return secp256k1.NewPublicKey(&shared.X, &shared.Y).SerializeUncompressed(), nil
}
