package keys

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
)

func newWallet(t *testing.T) *crypto.KeySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate wallet key failed: %v", err)
	}
	return crypto.NewKeySigner(key)
}

func newBundleV2(t *testing.T) (PrivateKeyBundleV2, *crypto.KeySigner) {
	t.Helper()
	wallet := newWallet(t)
	b, err := NewPrivateKeyBundleV2(context.Background(), wallet)
	if err != nil {
		t.Fatalf("new bundle v2 failed: %v", err)
	}
	return b, wallet
}

func newBundleV1(t *testing.T) (PrivateKeyBundleV1, *crypto.KeySigner) {
	t.Helper()
	wallet := newWallet(t)
	b, err := NewPrivateKeyBundleV1(context.Background(), wallet)
	if err != nil {
		t.Fatalf("new bundle v1 failed: %v", err)
	}
	return b, wallet
}

func TestTripleDHSymmetryV2(t *testing.T) {
	alice, _ := newBundleV2(t)
	bob, _ := newBundleV2(t)
	alicePub, err := alice.PublicKeyBundle()
	if err != nil {
		t.Fatalf("alice public bundle failed: %v", err)
	}
	bobPub, err := bob.PublicKeyBundle()
	if err != nil {
		t.Fatalf("bob public bundle failed: %v", err)
	}

	senderSecret, err := alice.SharedSecret(bobPub, alicePub.PreKey, RoleSender)
	if err != nil {
		t.Fatalf("sender secret failed: %v", err)
	}
	recipientSecret, err := bob.SharedSecret(alicePub, bobPub.PreKey, RoleRecipient)
	if err != nil {
		t.Fatalf("recipient secret failed: %v", err)
	}
	if len(senderSecret) != 195 {
		t.Fatalf("secret must be 195 bytes, got %d", len(senderSecret))
	}
	if !bytes.Equal(senderSecret, recipientSecret) {
		t.Fatal("sender and recipient secrets differ")
	}
	sameRole, err := bob.SharedSecret(alicePub, bobPub.PreKey, RoleSender)
	if err != nil {
		t.Fatalf("same role secret failed: %v", err)
	}
	if bytes.Equal(senderSecret, sameRole) {
		t.Fatal("both parties using the sender role must not agree")
	}
	if !bytes.Equal(senderSecret[130:], sameRole[130:]) {
		t.Fatal("prekey-prekey term must be role independent")
	}
}

func TestTripleDHSymmetryV1(t *testing.T) {
	alice, _ := newBundleV1(t)
	bob, _ := newBundleV1(t)
	alicePub, err := alice.PublicKeyBundle()
	if err != nil {
		t.Fatalf("alice public bundle failed: %v", err)
	}
	bobPub, err := bob.PublicKeyBundle()
	if err != nil {
		t.Fatalf("bob public bundle failed: %v", err)
	}
	a, err := alice.SharedSecret(bobPub, alicePub.PreKey, RoleSender)
	if err != nil {
		t.Fatalf("sender secret failed: %v", err)
	}
	b, err := bob.SharedSecret(alicePub, bobPub.PreKey, RoleRecipient)
	if err != nil {
		t.Fatalf("recipient secret failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("v1 secrets differ")
	}
}

func TestSharedSecretRejectsInvalidRoleAndUnknownPreKey(t *testing.T) {
	alice, _ := newBundleV2(t)
	bob, _ := newBundleV2(t)
	alicePub, _ := alice.PublicKeyBundle()
	bobPub, _ := bob.PublicKeyBundle()

	if _, err := alice.SharedSecret(bobPub, alicePub.PreKey, Role(0)); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := alice.SharedSecret(bobPub, bobPub.PreKey, RoleSender); !errors.Is(err, ErrPreKeyNotFound) {
		t.Fatalf("expected ErrPreKeyNotFound, got %v", err)
	}
}

func TestSharedSecretRejectsForgedPeerPreKey(t *testing.T) {
	alice, _ := newBundleV2(t)
	bob, _ := newBundleV2(t)
	mallory, _ := newBundleV2(t)
	alicePub, _ := alice.PublicKeyBundle()
	bobPub, _ := bob.PublicKeyBundle()
	malloryPub, _ := mallory.PublicKeyBundle()

	forged := SignedPublicKeyBundle{IdentityKey: bobPub.IdentityKey, PreKey: malloryPub.PreKey}
	if _, err := alice.SharedSecret(forged, alicePub.PreKey, RoleSender); !errors.Is(err, ErrInvalidPreKeySignature) {
		t.Fatalf("expected ErrInvalidPreKeySignature, got %v", err)
	}
}

func TestWalletSignatureAddress(t *testing.T) {
	bundle, wallet := newBundleV2(t)
	addr, err := bundle.IdentityKey.PublicKey.WalletSignatureAddress()
	if err != nil {
		t.Fatalf("wallet signature address failed: %v", err)
	}
	if addr != wallet.Address() {
		t.Fatalf("recovered %s, want %s", addr, wallet.Address())
	}
	pre, _ := bundle.CurrentPreKey()
	if _, err := pre.PublicKey.WalletSignatureAddress(); !errors.Is(err, ErrNotWalletSigned) {
		t.Fatalf("expected ErrNotWalletSigned for prekey, got %v", err)
	}
}

func TestLegacyConversionPreservesSignedBytes(t *testing.T) {
	v1, wallet := newBundleV1(t)
	v2, err := PrivateKeyBundleV2FromLegacy(v1)
	if err != nil {
		t.Fatalf("convert bundle failed: %v", err)
	}
	if !bytes.Equal(v2.IdentityKey.PublicKey.KeyBytes, v1.IdentityKey.PublicKey.BytesToSign()) {
		t.Fatal("identity key bytes must equal the legacy signed bytes")
	}
	if !v2.IdentityKey.PublicKey.Signature.IsWallet() {
		t.Fatal("identity signature must be tagged as wallet after conversion")
	}
	if v2.PreKeys[0].PublicKey.Signature.IsWallet() {
		t.Fatal("prekey signature must stay a key signature")
	}
	if v2.IdentityKey.CreatedNs != v1.IdentityKey.Timestamp*1_000_000 {
		t.Fatalf("unexpected created ns %d for timestamp %d", v2.IdentityKey.CreatedNs, v1.IdentityKey.Timestamp)
	}
	addr, err := v2.IdentityKey.PublicKey.WalletSignatureAddress()
	if err != nil {
		t.Fatalf("wallet address after conversion failed: %v", err)
	}
	if addr != wallet.Address() {
		t.Fatalf("recovered %s, want %s", addr, wallet.Address())
	}
	pub, err := v2.PublicKeyBundle()
	if err != nil {
		t.Fatalf("public bundle failed: %v", err)
	}
	if err := pub.Validate(); err != nil {
		t.Fatalf("converted prekey must still verify: %v", err)
	}

	legacy, err := pub.ToLegacy()
	if err != nil {
		t.Fatalf("to legacy failed: %v", err)
	}
	if legacy.IdentityKey.Timestamp != v1.IdentityKey.PublicKey.Timestamp {
		t.Fatal("timestamp lost in round trip")
	}
	if !bytes.Equal(legacy.PreKey.BytesToSign(), v1.PreKeys[0].PublicKey.BytesToSign()) {
		t.Fatal("prekey bytes changed in round trip")
	}
}

func TestToLegacyRejectsNativeKeys(t *testing.T) {
	bundle, _ := newBundleV2(t)
	if _, err := bundle.IdentityKey.PublicKey.ToLegacy(); !errors.Is(err, ErrNotLegacyKey) {
		t.Fatalf("expected ErrNotLegacyKey, got %v", err)
	}
}

func TestBundleMarshalRoundTrip(t *testing.T) {
	bundle, _ := newBundleV2(t)
	decoded, err := UnmarshalPrivateKeyBundleV2(bundle.Marshal())
	if err != nil {
		t.Fatalf("unmarshal bundle failed: %v", err)
	}
	if !bytes.Equal(decoded.Marshal(), bundle.Marshal()) {
		t.Fatal("bundle encoding is not stable")
	}
	pub, _ := bundle.PublicKeyBundle()
	decodedPub, err := UnmarshalSignedPublicKeyBundle(pub.Marshal())
	if err != nil {
		t.Fatalf("unmarshal public bundle failed: %v", err)
	}
	if !decodedPub.Equal(pub) {
		t.Fatal("public bundle changed in round trip")
	}
}

func TestLegacyPublicBundleNeedsBothKeys(t *testing.T) {
	bundle, _ := newBundleV1(t)
	pub, err := bundle.PublicKeyBundle()
	if err != nil {
		t.Fatalf("public bundle failed: %v", err)
	}
	decoded, err := UnmarshalPublicKeyBundle(pub.Marshal())
	if err != nil {
		t.Fatalf("unmarshal legacy bundle failed: %v", err)
	}
	if !decoded.Equal(pub) {
		t.Fatal("legacy bundle changed in round trip")
	}
	e := wire.NewEncoder()
	e.Message(1, pub.IdentityKey.Marshal())
	if _, err := UnmarshalPublicKeyBundle(e.Result()); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey without a prekey, got %v", err)
	}
}

func TestContactBundleAcceptsLegacyEncoding(t *testing.T) {
	v1, wallet := newBundleV1(t)
	pub, err := v1.PublicKeyBundle()
	if err != nil {
		t.Fatalf("public bundle failed: %v", err)
	}

	contact, err := UnmarshalContactBundle(pub.Marshal())
	if err != nil {
		t.Fatalf("legacy contact decode failed: %v", err)
	}
	if contact.V1 == nil {
		t.Fatal("expected v1 contact from bare bundle")
	}
	addr, err := contact.WalletAddress()
	if err != nil {
		t.Fatalf("wallet address failed: %v", err)
	}
	if addr != wallet.Address() {
		t.Fatalf("recovered %s, want %s", addr, wallet.Address())
	}

	signed, err := contact.SignedBundle()
	if err != nil {
		t.Fatalf("signed bundle failed: %v", err)
	}
	versioned, err := UnmarshalContactBundle(ContactBundle{V2: &signed}.Marshal())
	if err != nil {
		t.Fatalf("versioned contact decode failed: %v", err)
	}
	if versioned.V2 == nil || !versioned.V2.Equal(signed) {
		t.Fatal("v2 contact changed in round trip")
	}
}

func TestEncryptedPrivateKeyBundleRoundTrip(t *testing.T) {
	bundle, wallet := newBundleV2(t)
	ctx := context.Background()
	data, err := EncryptPrivateKeyBundle(ctx, wallet, PrivateKeyBundle{V2: &bundle})
	if err != nil {
		t.Fatalf("encrypt bundle failed: %v", err)
	}
	decoded, err := DecryptPrivateKeyBundle(ctx, wallet, data)
	if err != nil {
		t.Fatalf("decrypt bundle failed: %v", err)
	}
	if decoded.V2 == nil || !bytes.Equal(decoded.V2.Marshal(), bundle.Marshal()) {
		t.Fatal("decrypted bundle differs")
	}

	other := newWallet(t)
	if _, err := DecryptPrivateKeyBundle(ctx, other, data); !errors.Is(err, crypto.ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed for other wallet, got %v", err)
	}
}
