package securestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
	"github.com/xmtp/libxmtp-sub003/pkg/keys"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	data, err := Encrypt("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	plain, err := Decrypt("pass", data)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if string(plain) != "secret" {
		t.Fatalf("unexpected plaintext: %q", string(plain))
	}
	if _, err := Decrypt("wrong", data); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed for wrong passphrase, got %v", err)
	}
}

func TestDecryptTamperedFailsDeterministically(t *testing.T) {
	data, err := Encrypt("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	data[len(data)-2] ^= 0xFF
	_, err = Decrypt("pass", data)
	if !errors.Is(err, ErrAuthFailed) && !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestHeaderIsAuthenticated(t *testing.T) {
	env, err := Seal("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	env.KDFTime++
	if _, err := Open("pass", env); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed after header change, got %v", err)
	}
}

func TestDecryptRejectsUnknownFormat(t *testing.T) {
	if _, err := Decrypt("pass", []byte(`{"version":1}`)); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
	if _, err := Encrypt("", []byte("x")); !errors.Is(err, ErrPassphraseRequired) {
		t.Fatalf("expected ErrPassphraseRequired, got %v", err)
	}
}

func TestKeyStoreSaveLoad(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate wallet failed: %v", err)
	}
	wallet := crypto.NewKeySigner(key)
	v1, err := keys.NewPrivateKeyBundleV1(context.Background(), wallet)
	if err != nil {
		t.Fatalf("new bundle failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "secure", "keys.bin")
	store := NewKeyStore(path, "pass")
	if _, err := store.Load(); !errors.Is(err, ErrNoKeys) {
		t.Fatalf("expected ErrNoKeys before save, got %v", err)
	}
	if err := store.Save(keys.PrivateKeyBundle{V1: &v1}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	info, err := os.Stat(filepath.Dir(path))
	if err != nil {
		t.Fatalf("stat dir failed: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0o700 {
		t.Fatalf("expected dir perm 0700, got %04o", info.Mode().Perm())
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.V1 == nil {
		t.Fatal("expected v1 bundle after load")
	}
	want, err := v1.PublicKeyBundle()
	if err != nil {
		t.Fatalf("public bundle failed: %v", err)
	}
	got, err := loaded.V1.PublicKeyBundle()
	if err != nil {
		t.Fatalf("loaded public bundle failed: %v", err)
	}
	if !got.Equal(want) {
		t.Fatal("loaded bundle does not match saved bundle")
	}

	if _, err := NewKeyStore(path, "other").Load(); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed with wrong passphrase, got %v", err)
	}
}
