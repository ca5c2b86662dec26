package securestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xmtp/libxmtp-sub003/pkg/keys"
)

var ErrNoKeys = errors.New("no key bundle stored")

// KeyStore keeps one private key bundle on disk, sealed with a passphrase.
type KeyStore struct {
	path       string
	passphrase string
}

func NewKeyStore(path, passphrase string) *KeyStore {
	return &KeyStore{path: strings.TrimSpace(path), passphrase: passphrase}
}

func (s *KeyStore) Path() string {
	return s.path
}

func (s *KeyStore) Save(bundle keys.PrivateKeyBundle) error {
	if s.path == "" {
		return errors.New("key store path is required")
	}
	data, err := Encrypt(s.passphrase, bundle.Marshal())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *KeyStore) Load() (keys.PrivateKeyBundle, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return keys.PrivateKeyBundle{}, ErrNoKeys
		}
		return keys.PrivateKeyBundle{}, err
	}
	plain, err := Decrypt(s.passphrase, data)
	if err != nil {
		return keys.PrivateKeyBundle{}, err
	}
	defer zeroBytes(plain)
	bundle, err := keys.UnmarshalPrivateKeyBundle(plain)
	if err != nil {
		return keys.PrivateKeyBundle{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return bundle, nil
}
