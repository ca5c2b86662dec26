package securestore

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/xmtp/libxmtp-sub003/internal/wire"
)

const (
	envelopeVersion = 1
	saltSize        = 16
	filePrefix      = "XMTPKEY1\n"
	kdfArgon2id     = "argon2id"

	defaultKDFTime     = 2
	defaultKDFMemoryKB = 64 * 1024
	defaultKDFThreads  = 1
)

var (
	ErrAuthFailed         = errors.New("securestore authentication failed")
	ErrInvalid            = errors.New("securestore envelope is invalid")
	ErrUnknownFormat      = errors.New("securestore data has unknown format")
	ErrPassphraseRequired = errors.New("securestore passphrase is required")
)

// Envelope is a passphrase-sealed blob. The KDF parameters travel with it so
// they can be raised later without breaking existing files; they are also
// bound into the AEAD as associated data.
type Envelope struct {
	Version     uint32
	KDF         string
	KDFTime     uint32
	KDFMemoryKB uint32
	KDFThreads  uint32
	Salt        []byte
	Nonce       []byte
	Ciphertext  []byte
}

func (e *Envelope) header() []byte {
	enc := wire.NewEncoder()
	enc.Uint32(1, e.Version)
	enc.String(2, e.KDF)
	enc.Uint32(3, e.KDFTime)
	enc.Uint32(4, e.KDFMemoryKB)
	enc.Uint32(5, e.KDFThreads)
	enc.Bytes(6, e.Salt)
	return enc.Result()
}

func (e *Envelope) Marshal() []byte {
	enc := wire.NewEncoder()
	enc.Message(1, e.header())
	enc.Bytes(2, e.Nonce)
	enc.Bytes(3, e.Ciphertext)
	return append([]byte(filePrefix), enc.Result()...)
}

func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	if !bytes.HasPrefix(data, []byte(filePrefix)) {
		return nil, ErrUnknownFormat
	}
	var env Envelope
	err := wire.Parse(data[len(filePrefix):], func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			var hdr []byte
			if hdr, err = f.Bytes(); err != nil {
				return err
			}
			return parseHeader(hdr, &env)
		case 2:
			env.Nonce, err = f.Bytes()
		case 3:
			env.Ciphertext, err = f.Bytes()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &env, nil
}

func parseHeader(b []byte, env *Envelope) error {
	return wire.Parse(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			env.Version, err = f.Uint32()
		case 2:
			env.KDF, err = f.String()
		case 3:
			env.KDFTime, err = f.Uint32()
		case 4:
			env.KDFMemoryKB, err = f.Uint32()
		case 5:
			env.KDFThreads, err = f.Uint32()
		case 6:
			env.Salt, err = f.Bytes()
		}
		return err
	})
}

func Seal(passphrase string, plaintext []byte) (*Envelope, error) {
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	env := &Envelope{
		Version:     envelopeVersion,
		KDF:         kdfArgon2id,
		KDFTime:     defaultKDFTime,
		KDFMemoryKB: defaultKDFMemoryKB,
		KDFThreads:  defaultKDFThreads,
		Salt:        make([]byte, saltSize),
		Nonce:       make([]byte, chacha20poly1305.NonceSizeX),
	}
	if _, err := rand.Read(env.Salt); err != nil {
		return nil, err
	}
	if _, err := rand.Read(env.Nonce); err != nil {
		return nil, err
	}
	key := deriveKey(passphrase, env)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	env.Ciphertext = aead.Seal(nil, env.Nonce, plaintext, env.header())
	return env, nil
}

func Open(passphrase string, env *Envelope) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	if env == nil || env.Version != envelopeVersion || env.KDF != kdfArgon2id {
		return nil, ErrInvalid
	}
	if len(env.Salt) != saltSize || len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrInvalid
	}
	if env.KDFTime == 0 || env.KDFMemoryKB == 0 || env.KDFThreads == 0 || env.KDFThreads > 255 {
		return nil, ErrInvalid
	}
	key := deriveKey(passphrase, env)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, env.header())
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

func Encrypt(passphrase string, plaintext []byte) ([]byte, error) {
	env, err := Seal(passphrase, plaintext)
	if err != nil {
		return nil, err
	}
	return env.Marshal(), nil
}

func Decrypt(passphrase string, data []byte) ([]byte, error) {
	env, err := UnmarshalEnvelope(data)
	if err != nil {
		return nil, err
	}
	return Open(passphrase, env)
}

func deriveKey(passphrase string, env *Envelope) []byte {
	return argon2.IDKey([]byte(passphrase), env.Salt, env.KDFTime, env.KDFMemoryKB, uint8(env.KDFThreads), chacha20poly1305.KeySize)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
