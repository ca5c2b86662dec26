package message

import (
	"errors"
	"fmt"

	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
	"github.com/xmtp/libxmtp-sub003/pkg/keys"
)

var (
	ErrInvalidHeader        = errors.New("invalid message header")
	ErrInvalidMessage       = errors.New("invalid message")
	ErrDecryptionFailed     = errors.New("message decryption failed")
	ErrInvalidSignedContent = errors.New("invalid signed content")
	// ErrPreKeyNotSignedByIdentity means the sender bundle inside a V2
	// message has a prekey its identity key did not sign.
	ErrPreKeyNotSignedByIdentity = errors.New("sender prekey not signed by sender identity")
	// ErrInvalidContentSignature means the payload signature does not
	// recover to the sender prekey.
	ErrInvalidContentSignature = errors.New("content signature does not match sender prekey")
	ErrTopicMismatch           = errors.New("message topic does not match conversation")
	ErrNotParticipant          = errors.New("viewer is not a participant")
	// ErrSenderNotWalletSigned means the sender identity key carries no
	// wallet signature, so no sender address can be recovered.
	ErrSenderNotWalletSigned = errors.New("sender identity not signed by a wallet")
)

// Stages of opening a V2 message, as reported by DecodeError.
const (
	StageHeader           = "header"
	StageTopic            = "topic"
	StageDecrypt          = "decrypt"
	StageSignedContent    = "signed_content"
	StageSenderPreKey     = "sender_prekey"
	StageContentSignature = "content_signature"
	StageSenderWallet     = "sender_wallet"
)

type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message at %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeError(stage string, err error) error {
	return &DecodeError{Stage: stage, Err: err}
}

// IsAuthError reports whether err means the message could not be
// authenticated, as opposed to a content or transport problem.
func IsAuthError(err error) bool {
	for _, target := range []error{
		ErrDecryptionFailed,
		ErrPreKeyNotSignedByIdentity,
		ErrInvalidContentSignature,
		ErrInvalidHeader,
		ErrTopicMismatch,
		ErrSenderNotWalletSigned,
		crypto.ErrDecryptionFailed,
		keys.ErrInvalidPreKeySignature,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
