package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/xmtp/libxmtp-sub003/internal/securestore"
	"github.com/xmtp/libxmtp-sub003/pkg/client"
)

var ErrTopicConflict = errors.New("conversation topic already stored with different key material")

const snapshotVersion = 1

type snapshot struct {
	Version       int                            `json:"version"`
	Conversations map[string]client.Conversation `json:"conversations"`
}

// ConversationStore keeps V2 conversations so their key material survives
// restarts. With a passphrase the file is sealed by securestore.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]client.Conversation
	path          string
	secret        string
}

var _ client.ConversationStore = (*ConversationStore)(nil)

func NewConversationStore() *ConversationStore {
	return &ConversationStore{conversations: make(map[string]client.Conversation)}
}

func NewPersistentConversationStore(path, passphrase string) (*ConversationStore, error) {
	s := &ConversationStore{
		conversations: make(map[string]client.Conversation),
		path:          path,
		secret:        passphrase,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// SaveConversation is idempotent for an identical record. A second record
// for the same topic with other key material is rejected.
func (s *ConversationStore) SaveConversation(conv client.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.conversations[conv.Topic]; ok {
		if !bytes.Equal(existing.KeyMaterial, conv.KeyMaterial) {
			return ErrTopicConflict
		}
		if !conv.CreatedAt.Before(existing.CreatedAt) {
			return nil
		}
	}
	next := maps.Clone(s.conversations)
	next[conv.Topic] = conv
	if err := s.persistLocked(next); err != nil {
		return err
	}
	s.conversations = next
	return nil
}

func (s *ConversationStore) Conversation(topic string) (client.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[topic]
	return conv, ok
}

func (s *ConversationStore) ListConversations() ([]client.Conversation, error) {
	s.mu.RLock()
	out := make([]client.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, conv)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *ConversationStore) DeleteConversation(topic string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[topic]; !ok {
		return false, nil
	}
	next := maps.Clone(s.conversations)
	delete(next, topic)
	if err := s.persistLocked(next); err != nil {
		return false, err
	}
	s.conversations = next
	return true, nil
}

func (s *ConversationStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if s.secret != "" {
		data, err = securestore.Decrypt(s.secret, data)
		if err != nil {
			return err
		}
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	if snap.Conversations != nil {
		s.conversations = snap.Conversations
	}
	return nil
}

func (s *ConversationStore) persistLocked(conversations map[string]client.Conversation) error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(snapshot{Version: snapshotVersion, Conversations: conversations})
	if err != nil {
		return err
	}
	if s.secret != "" {
		data, err = securestore.Encrypt(s.secret, data)
		if err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
