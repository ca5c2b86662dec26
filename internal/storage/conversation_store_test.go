package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xmtp/libxmtp-sub003/internal/securestore"
	"github.com/xmtp/libxmtp-sub003/internal/waku"
	"github.com/xmtp/libxmtp-sub003/pkg/client"
	"github.com/xmtp/libxmtp-sub003/pkg/content"
	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
	"github.com/xmtp/libxmtp-sub003/pkg/invitation"
)

func sampleConversation(topic string, created time.Time) client.Conversation {
	return client.Conversation{
		Topic:       topic,
		PeerAddress: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Context:     &invitation.Context{ConversationID: "thread", Metadata: map[string]string{"k": "v"}},
		KeyMaterial: bytes.Repeat([]byte{7}, 32),
		CreatedAt:   created,
	}
}

func TestConversationStorePersistsEncrypted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.bin")
	store, err := NewPersistentConversationStore(path, "pass")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	conv := sampleConversation("/xmtp/0/m-abc/proto", time.Unix(10, 0).UTC())
	if err := store.SaveConversation(conv); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if bytes.Contains(raw, []byte("m-abc")) {
		t.Fatal("conversation file must not hold plaintext topics")
	}

	reopened, err := NewPersistentConversationStore(path, "pass")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, ok := reopened.Conversation(conv.Topic)
	if !ok {
		t.Fatal("expected stored conversation after reopen")
	}
	if !bytes.Equal(got.KeyMaterial, conv.KeyMaterial) || got.ConversationID() != "thread" || !got.CreatedAt.Equal(conv.CreatedAt) {
		t.Fatalf("unexpected conversation %+v", got)
	}

	if _, err := NewPersistentConversationStore(path, "wrong"); !errors.Is(err, securestore.ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed with wrong passphrase, got %v", err)
	}
}

func TestConversationStoreRejectsConflictingKeyMaterial(t *testing.T) {
	store := NewConversationStore()
	conv := sampleConversation("/xmtp/0/m-abc/proto", time.Unix(10, 0))
	if err := store.SaveConversation(conv); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.SaveConversation(conv); err != nil {
		t.Fatalf("identical save must be a no-op, got %v", err)
	}
	other := conv
	other.KeyMaterial = bytes.Repeat([]byte{9}, 32)
	if err := store.SaveConversation(other); !errors.Is(err, ErrTopicConflict) {
		t.Fatalf("expected ErrTopicConflict, got %v", err)
	}

	deleted, err := store.DeleteConversation(conv.Topic)
	if err != nil || !deleted {
		t.Fatalf("expected delete to succeed, got deleted=%v err=%v", deleted, err)
	}
	list, err := store.ListConversations()
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty store, got %d err=%v", len(list), err)
	}
}

func TestClientRestoresConversationsFromStore(t *testing.T) {
	ctx := context.Background()
	bus := waku.NewBus()
	startNode := func() *waku.Node {
		n := waku.NewNode(waku.DefaultConfig(), waku.WithBus(bus))
		if err := n.Start(ctx); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		t.Cleanup(func() { _ = n.Stop(ctx) })
		return n
	}
	newClient := func(store client.ConversationStore) *client.Client {
		key, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("generate key failed: %v", err)
		}
		c, err := client.Create(ctx, crypto.NewKeySigner(key), client.Options{Transport: startNode(), Store: store})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if err := c.PublishContact(ctx); err != nil {
			t.Fatalf("publish contact failed: %v", err)
		}
		return c
	}

	path := filepath.Join(t.TempDir(), "conversations.bin")
	store, err := NewPersistentConversationStore(path, "pass")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	alice := newClient(store)
	bob := newClient(nil)

	conv, err := alice.StartConversation(ctx, bob.Address(), nil)
	if err != nil {
		t.Fatalf("start conversation failed: %v", err)
	}

	reopened, err := NewPersistentConversationStore(path, "pass")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	restarted, err := client.New(alice.KeyBundle(), client.Options{Transport: startNode(), Store: reopened})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if _, ok := restarted.Conversation(conv.Topic); !ok {
		t.Fatal("restarted client must know the stored conversation")
	}
	if err := restarted.SendV2(ctx, conv.Topic, "after restart", content.ContentTypeText); err != nil {
		t.Fatalf("send after restart failed: %v", err)
	}

	if _, err := bob.ListInvitations(ctx); err != nil {
		t.Fatalf("list invitations failed: %v", err)
	}
	msgs, err := bob.Messages(ctx, conv.Topic)
	if err != nil {
		t.Fatalf("messages failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "after restart" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}
