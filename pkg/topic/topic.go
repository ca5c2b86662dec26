package topic

import (
	"errors"
	"sort"
	"strings"
)

const (
	prefix  = "/xmtp/0/"
	postfix = "/proto"
)

var ErrInvalidTopic = errors.New("invalid topic")

func build(value string) string {
	return prefix + value + postfix
}

func Contact(walletAddr string) string {
	return build("contact-" + walletAddr)
}

func UserPrivateStoreKeyBundle(walletAddr string) string {
	return build("privatestore-" + walletAddr + "/key_bundle")
}

func UserIntro(walletAddr string) string {
	return build("intro-" + walletAddr)
}

func UserInvite(walletAddr string) string {
	return build("invite-" + walletAddr)
}

// DirectMessageV1 is the same for both participants.
func DirectMessageV1(a, b string) string {
	addrs := []string{a, b}
	sort.Strings(addrs)
	return build("dm-" + strings.Join(addrs, "-"))
}

func DirectMessageV2(id string) string {
	return build("m-" + id)
}

// Value strips the network prefix and encoding suffix.
func Value(topic string) (string, error) {
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, postfix) {
		return "", ErrInvalidTopic
	}
	v := strings.TrimSuffix(strings.TrimPrefix(topic, prefix), postfix)
	if v == "" {
		return "", ErrInvalidTopic
	}
	return v, nil
}

type Kind int

const (
	KindUnknown Kind = iota
	KindContact
	KindPrivateStore
	KindIntro
	KindInvite
	KindDirectMessageV1
	KindDirectMessageV2
)

func Classify(topic string) Kind {
	v, err := Value(topic)
	if err != nil {
		return KindUnknown
	}
	switch {
	case strings.HasPrefix(v, "contact-"):
		return KindContact
	case strings.HasPrefix(v, "privatestore-"):
		return KindPrivateStore
	case strings.HasPrefix(v, "intro-"):
		return KindIntro
	case strings.HasPrefix(v, "invite-"):
		return KindInvite
	case strings.HasPrefix(v, "dm-"):
		return KindDirectMessageV1
	case strings.HasPrefix(v, "m-"):
		return KindDirectMessageV2
	default:
		return KindUnknown
	}
}
