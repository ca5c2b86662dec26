package client

import (
	"context"

	"github.com/xmtp/libxmtp-sub003/pkg/crypto"
	"github.com/xmtp/libxmtp-sub003/pkg/keys"
	"github.com/xmtp/libxmtp-sub003/pkg/topic"
)

// BackupKeys encrypts the private bundle under a fresh wallet signature and
// stores it on the wallet's private store topic.
func (c *Client) BackupKeys(ctx context.Context, wallet crypto.Signer) error {
	if !c.isSelf(wallet.Address()) {
		return ErrWalletMismatch
	}
	data, err := keys.EncryptPrivateKeyBundle(ctx, wallet, c.KeyBundle())
	if err != nil {
		return err
	}
	return c.publish(ctx, "private_store", c.envelope(topic.UserPrivateStoreKeyBundle(c.address), data))
}
