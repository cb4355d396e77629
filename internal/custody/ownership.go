package custody

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/congo-pay/vault/internal/notification"
)

// TransferOwnership hands the vault to newOwner. The new owner is exempt from
// spending limits from then on; any spender record it holds stays stored but
// is not consulted while it owns the vault.
func (v *Vault) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if caller != v.owner {
		return ErrUnauthorized
	}
	if newOwner == (common.Address{}) {
		return ErrInvalidAddress
	}
	if newOwner == v.owner {
		return nil
	}

	if err := v.store.SaveOwner(ctx, v.address, newOwner); err != nil {
		return fmt.Errorf("persist owner: %w", err)
	}
	previous := v.owner
	v.owner = newOwner

	v.logger.Info("ownership transferred",
		slog.String("previous_owner", previous.Hex()),
		slog.String("new_owner", newOwner.Hex()),
	)
	v.notify(ctx, notification.KindOwnershipTransferred, newOwner,
		fmt.Sprintf("You now own vault %s (previous owner %s)", v.address.Hex(), previous.Hex()))
	return nil
}
