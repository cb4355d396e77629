package custody

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/congo-pay/vault/internal/ledger"
	"github.com/congo-pay/vault/internal/notification"
)

// EmergencyWithdraw drains the vault's whole balance of asset to the owner.
// Spending limits do not apply. Draining an empty balance is a no-op and
// returns a receipt without transfers.
func (v *Vault) EmergencyWithdraw(ctx context.Context, caller, asset common.Address) (Receipt, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if caller != v.owner {
		return Receipt{}, ErrUnauthorized
	}

	now := v.clock.Now()
	balance, err := v.ledger.Balance(ctx, asset, v.address)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: read balance: %v", ErrTransferFailed, err)
	}
	if balance.IsZero() {
		return Receipt{Vault: v.address, Asset: asset, CompletedAt: now}, nil
	}

	res, err := v.ledger.Transfer(ctx, v.kind("emergency"), uuid.NewString(), ledger.Posting{
		Asset: asset, From: v.address, To: v.owner, Amount: balance,
	})
	if err != nil {
		return Receipt{}, v.ledgerError(err)
	}

	v.logger.Warn("emergency withdrawal",
		slog.String("asset", asset.Hex()),
		slog.String("amount", balance.Dec()),
		slog.String("owner", v.owner.Hex()),
	)
	v.notify(ctx, notification.KindEmergencyWithdraw, v.owner,
		fmt.Sprintf("Emergency withdrawal of %s of asset %s from vault %s", balance.Dec(), asset.Hex(), v.address.Hex()))

	return Receipt{
		TransactionID: res.TransactionID,
		Vault:         v.address,
		Asset:         asset,
		Transfers:     []Transfer{{To: v.owner, Amount: balance}},
		CompletedAt:   now,
	}, nil
}
