package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/congo-pay/vault/internal/amount"
	"github.com/congo-pay/vault/internal/config"
	"github.com/congo-pay/vault/internal/ledger"
)

const genesisKind = "genesis"

// SeedGenesis credits the configured allocations. Each allocation is keyed by
// holder and asset so restarts do not mint twice.
func SeedGenesis(ctx context.Context, led ledger.Ledger, allocations []config.Allocation, logger *slog.Logger) error {
	for i, alloc := range allocations {
		holder, err := ledger.ParseAddress(alloc.Address)
		if err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
		asset := ledger.NativeAsset
		if raw := strings.TrimSpace(alloc.Asset); raw != "" && !strings.EqualFold(raw, "native") {
			if asset, err = ledger.ParseAddress(raw); err != nil {
				return fmt.Errorf("genesis[%d]: %w", i, err)
			}
		}
		value, err := amount.ParseBase(alloc.Amount)
		if err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}

		_, err = led.Issue(ctx, ledger.Issuance{
			Kind:       genesisKind,
			ClientTxID: genesisTxID(asset, holder),
			Asset:      asset,
			Holder:     holder,
			Amount:     value,
			Status:     ledger.StatusCompleted,
		})
		switch {
		case errors.Is(err, ledger.ErrDuplicateTransaction):
			continue
		case err != nil:
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
		logger.Info("genesis allocation issued",
			slog.String("holder", holder.Hex()),
			slog.String("asset", asset.Hex()),
			slog.String("amount", value.Dec()))
	}
	return nil
}

func genesisTxID(asset, holder common.Address) string {
	return ledger.AccountCode(asset, holder)
}
