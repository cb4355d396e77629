package custody

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/congo-pay/vault/internal/ledger"
	"github.com/congo-pay/vault/internal/notification"
)

// Send moves amount of an asset from the vault to a recipient. Non-owners
// are gated by their daily allowance.
func (v *Vault) Send(ctx context.Context, caller common.Address, input SendInput) (Receipt, error) {
	if input.To == (common.Address{}) {
		return Receipt{}, ErrInvalidAddress
	}
	if input.Amount == nil || input.Amount.IsZero() {
		return Receipt{}, ErrInvalidAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	return v.spend(ctx, caller, input.Asset, "send", input.ClientTxID, []Transfer{{
		To:      input.To,
		Amount:  new(uint256.Int).Set(input.Amount),
		Payload: cloneBytes(input.Memo),
	}})
}

// ExecuteBatch applies every transfer of the batch or none of them. The total
// is validated against the vault balance and the caller's allowance before
// anything is posted.
func (v *Vault) ExecuteBatch(ctx context.Context, caller common.Address, input BatchInput) (Receipt, error) {
	n := len(input.Targets)
	if n == 0 || len(input.Amounts) != n || len(input.Payloads) != n {
		return Receipt{}, fmt.Errorf("%w: %d targets, %d amounts, %d payloads",
			ErrArityMismatch, len(input.Targets), len(input.Amounts), len(input.Payloads))
	}

	transfers := make([]Transfer, n)
	for i := range input.Targets {
		if input.Targets[i] == (common.Address{}) {
			return Receipt{}, fmt.Errorf("%w: target %d", ErrInvalidAddress, i)
		}
		if input.Amounts[i] == nil || input.Amounts[i].IsZero() {
			return Receipt{}, fmt.Errorf("%w: item %d", ErrInvalidAmount, i)
		}
		transfers[i] = Transfer{
			To:      input.Targets[i],
			Amount:  new(uint256.Int).Set(input.Amounts[i]),
			Payload: cloneBytes(input.Payloads[i]),
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	return v.spend(ctx, caller, input.Asset, "batch", input.ClientTxID, transfers)
}

// spend is the shared gate, validate, persist, post and commit sequence.
// v.mu must be held.
func (v *Vault) spend(ctx context.Context, caller, asset common.Address, op, clientTxID string, transfers []Transfer) (Receipt, error) {
	total := sumSaturating(transfers)
	now := v.clock.Now()

	prev := v.spenders[caller]
	next, limited, err := v.checkAndConsume(caller, total, now)
	if err != nil {
		return Receipt{}, err
	}

	balance, err := v.ledger.Balance(ctx, asset, v.address)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: read balance: %v", ErrTransferFailed, err)
	}
	if balance.Lt(total) {
		return Receipt{}, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balance.Dec(), total.Dec())
	}

	if limited {
		if err := v.store.SaveSpender(ctx, v.address, next); err != nil {
			return Receipt{}, fmt.Errorf("persist spender: %w", err)
		}
	}

	postings := make([]ledger.Posting, len(transfers))
	for i, t := range transfers {
		postings[i] = ledger.Posting{Asset: asset, From: v.address, To: t.To, Amount: t.Amount}
	}
	clientTxID = ensureClientTxID(clientTxID)
	res, err := v.ledger.TransferBatch(ctx, v.kind(op), clientTxID, postings)
	if err != nil {
		if limited {
			if restoreErr := v.store.SaveSpender(ctx, v.address, prev); restoreErr != nil {
				v.logger.Error("restore spender after failed transfer",
					slog.String("spender", caller.Hex()),
					slog.Any("error", restoreErr),
				)
			}
		}
		return Receipt{}, v.ledgerError(err)
	}

	if limited {
		v.spenders[caller] = next
	}

	receipt := Receipt{
		TransactionID: res.TransactionID,
		Vault:         v.address,
		Asset:         asset,
		Transfers:     transfers,
		CompletedAt:   now,
	}

	v.logger.Info("vault spend committed",
		slog.String("op", op),
		slog.String("caller", caller.Hex()),
		slog.String("asset", asset.Hex()),
		slog.String("total", total.Dec()),
		slog.Int("transfers", len(transfers)),
		slog.String("transaction_id", res.TransactionID),
	)

	kind := notification.KindTransfer
	if op == "batch" {
		kind = notification.KindBatchTransfer
	}
	for _, t := range transfers {
		body := fmt.Sprintf("You received %s of asset %s from vault %s", t.Amount.Dec(), asset.Hex(), v.address.Hex())
		if len(t.Payload) > 0 {
			body += " payload " + hexutil.Encode(t.Payload)
		}
		v.notify(ctx, kind, t.To, body)
	}
	return receipt, nil
}

// sumSaturating adds transfer amounts, pinning the result at the maximum
// value on overflow so it fails every limit and balance check.
func sumSaturating(transfers []Transfer) *uint256.Int {
	total := new(uint256.Int)
	for _, t := range transfers {
		if _, overflow := total.AddOverflow(total, t.Amount); overflow {
			return new(uint256.Int).SetAllOne()
		}
	}
	return total
}

func ensureClientTxID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
