package custody

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/congo-pay/vault/internal/ledger"
	"github.com/congo-pay/vault/internal/notification"
)

func TestEmergencyWithdrawDrainsAsset(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, spender, 10)

	receipt, err := f.vault.EmergencyWithdraw(context.Background(), owner, testToken)
	if err != nil {
		t.Fatalf("emergency withdraw: %v", err)
	}
	if receipt.Total().Uint64() != 1_000 {
		t.Fatalf("expected full drain of 1000, got %s", receipt.Total().Dec())
	}
	if got := f.balance(t, testToken, vaultAddr); got != 0 {
		t.Fatalf("vault still holds %d", got)
	}
	if got := f.balance(t, testToken, owner); got != 1_000 {
		t.Fatalf("owner received %d", got)
	}
	if got := f.balance(t, ledger.NativeAsset, vaultAddr); got != 10_000 {
		t.Fatalf("other assets must stay, got %d", got)
	}
	if f.notes.Last().Kind != notification.KindEmergencyWithdraw {
		t.Fatalf("expected emergency notification, got %q", f.notes.Last().Kind)
	}

	again, err := f.vault.EmergencyWithdraw(context.Background(), owner, testToken)
	if err != nil {
		t.Fatalf("second withdraw: %v", err)
	}
	if len(again.Transfers) != 0 || again.TransactionID != "" {
		t.Fatalf("expected empty receipt, got %+v", again)
	}
}

func TestEmergencyWithdrawOwnerOnly(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, spender, 100_000)
	if _, err := f.vault.EmergencyWithdraw(context.Background(), spender, ledger.NativeAsset); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if got := f.balance(t, ledger.NativeAsset, vaultAddr); got != 10_000 {
		t.Fatalf("balance changed to %d", got)
	}
}

func TestOwnershipTransfer(t *testing.T) {
	f := newFixture(t)
	newOwner := common.HexToAddress("0x7000000000000000000000000000000000000007")

	if err := f.vault.TransferOwnership(context.Background(), spender, newOwner); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := f.vault.TransferOwnership(context.Background(), owner, common.Address{}); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
	if err := f.vault.TransferOwnership(context.Background(), owner, newOwner); err != nil {
		t.Fatalf("transfer ownership: %v", err)
	}
	if f.vault.Owner() != newOwner {
		t.Fatalf("owner not updated")
	}
	if f.store.owners[vaultAddr] != newOwner {
		t.Fatalf("owner not persisted")
	}

	if _, err := f.vault.EmergencyWithdraw(context.Background(), owner, ledger.NativeAsset); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("previous owner kept privileges: %v", err)
	}
	if _, err := f.send(newOwner, ledger.NativeAsset, recipient, 10_000); err != nil {
		t.Fatalf("new owner spend: %v", err)
	}
}

func TestOwnershipTransferToSelfIsNoop(t *testing.T) {
	f := newFixture(t)
	if err := f.vault.TransferOwnership(context.Background(), owner, owner); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if len(f.notes.Messages) != 0 {
		t.Fatalf("self transfer must not notify")
	}
}

func TestOwnershipTransferStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.fail = true
	if err := f.vault.TransferOwnership(context.Background(), owner, stranger); err == nil {
		t.Fatal("expected persistence error")
	}
	if f.vault.Owner() != owner {
		t.Fatal("owner changed despite failed persistence")
	}
}
