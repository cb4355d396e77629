package funding

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/congo-pay/vault/internal/ledger"
	"github.com/congo-pay/vault/internal/logging"
	"github.com/congo-pay/vault/internal/notification"
)

var holder = common.HexToAddress("0x00000000000000000000000000000000000c0ffe")

func newService(t *testing.T, acquirer Acquirer) (*Service, ledger.Ledger, *notification.Recorder) {
	t.Helper()
	led := ledger.NewInMemory()
	notes := &notification.Recorder{}
	svc, err := NewService(led, acquirer, notes, logging.Discard())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, led, notes
}

func TestServiceCardIn(t *testing.T) {
	ctx := context.Background()
	service, led, notes := newService(t, nil)

	clientTxID := "dup"
	res, err := service.CardIn(ctx, CardInInput{
		Holder:     holder,
		Amount:     uint256.NewInt(10_000),
		CardNumber: "4111 1111 1111 1111",
		Expiry:     "12/29",
		CVV:        "123",
		ClientTxID: clientTxID,
	})
	if err != nil {
		t.Fatalf("card in: %v", err)
	}
	if res.Status != ledger.StatusPendingSettlement {
		t.Fatalf("unexpected status: %s", res.Status)
	}
	if res.Balance.Uint64() != 10_000 {
		t.Fatalf("expected balance 10000, got %s", res.Balance.Dec())
	}
	if res.AcquirerReference == "" {
		t.Fatal("expected acquirer reference")
	}
	if notes.Last().Kind != notification.KindCardIn {
		t.Fatalf("expected card-in notification, got %q", notes.Last().Kind)
	}

	if _, err := service.CardIn(ctx, CardInInput{
		Holder:     holder,
		Amount:     uint256.NewInt(10_000),
		CardNumber: "4111111111111111",
		ClientTxID: clientTxID,
	}); !errors.Is(err, ledger.ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	bal, err := led.Balance(ctx, ledger.NativeAsset, holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Uint64() != 10_000 {
		t.Fatalf("replay credited twice: %s", bal.Dec())
	}
}

func TestServiceCardOut(t *testing.T) {
	ctx := context.Background()
	service, led, _ := newService(t, StaticAcquirer{})
	ledger.SeedBalance(led, ledger.NativeAsset, holder, 5_000)

	res, err := service.CardOut(ctx, CardOutInput{
		Holder:     holder,
		Amount:     uint256.NewInt(2_000),
		CardNumber: "4111111111111111",
	})
	if err != nil {
		t.Fatalf("card out: %v", err)
	}
	if res.Balance.Uint64() != 3_000 {
		t.Fatalf("expected balance 3000, got %s", res.Balance.Dec())
	}

	_, err = service.CardOut(ctx, CardOutInput{
		Holder:     holder,
		Amount:     uint256.NewInt(10_000),
		CardNumber: "4111111111111111",
		ClientTxID: "excess",
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestServiceRejectsInvalidRequests(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newService(t, nil)

	cases := map[string]CardInInput{
		"zero holder":  {Amount: uint256.NewInt(1), CardNumber: "4111111111111111"},
		"zero amount":  {Holder: holder, Amount: new(uint256.Int), CardNumber: "4111111111111111"},
		"short card":   {Holder: holder, Amount: uint256.NewInt(1), CardNumber: "4111"},
		"letters card": {Holder: holder, Amount: uint256.NewInt(1), CardNumber: "4111abcd11111111"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := service.CardIn(ctx, input); !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected invalid request, got %v", err)
			}
		})
	}
}

func TestServiceCardOutDeclinedLeavesBalance(t *testing.T) {
	ctx := context.Background()
	service, led, _ := newService(t, StaticAcquirer{MaxAmount: uint256.NewInt(50)})
	ledger.SeedBalance(led, ledger.NativeAsset, holder, 500)

	if _, err := service.CardOut(ctx, CardOutInput{Holder: holder, Amount: uint256.NewInt(100), CardNumber: "4111111111111111"}); !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected decline, got %v", err)
	}
	bal, _ := led.Balance(ctx, ledger.NativeAsset, holder)
	if bal.Uint64() != 500 {
		t.Fatalf("declined payout moved funds: %s", bal.Dec())
	}
}
