package custody

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/congo-pay/vault/internal/ledger"
	"github.com/congo-pay/vault/internal/logging"
	"github.com/congo-pay/vault/internal/notification"
)

// Deps bundles the collaborators of a vault. Nil fields fall back to
// in-process defaults.
type Deps struct {
	Ledger   ledger.Ledger
	Store    Store
	Clock    Clock
	Notifier notification.Notifier
	Logger   *slog.Logger
	// Spenders restores a previously persisted authorization table.
	Spenders []SpenderAuthorization
}

// Vault is a single owner's custodial account. Balances are held in the host
// ledger under Address; the vault owns the owner identity and the spender
// table. Every public operation runs inside one critical section.
type Vault struct {
	mu       sync.Mutex
	address  common.Address
	owner    common.Address
	spenders map[common.Address]SpenderAuthorization

	ledger   ledger.Ledger
	store    Store
	clock    Clock
	notifier notification.Notifier
	logger   *slog.Logger
}

// New builds a vault held at address and owned by owner.
func New(address, owner common.Address, deps Deps) (*Vault, error) {
	if address == (common.Address{}) || owner == (common.Address{}) {
		return nil, ErrInvalidAddress
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if deps.Store == nil {
		deps.Store = nopStore{}
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	spenders := make(map[common.Address]SpenderAuthorization, len(deps.Spenders))
	for _, auth := range deps.Spenders {
		spenders[auth.Spender] = auth
	}

	return &Vault{
		address:  address,
		owner:    owner,
		spenders: spenders,
		ledger:   deps.Ledger,
		store:    deps.Store,
		clock:    deps.Clock,
		notifier: deps.Notifier,
		logger:   deps.Logger.With(slog.String("vault", address.Hex())),
	}, nil
}

// Address returns the holder address of the vault's balances.
func (v *Vault) Address() common.Address {
	return v.address
}

// Owner returns the current owner.
func (v *Vault) Owner() common.Address {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.owner
}

// Balance returns the vault's balance of asset.
func (v *Vault) Balance(ctx context.Context, asset common.Address) (*uint256.Int, error) {
	return v.ledger.Balance(ctx, asset, v.address)
}

// Authorization returns the stored record for spender, if any.
func (v *Vault) Authorization(spender common.Address) (SpenderAuthorization, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	auth, ok := v.spenders[spender]
	return auth, ok
}

// Spenders lists every stored authorization ordered by spender address.
func (v *Vault) Spenders() []SpenderAuthorization {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]SpenderAuthorization, 0, len(v.spenders))
	for _, auth := range v.spenders {
		out = append(out, auth)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Spender.Bytes(), out[j].Spender.Bytes()) < 0
	})
	return out
}

// Deposit credits amount of asset from the caller's own ledger account.
func (v *Vault) Deposit(ctx context.Context, from, asset common.Address, amount *uint256.Int, clientTxID string) (Receipt, error) {
	if amount == nil || amount.IsZero() {
		return Receipt{}, ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	clientTxID = ensureClientTxID(clientTxID)
	res, err := v.ledger.Transfer(ctx, v.kind("deposit"), clientTxID, ledger.Posting{
		Asset: asset, From: from, To: v.address, Amount: amount,
	})
	if err != nil {
		return Receipt{}, v.ledgerError(err)
	}

	receipt := Receipt{
		TransactionID: res.TransactionID,
		Vault:         v.address,
		Asset:         asset,
		Transfers:     []Transfer{{To: v.address, Amount: new(uint256.Int).Set(amount)}},
		CompletedAt:   v.clock.Now(),
	}
	v.notify(ctx, notification.KindDeposit, v.owner, fmt.Sprintf("%s deposited %s of asset %s", from.Hex(), amount.Dec(), asset.Hex()))
	return receipt, nil
}

func (v *Vault) kind(op string) string {
	return op + ":" + strings.ToLower(v.address.Hex())
}

// ledgerError translates host ledger failures into vault errors.
func (v *Vault) ledgerError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return ErrInsufficientBalance
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		return err
	case errors.Is(err, ledger.ErrInvalidAmount):
		return ErrInvalidAmount
	default:
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
}

func (v *Vault) notify(ctx context.Context, kind string, destination common.Address, body string) {
	if v.notifier == nil {
		return
	}
	_ = v.notifier.Send(ctx, notification.Message{Kind: kind, Destination: destination.Hex(), Body: body})
}
