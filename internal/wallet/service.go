package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/congo-pay/vault/internal/custody"
	"github.com/congo-pay/vault/internal/ledger"
	"github.com/congo-pay/vault/internal/logging"
	"github.com/congo-pay/vault/internal/notification"
)

// Service provisions vaults and keeps one live *custody.Vault per wallet so
// that every operation on a vault is serialised through the same instance.
// Spender windows live in this process, so one instance serves a ledger.
type Service struct {
	mu       sync.Mutex
	repo     Repository
	ledger   ledger.Ledger
	notifier notification.Notifier
	logger   *slog.Logger
	clock    custody.Clock
	vaults   map[string]*custody.Vault
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces the wall clock used for spending windows.
func WithClock(clock custody.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// NewService builds a wallet service instance.
func NewService(repo Repository, led ledger.Ledger, notifier notification.Notifier, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Service{
		repo:     repo,
		ledger:   led,
		notifier: notifier,
		logger:   logger,
		clock:    custody.SystemClock{},
		vaults:   make(map[string]*custody.Vault),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create provisions a vault owned by owner. The vault address is derived from
// the owner and its provisioning count, the way contract addresses are.
func (s *Service) Create(ctx context.Context, owner common.Address) (Wallet, error) {
	if owner == (common.Address{}) {
		return Wallet{}, custody.ErrInvalidAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.repo.CountByCreator(ctx, owner)
	if err != nil {
		return Wallet{}, fmt.Errorf("count wallets: %w", err)
	}
	wallet := Wallet{
		ID:        uuid.NewString(),
		Address:   crypto.CreateAddress(owner, nonce),
		Owner:     owner,
		Creator:   owner,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.Create(ctx, wallet); err != nil {
		return Wallet{}, err
	}

	s.logger.Info("wallet created",
		slog.String("wallet_id", wallet.ID),
		slog.String("address", wallet.Address.Hex()),
		slog.String("owner", owner.Hex()),
	)
	return wallet, nil
}

// Get retrieves wallet metadata.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// ListByOwner returns the wallets currently owned by owner.
func (s *Service) ListByOwner(ctx context.Context, owner common.Address) ([]Wallet, error) {
	return s.repo.ListByOwner(ctx, owner)
}

// Vault returns the live vault for a wallet, restoring its spender table from
// the repository on first use.
func (s *Service) Vault(ctx context.Context, id string) (*custody.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.vaults[id]; ok {
		return v, nil
	}
	wallet, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	spenders, err := s.repo.LoadSpenders(ctx, wallet.Address)
	if err != nil {
		return nil, fmt.Errorf("load spenders: %w", err)
	}
	v, err := custody.New(wallet.Address, wallet.Owner, custody.Deps{
		Ledger:   s.ledger,
		Store:    s.repo,
		Clock:    s.clock,
		Notifier: s.notifier,
		Logger:   s.logger,
		Spenders: spenders,
	})
	if err != nil {
		return nil, err
	}
	s.vaults[id] = v
	return v, nil
}

// Deposit moves funds from the caller's own ledger account into the vault.
func (s *Service) Deposit(ctx context.Context, id string, from, asset common.Address, amount *uint256.Int, clientTxID string) (custody.Receipt, error) {
	v, err := s.Vault(ctx, id)
	if err != nil {
		return custody.Receipt{}, err
	}
	return v.Deposit(ctx, from, asset, amount, clientTxID)
}

// HolderBalance reads any holder's balance of asset from the ledger.
func (s *Service) HolderBalance(ctx context.Context, asset, holder common.Address) (*uint256.Int, error) {
	return s.ledger.Balance(ctx, asset, holder)
}

// now is exposed to handlers for response timestamps.
func (s *Service) now() time.Time {
	return s.clock.Now()
}
