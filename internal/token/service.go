package token

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/congo-pay/vault/internal/amount"
	"github.com/congo-pay/vault/internal/ledger"
	"github.com/congo-pay/vault/internal/logging"
	"github.com/congo-pay/vault/internal/notification"
)

const issueKind = "token_issue"

// Service is the token factory: it derives token addresses, mints the initial
// supply to the creator and indexes records by creator.
type Service struct {
	mu       sync.Mutex
	repo     Repository
	ledger   ledger.Ledger
	factory  common.Address
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds a token factory that derives addresses from factory.
func NewService(repo Repository, led ledger.Ledger, factory common.Address, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		repo:     repo,
		ledger:   led,
		factory:  factory,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func validate(creator common.Address, input CreateInput) (CreateInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Symbol = strings.TrimSpace(input.Symbol)
	switch {
	case creator == (common.Address{}):
		return input, fmt.Errorf("%w: creator is required", ErrInvalidTokenParameters)
	case input.Name == "":
		return input, fmt.Errorf("%w: name is required", ErrInvalidTokenParameters)
	case input.Symbol == "":
		return input, fmt.Errorf("%w: symbol is required", ErrInvalidTokenParameters)
	case len([]rune(input.Symbol)) > maxSymbolLength:
		return input, fmt.Errorf("%w: symbol longer than %d characters", ErrInvalidTokenParameters, maxSymbolLength)
	case input.Decimals > amount.MaxDecimals:
		return input, fmt.Errorf("%w: decimals above %d", ErrInvalidTokenParameters, amount.MaxDecimals)
	case input.InitialSupply == nil || input.InitialSupply.IsZero():
		return input, fmt.Errorf("%w: initial supply must be positive", ErrInvalidTokenParameters)
	}
	return input, nil
}

// CreateToken issues a new token with the full supply credited to creator.
// If minting fails the record is removed again.
func (s *Service) CreateToken(ctx context.Context, creator common.Address, input CreateInput) (Record, error) {
	input, err := validate(creator, input)
	if err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.repo.Count(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("read factory nonce: %w", err)
	}
	record := Record{
		Address:     crypto.CreateAddress(s.factory, nonce),
		Name:        input.Name,
		Symbol:      input.Symbol,
		Decimals:    input.Decimals,
		TotalSupply: new(uint256.Int).Set(input.InitialSupply),
		Creator:     creator,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return Record{}, fmt.Errorf("store token: %w", err)
	}

	if _, err := s.ledger.Issue(ctx, ledger.Issuance{
		Kind:       issueKind,
		ClientTxID: strings.ToLower(record.Address.Hex()),
		Asset:      record.Address,
		Holder:     creator,
		Amount:     record.TotalSupply,
		Status:     ledger.StatusCompleted,
	}); err != nil {
		if delErr := s.repo.Delete(ctx, record.Address); delErr != nil {
			s.logger.Error("remove token after failed issuance",
				slog.String("token", record.Address.Hex()),
				slog.Any("error", delErr),
			)
		}
		return Record{}, fmt.Errorf("issue supply: %w", err)
	}

	s.logger.Info("token created",
		slog.String("token", record.Address.Hex()),
		slog.String("symbol", record.Symbol),
		slog.String("creator", creator.Hex()),
		slog.String("supply", record.TotalSupply.Dec()),
	)
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindTokenCreated,
			Destination: creator.Hex(),
			Body: fmt.Sprintf("Token %s (%s) created at %s with supply %s",
				record.Name, record.Symbol, record.Address.Hex(), amount.Format(record.TotalSupply, record.Decimals)),
		})
	}
	return record, nil
}

// GetUserTokens lists the tokens created by creator in creation order. It
// never returns nil.
func (s *Service) GetUserTokens(ctx context.Context, creator common.Address) ([]Record, error) {
	records, err := s.repo.ListByCreator(ctx, creator)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Get returns the token at address.
func (s *Service) Get(ctx context.Context, address common.Address) (Record, error) {
	return s.repo.Get(ctx, address)
}
