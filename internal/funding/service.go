package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/congo-pay/vault/internal/ledger"
	"github.com/congo-pay/vault/internal/notification"
)

const (
	kindCardIn  = "card_in"
	kindCardOut = "card_out"
)

// ErrInvalidRequest rejects malformed card details or amounts.
var ErrInvalidRequest = errors.New("invalid funding request")

// Service mints and burns the native asset against card movements approved by
// the acquirer connector.
type Service struct {
	ledger   ledger.Ledger
	acquirer Acquirer
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService prepares a funding service. A nil acquirer falls back to the static simulator.
func NewService(ledgerBackend ledger.Ledger, acquirer Acquirer, notifier notification.Notifier, logger *slog.Logger) (*Service, error) {
	if ledgerBackend == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if acquirer == nil {
		acquirer = StaticAcquirer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledgerBackend, acquirer: acquirer, notifier: notifier, logger: logger}, nil
}

// CardInInput captures the required data for a card top-up.
type CardInInput struct {
	Holder     common.Address
	Amount     *uint256.Int
	ClientTxID string
	CardNumber string
	Expiry     string
	CVV        string
}

// CardOutInput captures the required data for a card withdrawal.
type CardOutInput struct {
	Holder     common.Address
	Amount     *uint256.Int
	ClientTxID string
	CardNumber string
}

// FundingResult represents the domain outcome of a card operation.
type FundingResult struct {
	TransactionID     string
	Status            string
	Balance           *uint256.Int
	AcquirerReference string
	CompletedAt       time.Time
}

// CardIn authorizes a card top-up and credits the holder with native funds.
func (s *Service) CardIn(ctx context.Context, input CardInInput) (FundingResult, error) {
	if err := validate(input.Holder, input.Amount, input.CardNumber); err != nil {
		return FundingResult{}, err
	}
	if input.ClientTxID == "" {
		input.ClientTxID = uuid.NewString()
	}

	decision, err := s.acquirer.AuthorizeCardIn(ctx, CardInAuthorization{
		CardNumber: input.CardNumber,
		Expiry:     input.Expiry,
		CVV:        input.CVV,
		Amount:     input.Amount,
	})
	if err != nil {
		return FundingResult{}, err
	}

	res, err := s.ledger.Issue(ctx, ledger.Issuance{
		Kind:       kindCardIn,
		ClientTxID: input.ClientTxID,
		Asset:      ledger.NativeAsset,
		Holder:     input.Holder,
		Amount:     input.Amount,
		Status:     ledger.StatusPendingSettlement,
	})
	result := toResult(res, decision)
	if err != nil {
		return result, err
	}

	s.logger.Info("card top-up recorded",
		slog.String("holder", input.Holder.Hex()),
		slog.String("amount", input.Amount.Dec()),
		slog.String("transaction_id", res.TransactionID))
	s.notify(ctx, notification.KindCardIn, input.Holder, fmt.Sprintf("card top-up of %s pending settlement", input.Amount.Dec()))
	return result, nil
}

// CardOut authorizes a payout to the provided card and debits the holder.
func (s *Service) CardOut(ctx context.Context, input CardOutInput) (FundingResult, error) {
	if err := validate(input.Holder, input.Amount, input.CardNumber); err != nil {
		return FundingResult{}, err
	}
	if input.ClientTxID == "" {
		input.ClientTxID = uuid.NewString()
	}

	balance, err := s.ledger.Balance(ctx, ledger.NativeAsset, input.Holder)
	if err != nil {
		return FundingResult{}, err
	}
	if balance.Lt(input.Amount) {
		return FundingResult{}, ledger.ErrInsufficientFunds
	}

	decision, err := s.acquirer.AuthorizeCardOut(ctx, CardOutAuthorization{
		CardNumber: input.CardNumber,
		Amount:     input.Amount,
	})
	if err != nil {
		return FundingResult{}, err
	}

	res, err := s.ledger.Redeem(ctx, ledger.Issuance{
		Kind:       kindCardOut,
		ClientTxID: input.ClientTxID,
		Asset:      ledger.NativeAsset,
		Holder:     input.Holder,
		Amount:     input.Amount,
		Status:     ledger.StatusCompleted,
	})
	result := toResult(res, decision)
	if err != nil {
		return result, err
	}

	s.logger.Info("card payout recorded",
		slog.String("holder", input.Holder.Hex()),
		slog.String("amount", input.Amount.Dec()),
		slog.String("transaction_id", res.TransactionID))
	s.notify(ctx, notification.KindCardOut, input.Holder, fmt.Sprintf("card payout of %s sent", input.Amount.Dec()))
	return result, nil
}

func (s *Service) notify(ctx context.Context, kind string, holder common.Address, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, notification.Message{Kind: kind, Destination: holder.Hex(), Body: body}); err != nil {
		s.logger.Warn("funding notification failed", slog.String("kind", kind), slog.Any("error", err))
	}
}

func toResult(res ledger.IssuanceResult, decision AuthorizationDecision) FundingResult {
	return FundingResult{
		TransactionID:     res.TransactionID,
		Status:            res.Status,
		Balance:           res.HolderBalance,
		AcquirerReference: decision.Reference,
		CompletedAt:       time.Now().UTC(),
	}
}

func validate(holder common.Address, amount *uint256.Int, card string) error {
	if holder == (common.Address{}) {
		return fmt.Errorf("%w: holder address is required", ErrInvalidRequest)
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	return validateCardNumber(card)
}

func validateCardNumber(card string) error {
	digits := strings.ReplaceAll(card, " ", "")
	if len(digits) < 12 || len(digits) > 19 {
		return fmt.Errorf("%w: card number must be between 12 and 19 digits", ErrInvalidRequest)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: card number must be numeric", ErrInvalidRequest)
		}
	}
	return nil
}
