package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientFunds occurs when the source account lacks available balance
	// to cover a requested posting.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the provided client transaction identifier
	// already exists and therefore the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrInvalidAmount rejects zero or missing posting amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

const (
	// StatusPendingSettlement indicates a card transaction awaiting settlement confirmation.
	StatusPendingSettlement = "pending_settlement"
	// StatusCompleted represents a settled transaction.
	StatusCompleted = "completed"
)

// NativeAsset identifies the chain's native currency. Token assets are
// identified by their contract address.
var NativeAsset = common.Address{}

// Posting moves Amount of Asset from one holder to another.
type Posting struct {
	Asset  common.Address
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

// Issuance creates or destroys supply of an asset for a single holder. The
// counterpart is the asset's issuance account, which may run negative.
type Issuance struct {
	Kind       string
	ClientTxID string
	Asset      common.Address
	Holder     common.Address
	Amount     *uint256.Int
	Status     string
}

// TransactionResult captures the outcome of a ledger posting.
type TransactionResult struct {
	TransactionID string
	Postings      int
}

// IssuanceResult captures the outcome of an issuance or redemption.
type IssuanceResult struct {
	TransactionID string
	HolderBalance *uint256.Int
	Status        string
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
// Native and token assets share every method.
type Ledger interface {
	Balance(ctx context.Context, asset, holder common.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, kind, clientTxID string, posting Posting) (TransactionResult, error)
	// TransferBatch applies every posting or none of them.
	TransferBatch(ctx context.Context, kind, clientTxID string, postings []Posting) (TransactionResult, error)
	Issue(ctx context.Context, req Issuance) (IssuanceResult, error)
	Redeem(ctx context.Context, req Issuance) (IssuanceResult, error)
}

// AccountCode returns the ledger account code holding asset for holder.
func AccountCode(asset, holder common.Address) string {
	return strings.ToLower(asset.Hex()) + ":" + strings.ToLower(holder.Hex())
}

// IssuanceAccountCode returns the account that offsets minted supply of asset.
func IssuanceAccountCode(asset common.Address) string {
	return "issuance:" + strings.ToLower(asset.Hex())
}

// ParseAddress validates a hex encoded account address.
func ParseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

func validatePostings(postings []Posting) error {
	if len(postings) == 0 {
		return ErrInvalidAmount
	}
	for _, p := range postings {
		if p.Amount == nil || p.Amount.IsZero() {
			return ErrInvalidAmount
		}
	}
	return nil
}

func txKey(kind, clientTxID string) string {
	return kind + ":" + clientTxID
}
