package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var errBalanceOverflow = errors.New("balance overflow")

type inMemoryLedger struct {
	mu           sync.RWMutex
	balances     map[string]*uint256.Int
	issued       map[string]*uint256.Int
	transactions map[string]TransactionResult
	issuances    map[string]IssuanceResult
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests
// and development mode.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances:     make(map[string]*uint256.Int),
		issued:       make(map[string]*uint256.Int),
		transactions: make(map[string]TransactionResult),
		issuances:    make(map[string]IssuanceResult),
	}
}

func (l *inMemoryLedger) Balance(_ context.Context, asset, holder common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceOf(AccountCode(asset, holder)), nil
}

func (l *inMemoryLedger) balanceOf(code string) *uint256.Int {
	if bal, ok := l.balances[code]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

func (l *inMemoryLedger) Transfer(ctx context.Context, kind, clientTxID string, posting Posting) (TransactionResult, error) {
	return l.TransferBatch(ctx, kind, clientTxID, []Posting{posting})
}

func (l *inMemoryLedger) TransferBatch(_ context.Context, kind, clientTxID string, postings []Posting) (TransactionResult, error) {
	if err := validatePostings(postings); err != nil {
		return TransactionResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := txKey(kind, clientTxID)
	if res, exists := l.transactions[key]; exists {
		return res, ErrDuplicateTransaction
	}

	// Replay the postings against a scratch copy of the touched accounts so a
	// failing item leaves the real balances untouched.
	scratch := make(map[string]*uint256.Int)
	get := func(code string) *uint256.Int {
		if bal, ok := scratch[code]; ok {
			return bal
		}
		bal := l.balanceOf(code)
		scratch[code] = bal
		return bal
	}
	for _, p := range postings {
		from := get(AccountCode(p.Asset, p.From))
		if from.Lt(p.Amount) {
			return TransactionResult{}, ErrInsufficientFunds
		}
		from.Sub(from, p.Amount)
		to := get(AccountCode(p.Asset, p.To))
		if _, overflow := to.AddOverflow(to, p.Amount); overflow {
			return TransactionResult{}, errBalanceOverflow
		}
	}

	for code, bal := range scratch {
		l.balances[code] = bal
	}

	res := TransactionResult{TransactionID: key, Postings: len(postings)}
	l.transactions[key] = res
	return res, nil
}

func (l *inMemoryLedger) Issue(_ context.Context, req Issuance) (IssuanceResult, error) {
	if req.Amount == nil || req.Amount.IsZero() {
		return IssuanceResult{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := txKey(req.Kind, req.ClientTxID)
	if res, exists := l.issuances[key]; exists {
		return res, ErrDuplicateTransaction
	}

	holderCode := AccountCode(req.Asset, req.Holder)
	supplyCode := IssuanceAccountCode(req.Asset)

	holder := l.balanceOf(holderCode)
	if _, overflow := holder.AddOverflow(holder, req.Amount); overflow {
		return IssuanceResult{}, errBalanceOverflow
	}
	supply := new(uint256.Int)
	if current, ok := l.issued[supplyCode]; ok {
		supply.Set(current)
	}
	if _, overflow := supply.AddOverflow(supply, req.Amount); overflow {
		return IssuanceResult{}, errBalanceOverflow
	}

	l.balances[holderCode] = holder
	l.issued[supplyCode] = supply

	res := IssuanceResult{
		TransactionID: key,
		HolderBalance: new(uint256.Int).Set(holder),
		Status:        statusOrDefault(req.Status),
	}
	l.issuances[key] = res
	return res, nil
}

func (l *inMemoryLedger) Redeem(_ context.Context, req Issuance) (IssuanceResult, error) {
	if req.Amount == nil || req.Amount.IsZero() {
		return IssuanceResult{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := txKey(req.Kind, req.ClientTxID)
	if res, exists := l.issuances[key]; exists {
		return res, ErrDuplicateTransaction
	}

	holderCode := AccountCode(req.Asset, req.Holder)
	holder := l.balanceOf(holderCode)
	if holder.Lt(req.Amount) {
		return IssuanceResult{}, ErrInsufficientFunds
	}
	holder.Sub(holder, req.Amount)
	l.balances[holderCode] = holder

	supplyCode := IssuanceAccountCode(req.Asset)
	if supply, ok := l.issued[supplyCode]; ok {
		if supply.Lt(req.Amount) {
			supply.Clear()
		} else {
			supply.Sub(supply, req.Amount)
		}
	}

	res := IssuanceResult{
		TransactionID: key,
		HolderBalance: new(uint256.Int).Set(holder),
		Status:        statusOrDefault(req.Status),
	}
	l.issuances[key] = res
	return res, nil
}

func statusOrDefault(status string) string {
	if status == "" {
		return StatusCompleted
	}
	return status
}
