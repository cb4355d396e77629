package custody

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SpenderAuthorization is the allowance a vault owner grants to another
// identity. Amounts are held by value so copies never alias.
type SpenderAuthorization struct {
	Spender     common.Address
	Authorized  bool
	DailyLimit  uint256.Int
	SpentToday  uint256.Int
	PeriodStart time.Time
}

// Remaining returns how much the spender may still move in the current window.
func (a SpenderAuthorization) Remaining() *uint256.Int {
	if !a.Authorized || a.DailyLimit.Lt(&a.SpentToday) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(&a.DailyLimit, &a.SpentToday)
}

// Transfer is one outgoing movement of a receipt.
type Transfer struct {
	To      common.Address
	Amount  *uint256.Int
	Payload []byte
}

// Receipt describes a committed vault operation.
type Receipt struct {
	TransactionID string
	Vault         common.Address
	Asset         common.Address
	Transfers     []Transfer
	CompletedAt   time.Time
}

// Total sums the receipt's transfer amounts.
func (r Receipt) Total() *uint256.Int {
	total := new(uint256.Int)
	for _, t := range r.Transfers {
		total.Add(total, t.Amount)
	}
	return total
}

// SendInput captures a single payout.
type SendInput struct {
	Asset      common.Address
	To         common.Address
	Amount     *uint256.Int
	ClientTxID string
	Memo       []byte
}

// BatchInput captures an all-or-nothing set of payouts of one asset.
type BatchInput struct {
	Asset      common.Address
	Targets    []common.Address
	Amounts    []*uint256.Int
	Payloads   [][]byte
	ClientTxID string
}

// Store persists the parts of a vault that must survive restarts. Balances
// live in the host ledger and are not part of it.
type Store interface {
	SaveSpender(ctx context.Context, vault common.Address, auth SpenderAuthorization) error
	SaveOwner(ctx context.Context, vault, owner common.Address) error
}

type nopStore struct{}

func (nopStore) SaveSpender(context.Context, common.Address, SpenderAuthorization) error {
	return nil
}

func (nopStore) SaveOwner(context.Context, common.Address, common.Address) error {
	return nil
}

// Clock supplies the current time for the spending window.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ManualClock is a settable clock for tests and simulations.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock starts a manual clock at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the clock's current reading.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
