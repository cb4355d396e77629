package wallet

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrWalletNotFound is returned when no vault matches the lookup.
var ErrWalletNotFound = errors.New("wallet not found")

// Wallet is the directory entry of a vault. Balances live in the ledger under
// Address; the spender table is stored alongside.
type Wallet struct {
	ID      string
	Address common.Address
	Owner   common.Address
	// Creator is the identity that provisioned the vault. Its per-creator
	// sequence seeds the address derivation and never changes.
	Creator   common.Address
	CreatedAt time.Time
}
