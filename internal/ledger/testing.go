package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SeedBalance is a test helper that seeds the balance for an account when using the in-memory ledger.
func SeedBalance(l Ledger, asset, holder common.Address, amount uint64) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[AccountCode(asset, holder)] = uint256.NewInt(amount)
	}
}

// IssuedSupply reports the outstanding minted supply of asset held by the
// in-memory ledger. Other backends report zero.
func IssuedSupply(l Ledger, asset common.Address) *uint256.Int {
	out := new(uint256.Int)
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.RLock()
		defer mem.mu.RUnlock()
		if supply, ok := mem.issued[IssuanceAccountCode(asset)]; ok {
			out.Set(supply)
		}
	}
	return out
}
