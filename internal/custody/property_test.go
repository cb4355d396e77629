package custody

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/vault/internal/ledger"
)

// TestRandomOperationsKeepInvariants drives a vault with a random mix of
// owner and spender operations and checks that funds are conserved and no
// spender ever exceeds its limit inside one window.
func TestRandomOperationsKeepInvariants(t *testing.T) {
	const (
		startBalance = 50_000
		limit        = 700
		steps        = 400
	)
	rng := rand.New(rand.NewSource(42))
	f := newFixture(t)
	ledger.SeedBalance(f.ledger, ledger.NativeAsset, vaultAddr, startBalance)
	f.authorize(t, spender, limit)

	holders := []common.Address{vaultAddr, owner, recipient, stranger}
	total := func() uint64 {
		var sum uint64
		for _, h := range holders {
			sum += f.balance(t, ledger.NativeAsset, h)
		}
		return sum
	}

	windowStart := genesis
	var windowSpent uint64
	ctx := context.Background()

	for i := 0; i < steps; i++ {
		switch op := rng.Intn(6); op {
		case 0, 1:
			amount := uint64(rng.Intn(300) + 1)
			_, err := f.send(spender, ledger.NativeAsset, recipient, amount)
			if err == nil {
				windowSpent += amount
			}
		case 2:
			a, b := uint64(rng.Intn(200)+1), uint64(rng.Intn(200)+1)
			_, err := f.vault.ExecuteBatch(ctx, spender, BatchInput{
				Asset:    ledger.NativeAsset,
				Targets:  []common.Address{recipient, stranger},
				Amounts:  amounts(a, b),
				Payloads: [][]byte{nil, nil},
			})
			if err == nil {
				windowSpent += a + b
			}
		case 3:
			_, _ = f.send(owner, ledger.NativeAsset, stranger, uint64(rng.Intn(100)+1))
		case 4:
			f.clock.Advance(time.Duration(rng.Intn(8)+1) * time.Hour)
		case 5:
			if rng.Intn(10) == 0 {
				receipt, err := f.vault.EmergencyWithdraw(ctx, owner, ledger.NativeAsset)
				require.NoError(t, err)
				if drained := receipt.Total(); !drained.IsZero() {
					_, err = f.vault.Deposit(ctx, owner, ledger.NativeAsset, drained, "")
					require.NoError(t, err)
				}
			}
		}

		auth, ok := f.vault.Authorization(spender)
		require.True(t, ok)
		if !auth.PeriodStart.Equal(windowStart) {
			windowStart = auth.PeriodStart
			windowSpent = auth.SpentToday.Uint64()
		}
		require.LessOrEqual(t, windowSpent, uint64(limit), "step %d", i)
		require.Equal(t, windowSpent, auth.SpentToday.Uint64(), "step %d", i)
		require.Equal(t, uint64(startBalance), total(), "step %d", i)
	}
}

func TestSpenderAuthorizationRemaining(t *testing.T) {
	auth := SpenderAuthorization{Authorized: true, DailyLimit: *uint256.NewInt(100), SpentToday: *uint256.NewInt(60)}
	require.Equal(t, uint64(40), auth.Remaining().Uint64())

	auth.SpentToday = *uint256.NewInt(150)
	require.True(t, auth.Remaining().IsZero())

	auth.Authorized = false
	auth.SpentToday = uint256.Int{}
	require.True(t, auth.Remaining().IsZero())
}
