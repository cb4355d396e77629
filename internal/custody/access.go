package custody

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/congo-pay/vault/internal/notification"
)

// SpendingWindow is the length of a spender's accounting period.
const SpendingWindow = 24 * time.Hour

// rollWindow resets the accounting window once it has fully elapsed. A clock
// reading before start never resets it.
func rollWindow(now, start time.Time, spent uint256.Int) (time.Time, uint256.Int) {
	if now.Sub(start) >= SpendingWindow {
		return now, uint256.Int{}
	}
	return start, spent
}

// SetAuthorizedSpender grants, updates or revokes a spender's allowance.
//
// Granting to an inactive or unknown spender opens a fresh window. Changing
// the limit of an active spender keeps the window and clamps the recorded
// spend to the new limit. Revoking keeps the record but makes it inert.
func (v *Vault) SetAuthorizedSpender(ctx context.Context, caller, spender common.Address, authorized bool, dailyLimit *uint256.Int) (SpenderAuthorization, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if caller != v.owner {
		return SpenderAuthorization{}, ErrUnauthorized
	}
	if spender == (common.Address{}) {
		return SpenderAuthorization{}, ErrInvalidAddress
	}

	now := v.clock.Now()
	prev, exists := v.spenders[spender]
	next := prev
	next.Spender = spender
	next.Authorized = authorized
	if dailyLimit != nil {
		next.DailyLimit = *dailyLimit
	} else {
		next.DailyLimit = uint256.Int{}
	}

	switch {
	case authorized && (!exists || !prev.Authorized):
		next.SpentToday = uint256.Int{}
		next.PeriodStart = now
	case authorized:
		if next.DailyLimit.Lt(&next.SpentToday) {
			next.SpentToday = next.DailyLimit
		}
	}

	if err := v.store.SaveSpender(ctx, v.address, next); err != nil {
		return SpenderAuthorization{}, fmt.Errorf("persist spender: %w", err)
	}
	v.spenders[spender] = next

	v.logger.Info("spender updated",
		slog.String("spender", spender.Hex()),
		slog.Bool("authorized", authorized),
		slog.String("daily_limit", next.DailyLimit.Dec()),
	)
	v.notify(ctx, notification.KindSpenderUpdated, spender,
		fmt.Sprintf("authorized=%t daily_limit=%s", authorized, next.DailyLimit.Dec()))
	return next, nil
}

// checkAndConsume decides whether caller may move amount at now. It returns
// the spender record as it must look after the spend and whether the caller
// is limited at all. Nothing is mutated; the caller commits the returned
// record together with the balance change.
func (v *Vault) checkAndConsume(caller common.Address, amount *uint256.Int, now time.Time) (SpenderAuthorization, bool, error) {
	if caller == v.owner {
		return SpenderAuthorization{}, false, nil
	}
	auth, ok := v.spenders[caller]
	if !ok || !auth.Authorized {
		return SpenderAuthorization{}, true, ErrNotAuthorized
	}

	auth.PeriodStart, auth.SpentToday = rollWindow(now, auth.PeriodStart, auth.SpentToday)

	var spent uint256.Int
	if _, overflow := spent.AddOverflow(&auth.SpentToday, amount); overflow || auth.DailyLimit.Lt(&spent) {
		remaining := auth.Remaining()
		return SpenderAuthorization{}, true, fmt.Errorf("%w: remaining %s", ErrLimitExceeded, remaining.Dec())
	}
	auth.SpentToday = spent
	return auth, true, nil
}
