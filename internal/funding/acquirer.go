package funding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// ErrDeclined is returned when the card processor refuses an authorization.
var ErrDeclined = errors.New("card authorization declined")

const decisionApproved = "approved"

// Acquirer authorizes card movements with an external processor before the
// ledger is touched.
type Acquirer interface {
	AuthorizeCardIn(ctx context.Context, input CardInAuthorization) (AuthorizationDecision, error)
	AuthorizeCardOut(ctx context.Context, input CardOutAuthorization) (AuthorizationDecision, error)
}

type AuthorizationDecision struct {
	Reference string
	Status    string
}

type CardInAuthorization struct {
	CardNumber string
	Expiry     string
	CVV        string
	Amount     *uint256.Int
}

type CardOutAuthorization struct {
	CardNumber string
	Amount     *uint256.Int
}

// StaticAcquirer approves every authorization up to MaxAmount. A nil
// MaxAmount means no cap.
type StaticAcquirer struct {
	MaxAmount *uint256.Int
}

func (a StaticAcquirer) AuthorizeCardIn(_ context.Context, input CardInAuthorization) (AuthorizationDecision, error) {
	return a.decide(input.Amount)
}

func (a StaticAcquirer) AuthorizeCardOut(_ context.Context, input CardOutAuthorization) (AuthorizationDecision, error) {
	return a.decide(input.Amount)
}

func (a StaticAcquirer) decide(value *uint256.Int) (AuthorizationDecision, error) {
	if a.MaxAmount != nil && value != nil && value.Gt(a.MaxAmount) {
		return AuthorizationDecision{}, fmt.Errorf("%w: amount %s above processor cap %s", ErrDeclined, value.Dec(), a.MaxAmount.Dec())
	}
	return AuthorizationDecision{Reference: "acq_" + uuid.NewString(), Status: decisionApproved}, nil
}
