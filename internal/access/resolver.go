package access

import (
	"context"
	"errors"

	"streamgate/internal/models"
	"streamgate/internal/store"

	"github.com/shopspring/decimal"
)

type Reason string

const (
	ReasonCreator         Reason = "creator"
	ReasonFree            Reason = "free"
	ReasonPaid            Reason = "paid"
	ReasonPaymentRequired Reason = "payment_required"
)

// Decision is computed fresh on every check and never cached: a payment can
// land between two calls and flip a denial into a grant.
type Decision struct {
	HasAccess       bool
	Reason          Reason
	PaymentRequired bool
	Price           decimal.Decimal
	PaymentID       string
}

type PaymentFinder interface {
	FindCompletedPayment(ctx context.Context, streamID, payerID string) (*models.Payment, error)
}

type Resolver struct {
	Payments PaymentFinder
}

// Resolve decides whether viewer may join stream. The evaluation order is
// fixed: creator, free, paid, then denied. A creator is never blocked from
// their own stream, whatever the price says. viewer may be nil for an
// anonymous request, which can still be granted on a free stream.
func (r Resolver) Resolve(ctx context.Context, viewer *models.User, stream *models.Stream) (Decision, error) {
	if viewer != nil && viewer.ID == stream.CreatorID {
		return Decision{HasAccess: true, Reason: ReasonCreator}, nil
	}

	if !stream.PaymentRequired {
		return Decision{HasAccess: true, Reason: ReasonFree}, nil
	}

	if viewer != nil {
		payment, err := r.Payments.FindCompletedPayment(ctx, stream.ID, viewer.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return Decision{}, err
		}
		if payment != nil {
			return Decision{
				HasAccess:       true,
				Reason:          ReasonPaid,
				PaymentRequired: true,
				PaymentID:       payment.ID,
			}, nil
		}
	}

	price := decimal.Zero
	if stream.Price != nil {
		price = *stream.Price
	}
	return Decision{
		HasAccess:       false,
		Reason:          ReasonPaymentRequired,
		PaymentRequired: true,
		Price:           price,
	}, nil
}
