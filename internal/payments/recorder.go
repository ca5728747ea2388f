package payments

import (
	"context"
	"errors"
	"log"
	"time"

	"streamgate/internal/models"
	"streamgate/internal/money"
	"streamgate/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrStreamNotFound   = errors.New("stream not found")
	ErrMissingReference = errors.New("settlement reference is required")
	ErrMissingPayer     = errors.New("payer is required")
	ErrInvalidAmount    = errors.New("invalid payment amount")
)

type Ledger interface {
	GetStream(ctx context.Context, streamID string) (*models.Stream, error)
	GetPaymentByReference(ctx context.Context, settlementRef string) (*models.Payment, error)
	InsertPayment(ctx context.Context, payment *models.Payment) (bool, error)
	IncrementViewerCount(ctx context.Context, streamID string) error
	InsertAnalyticsEvent(ctx context.Context, event *models.AnalyticsEvent) error
}

type RecordRequest struct {
	StreamID      string
	PayerID       string
	SettlementRef string
	Amount        decimal.Decimal
	Asset         string
	Network       string
}

type Recorder struct {
	Ledger Ledger
}

// Record persists a claimed settlement exactly once. The returned bool
// reports "already verified": a repeat submission of the same settlement
// reference hands back the existing payment instead of erroring, whether
// the repeat arrives sequentially or races a concurrent insert. The
// uniqueness constraint on the reference is the sole arbiter.
func (r Recorder) Record(ctx context.Context, req RecordRequest) (*models.Payment, bool, error) {
	if req.SettlementRef == "" {
		return nil, false, ErrMissingReference
	}
	if req.PayerID == "" {
		return nil, false, ErrMissingPayer
	}
	if req.Amount.IsNegative() {
		return nil, false, ErrInvalidAmount
	}

	if existing, err := r.Ledger.GetPaymentByReference(ctx, req.SettlementRef); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	stream, err := r.Ledger.GetStream(ctx, req.StreamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, ErrStreamNotFound
		}
		return nil, false, err
	}

	asset := money.Lookup(req.Asset)
	atomic, err := money.ToAtomic(req.Amount, asset)
	if err != nil {
		return nil, false, ErrInvalidAmount
	}

	payment := &models.Payment{
		ID:            uuid.NewString(),
		StreamID:      stream.ID,
		PayerID:       req.PayerID,
		CreatorID:     stream.CreatorID,
		Amount:        req.Amount,
		AmountAtomic:  atomic,
		SettlementRef: req.SettlementRef,
		Asset:         asset.Symbol,
		AssetMint:     asset.Mint,
		Network:       req.Network,
		Status:        models.PaymentCompleted,
		CreatedAt:     time.Now().UTC(),
	}

	inserted, err := r.Ledger.InsertPayment(ctx, payment)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		// Lost the race to a concurrent submission of the same reference;
		// the row that won is the record.
		existing, err := r.Ledger.GetPaymentByReference(ctx, req.SettlementRef)
		if err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}

	// The payment row is the source of truth; the counter and the event are
	// best-effort enrichments and never fail the record.
	if err := r.Ledger.IncrementViewerCount(ctx, stream.ID); err != nil {
		log.Printf("viewer count increment failed stream=%s: %v", stream.ID, err)
	}
	event := &models.AnalyticsEvent{
		ID:        uuid.NewString(),
		StreamID:  stream.ID,
		UserID:    &payment.PayerID,
		EventType: models.EventPayment,
		Metadata: map[string]any{
			"amount":          req.Amount.String(),
			"transactionHash": req.SettlementRef,
		},
	}
	if err := r.Ledger.InsertAnalyticsEvent(ctx, event); err != nil {
		log.Printf("payment event insert failed stream=%s: %v", stream.ID, err)
	}

	return payment, false, nil
}
