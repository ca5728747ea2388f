package store

import (
	"context"
	"encoding/json"

	"streamgate/internal/models"

	"github.com/shopspring/decimal"
)

const paymentColumns = `payment_id, stream_id, payer_id, creator_id, amount, amount_atomic,
	settlement_ref, asset, asset_mint, network, status, created_at`

// InsertPayment relies on the UNIQUE constraint on settlement_ref to close
// the race between concurrent submissions of the same proof. The returned
// bool reports whether this call created the row; false means another
// insert with the same reference won.
func (s *Store) InsertPayment(ctx context.Context, payment *models.Payment) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		INSERT INTO payments (
			payment_id, stream_id, payer_id, creator_id, amount, amount_atomic,
			settlement_ref, asset, asset_mint, network, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (settlement_ref) DO NOTHING
	`,
		payment.ID,
		payment.StreamID,
		payment.PayerID,
		payment.CreatorID,
		payment.Amount.String(),
		payment.AmountAtomic,
		payment.SettlementRef,
		payment.Asset,
		payment.AssetMint,
		payment.Network,
		payment.Status,
	)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Store) GetPaymentByReference(ctx context.Context, settlementRef string) (*models.Payment, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE settlement_ref=$1`, settlementRef)
	return scanPayment(row)
}

func (s *Store) FindCompletedPayment(ctx context.Context, streamID, payerID string) (*models.Payment, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE stream_id=$1 AND payer_id=$2 AND status=$3
		ORDER BY created_at LIMIT 1
	`, streamID, payerID, models.PaymentCompleted)
	return scanPayment(row)
}

func (s *Store) ListPaymentsByCreator(ctx context.Context, creatorID string) ([]*models.Payment, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE creator_id=$1 AND status=$2
		ORDER BY created_at DESC
	`, creatorID, models.PaymentCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

func (s *Store) SumEarningsByCreator(ctx context.Context, creatorID string) (decimal.Decimal, int64, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount::numeric), 0)::text, COUNT(*)
		FROM payments WHERE creator_id=$1 AND status=$2
	`, creatorID, models.PaymentCompleted)

	var total string
	var count int64
	if err := row.Scan(&total, &count); err != nil {
		return decimal.Zero, 0, err
	}
	sum, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, 0, err
	}
	return sum, count, nil
}

func (s *Store) InsertAnalyticsEvent(ctx context.Context, event *models.AnalyticsEvent) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO analytics_events (event_id, stream_id, user_id, event_type, metadata)
		VALUES ($1,$2,$3,$4,$5)
	`,
		event.ID,
		event.StreamID,
		event.UserID,
		event.EventType,
		raw,
	)
	return err
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var payment models.Payment
	var amount string

	if err := row.Scan(
		&payment.ID,
		&payment.StreamID,
		&payment.PayerID,
		&payment.CreatorID,
		&amount,
		&payment.AmountAtomic,
		&payment.SettlementRef,
		&payment.Asset,
		&payment.AssetMint,
		&payment.Network,
		&payment.Status,
		&payment.CreatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}
	payment.Amount = parsed
	return &payment, nil
}
