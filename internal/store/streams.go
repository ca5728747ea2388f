package store

import (
	"context"
	"database/sql"
	"time"

	"streamgate/internal/models"

	"github.com/shopspring/decimal"
)

const streamColumns = `stream_id, room_name, creator_id, title, description, category,
	thumbnail, price, payment_required, is_live, viewer_count,
	started_at, ended_at, created_at, updated_at`

func (s *Store) CreateStream(ctx context.Context, stream *models.Stream) error {
	var price *string
	if stream.Price != nil {
		v := stream.Price.String()
		price = &v
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO streams (
			stream_id, room_name, creator_id, title, description, category,
			thumbnail, price, payment_required, is_live, viewer_count, started_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		stream.ID,
		stream.RoomName,
		stream.CreatorID,
		stream.Title,
		stream.Description,
		stream.Category,
		stream.Thumbnail,
		price,
		stream.PaymentRequired,
		stream.IsLive,
		stream.ViewerCount,
		stream.StartedAt,
	)
	return err
}

func (s *Store) GetStream(ctx context.Context, streamID string) (*models.Stream, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+streamColumns+` FROM streams WHERE stream_id=$1`, streamID)
	return scanStream(row)
}

func (s *Store) GetStreamByRoom(ctx context.Context, roomName string) (*models.Stream, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+streamColumns+` FROM streams WHERE room_name=$1 ORDER BY started_at DESC LIMIT 1`, roomName)
	return scanStream(row)
}

func (s *Store) GetLiveStreamByCreator(ctx context.Context, creatorID string) (*models.Stream, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+streamColumns+` FROM streams
		WHERE creator_id=$1 AND is_live=TRUE
		ORDER BY started_at DESC LIMIT 1
	`, creatorID)
	return scanStream(row)
}

func (s *Store) ListLiveStreams(ctx context.Context) ([]*models.Stream, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+streamColumns+` FROM streams
		WHERE is_live=TRUE
		ORDER BY viewer_count DESC
	`)
	if err != nil {
		return nil, err
	}
	return scanStreams(rows)
}

func (s *Store) ListLiveStreamsByRooms(ctx context.Context, roomNames []string) ([]*models.Stream, error) {
	if len(roomNames) == 0 {
		return nil, nil
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+streamColumns+` FROM streams
		WHERE is_live=TRUE AND room_name = ANY($1)
		ORDER BY viewer_count DESC
	`, roomNames)
	if err != nil {
		return nil, err
	}
	return scanStreams(rows)
}

func (s *Store) SearchStreams(ctx context.Context, query string) ([]*models.Stream, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+streamColumns+` FROM streams
		WHERE is_live=TRUE AND (title ILIKE '%'||$1||'%' OR category ILIKE '%'||$1||'%')
		ORDER BY viewer_count DESC
	`, query)
	if err != nil {
		return nil, err
	}
	return scanStreams(rows)
}

// UpdateStreamInfo persists the mutable stream fields. Callers hand in the
// full updated row; ownership checks happen above this layer.
func (s *Store) UpdateStreamInfo(ctx context.Context, stream *models.Stream) error {
	var price *string
	if stream.Price != nil {
		v := stream.Price.String()
		price = &v
	}
	_, err := s.Pool.Exec(ctx, `
		UPDATE streams
		SET title=$2, description=$3, category=$4, thumbnail=$5,
			price=$6, payment_required=$7, updated_at=now()
		WHERE stream_id=$1
	`,
		stream.ID,
		stream.Title,
		stream.Description,
		stream.Category,
		stream.Thumbnail,
		price,
		stream.PaymentRequired,
	)
	return err
}

// EndStream flips a live stream to ended. Returns rows affected so callers
// can tell "already ended" from "ended now".
func (s *Store) EndStream(ctx context.Context, streamID string, endedAt time.Time) (int64, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE streams
		SET is_live=FALSE, ended_at=$2, updated_at=now()
		WHERE stream_id=$1 AND is_live=TRUE
	`, streamID, endedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

// IncrementViewerCount is the only mutation path for the counter; the
// increment happens in SQL so concurrent joins never lose updates.
func (s *Store) IncrementViewerCount(ctx context.Context, streamID string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE streams SET viewer_count = viewer_count + 1, updated_at=now()
		WHERE stream_id=$1
	`, streamID)
	return err
}

func scanStream(row rowScanner) (*models.Stream, error) {
	var stream models.Stream
	var description, category, thumbnail, price sql.NullString
	var endedAt sql.NullTime

	if err := row.Scan(
		&stream.ID,
		&stream.RoomName,
		&stream.CreatorID,
		&stream.Title,
		&description,
		&category,
		&thumbnail,
		&price,
		&stream.PaymentRequired,
		&stream.IsLive,
		&stream.ViewerCount,
		&stream.StartedAt,
		&endedAt,
		&stream.CreatedAt,
		&stream.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if description.Valid {
		stream.Description = &description.String
	}
	if category.Valid {
		stream.Category = &category.String
	}
	if thumbnail.Valid {
		stream.Thumbnail = &thumbnail.String
	}
	if price.Valid {
		d, err := decimal.NewFromString(price.String)
		if err != nil {
			return nil, err
		}
		stream.Price = &d
	}
	if endedAt.Valid {
		stream.EndedAt = &endedAt.Time
	}
	return &stream, nil
}

func scanStreams(rows interface {
	rowScanner
	Next() bool
	Close()
	Err() error
}) ([]*models.Stream, error) {
	defer rows.Close()
	var streams []*models.Stream
	for rows.Next() {
		stream, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		streams = append(streams, stream)
	}
	return streams, rows.Err()
}
