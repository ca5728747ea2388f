package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"streamgate/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrMissingTitle = errors.New("title is required")
	ErrInvalidPrice = errors.New("price must not be negative")
	ErrNotOwner     = errors.New("only the stream creator can do this")
	ErrStreamEnded  = errors.New("stream already ended")
)

type StreamStore interface {
	CreateStream(ctx context.Context, stream *models.Stream) error
	GetStream(ctx context.Context, streamID string) (*models.Stream, error)
	GetStreamByRoom(ctx context.Context, roomName string) (*models.Stream, error)
	GetLiveStreamByCreator(ctx context.Context, creatorID string) (*models.Stream, error)
	ListLiveStreams(ctx context.Context) ([]*models.Stream, error)
	SearchStreams(ctx context.Context, query string) ([]*models.Stream, error)
	UpdateStreamInfo(ctx context.Context, stream *models.Stream) error
	EndStream(ctx context.Context, streamID string, endedAt time.Time) (int64, error)
	IncrementViewerCount(ctx context.Context, streamID string) error
	InsertAnalyticsEvent(ctx context.Context, event *models.AnalyticsEvent) error
}

type StreamService struct {
	Store StreamStore
}

type CreateStreamParams struct {
	RoomName    string
	Title       string
	Description *string
	Category    *string
	Thumbnail   *string
	Price       *decimal.Decimal
}

// CreateStream registers a new live broadcast. paymentRequired is derived
// from the price: any positive price gates the stream.
func (s StreamService) CreateStream(ctx context.Context, creator *models.User, params CreateStreamParams) (*models.Stream, error) {
	if strings.TrimSpace(params.Title) == "" {
		return nil, ErrMissingTitle
	}
	if params.Price != nil && params.Price.IsNegative() {
		return nil, ErrInvalidPrice
	}

	roomName := params.RoomName
	if roomName == "" {
		roomName = "room_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}

	var price *decimal.Decimal
	if params.Price != nil && params.Price.IsPositive() {
		price = params.Price
	}

	now := time.Now().UTC()
	stream := &models.Stream{
		ID:              uuid.NewString(),
		RoomName:        roomName,
		CreatorID:       creator.ID,
		Title:           params.Title,
		Description:     params.Description,
		Category:        params.Category,
		Thumbnail:       params.Thumbnail,
		Price:           price,
		PaymentRequired: price != nil,
		IsLive:          true,
		StartedAt:       now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Store.CreateStream(ctx, stream); err != nil {
		return nil, err
	}
	return stream, nil
}

// StopStream ends the creator's live broadcast for roomName. Only the
// owning creator may stop it.
func (s StreamService) StopStream(ctx context.Context, creator *models.User, roomName string) (*models.Stream, error) {
	stream, err := s.Store.GetStreamByRoom(ctx, roomName)
	if err != nil {
		return nil, err
	}
	if stream.CreatorID != creator.ID {
		return nil, ErrNotOwner
	}

	endedAt := time.Now().UTC()
	updated, err := s.Store.EndStream(ctx, stream.ID, endedAt)
	if err != nil {
		return nil, err
	}
	if updated == 0 {
		return nil, ErrStreamEnded
	}

	stream.IsLive = false
	stream.EndedAt = &endedAt
	return stream, nil
}

type UpdateStreamParams struct {
	Title       *string
	Description *string
	Category    *string
	Thumbnail   *string
	Price       *decimal.Decimal
}

// UpdateStream applies a partial edit to a stream's listing fields. Only the
// owning creator may edit. A new price re-derives the payment gate: any
// positive price gates the stream, zero or negative clears the gate.
func (s StreamService) UpdateStream(ctx context.Context, creator *models.User, streamID string, params UpdateStreamParams) (*models.Stream, error) {
	stream, err := s.Store.GetStream(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if stream.CreatorID != creator.ID {
		return nil, ErrNotOwner
	}

	if params.Title != nil {
		if strings.TrimSpace(*params.Title) == "" {
			return nil, ErrMissingTitle
		}
		stream.Title = *params.Title
	}
	if params.Description != nil {
		stream.Description = params.Description
	}
	if params.Category != nil {
		stream.Category = params.Category
	}
	if params.Thumbnail != nil {
		stream.Thumbnail = params.Thumbnail
	}
	if params.Price != nil {
		if params.Price.IsPositive() {
			stream.Price = params.Price
		} else {
			stream.Price = nil
		}
		stream.PaymentRequired = stream.Price != nil
	}
	stream.UpdatedAt = time.Now().UTC()

	if err := s.Store.UpdateStreamInfo(ctx, stream); err != nil {
		return nil, err
	}
	return stream, nil
}

func (s StreamService) Get(ctx context.Context, streamID string) (*models.Stream, error) {
	return s.Store.GetStream(ctx, streamID)
}

func (s StreamService) GetByRoom(ctx context.Context, roomName string) (*models.Stream, error) {
	return s.Store.GetStreamByRoom(ctx, roomName)
}

func (s StreamService) ActiveByCreator(ctx context.Context, creatorID string) (*models.Stream, error) {
	return s.Store.GetLiveStreamByCreator(ctx, creatorID)
}

func (s StreamService) ListLive(ctx context.Context) ([]*models.Stream, error) {
	return s.Store.ListLiveStreams(ctx)
}

func (s StreamService) Search(ctx context.Context, query string) ([]*models.Stream, error) {
	if strings.TrimSpace(query) == "" {
		return s.Store.ListLiveStreams(ctx)
	}
	return s.Store.SearchStreams(ctx, query)
}

// RecordJoin counts a viewer joining and emits join/view analytics. All of
// it is best-effort enrichment; a failure never blocks the join itself.
func (s StreamService) RecordJoin(ctx context.Context, stream *models.Stream, viewer *models.User) {
	if err := s.Store.IncrementViewerCount(ctx, stream.ID); err != nil {
		log.Printf("join viewer count failed stream=%s: %v", stream.ID, err)
	}

	var userID *string
	if viewer != nil {
		userID = &viewer.ID
	}
	for _, eventType := range []models.EventType{models.EventJoin, models.EventView} {
		event := &models.AnalyticsEvent{
			ID:        uuid.NewString(),
			StreamID:  stream.ID,
			UserID:    userID,
			EventType: eventType,
		}
		if err := s.Store.InsertAnalyticsEvent(ctx, event); err != nil {
			log.Printf("track %s failed stream=%s: %v", eventType, stream.ID, err)
		}
	}
}
