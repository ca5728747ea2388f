package services

import (
	"context"
	"testing"
	"time"

	"streamgate/internal/models"
	"streamgate/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreamStore struct {
	streams map[string]*models.Stream
	updated *models.Stream
}

func newFakeStreamStore(streams ...*models.Stream) *fakeStreamStore {
	f := &fakeStreamStore{streams: map[string]*models.Stream{}}
	for _, s := range streams {
		f.streams[s.ID] = s
	}
	return f
}

func (f *fakeStreamStore) CreateStream(_ context.Context, stream *models.Stream) error {
	f.streams[stream.ID] = stream
	return nil
}

func (f *fakeStreamStore) GetStream(_ context.Context, streamID string) (*models.Stream, error) {
	if s, ok := f.streams[streamID]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStreamStore) GetStreamByRoom(_ context.Context, roomName string) (*models.Stream, error) {
	for _, s := range f.streams {
		if s.RoomName == roomName {
			copied := *s
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStreamStore) GetLiveStreamByCreator(_ context.Context, creatorID string) (*models.Stream, error) {
	for _, s := range f.streams {
		if s.CreatorID == creatorID && s.IsLive {
			copied := *s
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStreamStore) ListLiveStreams(_ context.Context) ([]*models.Stream, error) {
	return nil, nil
}

func (f *fakeStreamStore) SearchStreams(_ context.Context, _ string) ([]*models.Stream, error) {
	return nil, nil
}

func (f *fakeStreamStore) UpdateStreamInfo(_ context.Context, stream *models.Stream) error {
	copied := *stream
	f.updated = &copied
	f.streams[stream.ID] = &copied
	return nil
}

func (f *fakeStreamStore) EndStream(_ context.Context, streamID string, endedAt time.Time) (int64, error) {
	s, ok := f.streams[streamID]
	if !ok || !s.IsLive {
		return 0, nil
	}
	s.IsLive = false
	s.EndedAt = &endedAt
	return 1, nil
}

func (f *fakeStreamStore) IncrementViewerCount(_ context.Context, streamID string) error {
	if s, ok := f.streams[streamID]; ok {
		s.ViewerCount++
	}
	return nil
}

func (f *fakeStreamStore) InsertAnalyticsEvent(_ context.Context, _ *models.AnalyticsEvent) error {
	return nil
}

func gatedStream(creatorID, price string) *models.Stream {
	p := decimal.RequireFromString(price)
	return &models.Stream{
		ID:              "stream-1",
		RoomName:        "room_abc",
		CreatorID:       creatorID,
		Title:           "Launch day",
		Price:           &p,
		PaymentRequired: true,
		IsLive:          true,
		StartedAt:       time.Now().UTC(),
	}
}

func TestCreateStreamValidation(t *testing.T) {
	svc := StreamService{}
	creator := &models.User{ID: "creator-1", IsCreator: true}

	_, err := svc.CreateStream(context.Background(), creator, CreateStreamParams{Title: ""})
	assert.ErrorIs(t, err, ErrMissingTitle)

	_, err = svc.CreateStream(context.Background(), creator, CreateStreamParams{Title: "   "})
	assert.ErrorIs(t, err, ErrMissingTitle)

	negative := decimal.NewFromFloat(-0.5)
	_, err = svc.CreateStream(context.Background(), creator, CreateStreamParams{
		Title: "My stream",
		Price: &negative,
	})
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestUpdateStreamOwnerOnly(t *testing.T) {
	svc := StreamService{Store: newFakeStreamStore(gatedStream("creator-1", "5.00"))}
	title := "New title"

	_, err := svc.UpdateStream(context.Background(), &models.User{ID: "someone-else"}, "stream-1", UpdateStreamParams{Title: &title})
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = svc.UpdateStream(context.Background(), &models.User{ID: "creator-1"}, "missing", UpdateStreamParams{Title: &title})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateStreamPartialEdit(t *testing.T) {
	st := newFakeStreamStore(gatedStream("creator-1", "5.00"))
	svc := StreamService{Store: st}
	creator := &models.User{ID: "creator-1"}

	title := "Renamed"
	category := "music"
	updated, err := svc.UpdateStream(context.Background(), creator, "stream-1", UpdateStreamParams{
		Title:    &title,
		Category: &category,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "music", *updated.Category)

	// Untouched fields survive the edit.
	require.NotNil(t, updated.Price)
	assert.True(t, updated.Price.Equal(decimal.RequireFromString("5.00")))
	assert.True(t, updated.PaymentRequired)
	assert.Equal(t, "room_abc", updated.RoomName)
	require.NotNil(t, st.updated)

	blank := "   "
	_, err = svc.UpdateStream(context.Background(), creator, "stream-1", UpdateStreamParams{Title: &blank})
	assert.ErrorIs(t, err, ErrMissingTitle)
}

// Editing the price re-derives the payment gate: a positive price gates a
// free stream, a zero price clears the gate on a paid one.
func TestUpdateStreamPriceRederivesGate(t *testing.T) {
	st := newFakeStreamStore(gatedStream("creator-1", "5.00"))
	svc := StreamService{Store: st}
	creator := &models.User{ID: "creator-1"}

	zero := decimal.Zero
	updated, err := svc.UpdateStream(context.Background(), creator, "stream-1", UpdateStreamParams{Price: &zero})
	require.NoError(t, err)
	assert.Nil(t, updated.Price)
	assert.False(t, updated.PaymentRequired)

	price := decimal.RequireFromString("2.50")
	updated, err = svc.UpdateStream(context.Background(), creator, "stream-1", UpdateStreamParams{Price: &price})
	require.NoError(t, err)
	require.NotNil(t, updated.Price)
	assert.True(t, updated.Price.Equal(price))
	assert.True(t, updated.PaymentRequired)

	negative := decimal.RequireFromString("-1")
	updated, err = svc.UpdateStream(context.Background(), creator, "stream-1", UpdateStreamParams{Price: &negative})
	require.NoError(t, err)
	assert.Nil(t, updated.Price)
	assert.False(t, updated.PaymentRequired)
}
