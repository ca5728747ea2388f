package feed

import (
	"context"
	"log"
	"net/http"
	"time"

	"streamgate/internal/models"
	"streamgate/internal/rooms"

	"github.com/gorilla/websocket"
)

type StreamLister interface {
	ListLiveStreamsByRooms(ctx context.Context, roomNames []string) ([]*models.Stream, error)
}

// Entry is one live stream in a feed snapshot, enriched with the live
// participant count from the room service.
type Entry struct {
	StreamID        string `json:"streamId"`
	RoomName        string `json:"roomName"`
	CreatorID       string `json:"creatorId"`
	Title           string `json:"title"`
	Category        string `json:"category,omitempty"`
	Thumbnail       string `json:"thumbnail,omitempty"`
	PaymentRequired bool   `json:"paymentRequired"`
	Price           string `json:"price,omitempty"`
	ViewerCount     int64  `json:"viewerCount"`
	CurrentViewers  int    `json:"currentViewers"`
}

type message struct {
	Type string  `json:"type"`
	Data []Entry `json:"data"`
}

// Feed pushes live-stream listing snapshots over a websocket. One goroutine
// per subscriber; a disconnect cancels the loop before the next expensive
// step and later writes become no-ops.
type Feed struct {
	Rooms    rooms.Lister
	Streams  StreamLister
	Interval time.Duration

	upgrader websocket.Upgrader
}

func New(roomLister rooms.Lister, streams StreamLister, interval time.Duration) *Feed {
	return &Feed{
		Rooms:    roomLister,
		Streams:  streams,
		Interval: interval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Snapshot cross-references the room service's live rooms against persisted
// stream rows and reports the intersection, busiest first (the store orders
// by the durable counter; the live count rides along).
func (f *Feed) Snapshot(ctx context.Context) ([]Entry, error) {
	liveRooms, err := f.Rooms.ListRooms(ctx)
	if err != nil {
		return nil, err
	}

	participants := make(map[string]int, len(liveRooms))
	names := make([]string, 0, len(liveRooms))
	for _, room := range liveRooms {
		if room.NumParticipants <= 0 {
			continue
		}
		participants[room.Name] = room.NumParticipants
		names = append(names, room.Name)
	}
	if len(names) == 0 {
		return nil, nil
	}

	streams, err := f.Streams.ListLiveStreamsByRooms(ctx, names)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(streams))
	for _, stream := range streams {
		entry := Entry{
			StreamID:        stream.ID,
			RoomName:        stream.RoomName,
			CreatorID:       stream.CreatorID,
			Title:           stream.Title,
			PaymentRequired: stream.PaymentRequired,
			ViewerCount:     stream.ViewerCount,
			CurrentViewers:  participants[stream.RoomName],
		}
		if stream.Category != nil {
			entry.Category = *stream.Category
		}
		if stream.Thumbnail != nil {
			entry.Thumbnail = *stream.Thumbnail
		}
		if stream.Price != nil {
			entry.Price = stream.Price.String()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("feed upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain the read side so close frames from the client cancel the loop.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	ticker := time.NewTicker(f.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.push(ctx, conn); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (f *Feed) push(ctx context.Context, conn *websocket.Conn) error {
	entries, err := f.Snapshot(ctx)
	if err != nil {
		// Transient backend trouble keeps the connection; the client just
		// misses a tick.
		log.Printf("feed snapshot failed: %v", err)
		return nil
	}
	if entries == nil {
		entries = []Entry{}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(message{Type: "streams", Data: entries})
}
