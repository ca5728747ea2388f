package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID            string
	WalletAddress string
	Username      string
	Email         *string
	IsCreator     bool
	CreatedAt     time.Time
}

type CreatorProfile struct {
	UserID         string
	ChannelName    string
	PaymentAddress string
	UpdatedAt      time.Time
}

type Stream struct {
	ID              string
	RoomName        string
	CreatorID       string
	Title           string
	Description     *string
	Category        *string
	Thumbnail       *string
	Price           *decimal.Decimal
	PaymentRequired bool
	IsLive          bool
	ViewerCount     int64
	StartedAt       time.Time
	EndedAt         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "completed"
)

// Payment is immutable once inserted. SettlementRef is the global
// idempotency key: at most one row per reference ever exists.
type Payment struct {
	ID            string
	StreamID      string
	PayerID       string
	CreatorID     string
	Amount        decimal.Decimal
	AmountAtomic  int64
	SettlementRef string
	Asset         string
	AssetMint     string
	Network       string
	Status        PaymentStatus
	CreatedAt     time.Time
}

type EventType string

const (
	EventView    EventType = "view"
	EventJoin    EventType = "join"
	EventLeave   EventType = "leave"
	EventPayment EventType = "payment"
)

type AnalyticsEvent struct {
	ID        string
	StreamID  string
	UserID    *string
	EventType EventType
	Metadata  map[string]any
	CreatedAt time.Time
}
