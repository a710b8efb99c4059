package domain

import "time"

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// InboundMessage is one normalized webhook delivery. HasText is false for
// non-text kinds (images, stickers, reactions); only derived fields are ever
// persisted.
type InboundMessage struct {
	FromNumber string
	PlatformID string
	MessageID  string
	Kind       string
	Text       string
	HasText    bool
	Timestamp  string
}

// Turn is a single persisted conversation log entry. Turns are append-only.
type Turn struct {
	SubscriberID        string
	Direction           Direction
	Text                string
	GestationalAgeWeeks *int
	DangerSignDetected  bool
	DangerSignKeywords  *string
	ResponseTimeMillis  *int64
	GeneratorID         *string
	CreatedAt           time.Time
}
