package domain

import "time"

// InboundMessage is one text update delivered by the chat transport.
// UpdateID is assigned by the transport and strictly increases; it doubles
// as the processing cursor key.
type InboundMessage struct {
	UpdateID   int64
	ChatID     int64
	Text       string
	ReceivedAt time.Time
}
