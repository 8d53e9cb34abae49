package domain

import "time"

// Side is the trade direction of a fill.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// FillSource identifies which adapter produced a FillRecord.
type FillSource string

const (
	SourceText     FillSource = "text"
	SourceExchange FillSource = "exchange"
)

// FillRecord is one completed execution: price × quantity of an instrument
// at a point in time. An exchange query yields zero or more of these; a
// brokerage notification yields exactly one.
type FillRecord struct {
	ID         string // exchange order uuid, or synthesized for text fills
	Symbol     string
	Market     string // exchange market pair, e.g. KRW-BTC (exchange fills only)
	Side       Side
	Price      float64
	Quantity   float64
	Amount     float64 // notional: price × quantity (exchange reports funds directly)
	ExecutedAt time.Time
	Source     FillSource
}
