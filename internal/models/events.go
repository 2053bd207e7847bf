package models

import "time"

// StreamSource identifies which websocket session produced a raw message.
type StreamSource string

const (
	SourceMarket StreamSource = "market"
	SourceUser   StreamSource = "user"
)

// RawStreamMessage is an unparsed websocket frame handed from a streaming
// session to the normalizer.
type RawStreamMessage struct {
	Source     StreamSource
	Symbol     string
	Data       []byte
	ReceivedAt time.Time
}

// UserEventKind tags the canonical state-change events produced by the
// normalizer from user-stream payloads.
type UserEventKind int

const (
	// EventIgnored marks payloads that are understood but intentionally
	// produce no state change (Created/Rejected/PendingCancel statuses,
	// execution "Trade" records already covered by order transitions).
	EventIgnored UserEventKind = iota
	EventNewOpenOrder
	EventOrderRemoved
	EventPositionUpdate
	EventWalletUpdate
	// EventForeignSymbol records traffic for a symbol other than the
	// configured one. It is logged for observability and never applied.
	EventForeignSymbol
)

func (k UserEventKind) String() string {
	switch k {
	case EventNewOpenOrder:
		return "new_open_order"
	case EventOrderRemoved:
		return "order_removed"
	case EventPositionUpdate:
		return "position_update"
	case EventWalletUpdate:
		return "wallet_update"
	case EventForeignSymbol:
		return "foreign_symbol"
	default:
		return "ignored"
	}
}

// UserEvent is one canonical state-change event. Only the fields relevant to
// the Kind are populated.
type UserEvent struct {
	Kind UserEventKind

	// EventNewOpenOrder
	Order *Order

	// EventOrderRemoved
	OrderID         string
	PartiallyFilled bool

	// EventPositionUpdate
	PositionSide string
	Size         float64
	Price        float64

	// EventWalletUpdate (also set on inverse position updates)
	WalletBalance float64
	HasWallet     bool

	// EventForeignSymbol
	ForeignSymbol string
	Topic         string
}
