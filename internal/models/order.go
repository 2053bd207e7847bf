package models

// Order sides and types use the lower-case spelling exchanged with
// collaborators; the adapter capitalizes them on the wire where the venue
// requires it.
const (
	SideBuy  = "buy"
	SideSell = "sell"

	OrderTypeLimit  = "limit"
	OrderTypeMarket = "market"

	PositionSideLong  = "long"
	PositionSideShort = "short"
	PositionSideBoth  = "both"
)

// OrderStatus is the venue's order lifecycle state.
type OrderStatus string

const (
	StatusCreated         OrderStatus = "Created"
	StatusRejected        OrderStatus = "Rejected"
	StatusNew             OrderStatus = "New"
	StatusPartiallyFilled OrderStatus = "PartiallyFilled"
	StatusFilled          OrderStatus = "Filled"
	StatusCancelled       OrderStatus = "Cancelled"
	StatusPendingCancel   OrderStatus = "PendingCancel"
)

// orderTransitions is the closed set of legal lifecycle transitions. Anything
// not listed here is rejected, never applied silently.
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusCreated:         {StatusRejected, StatusNew},
	StatusNew:             {StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusPendingCancel},
	StatusPartiallyFilled: {StatusFilled, StatusCancelled},
	StatusPendingCancel:   {StatusCancelled},
}

// CanTransition reports whether moving from one lifecycle state to another is
// legal.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the order's lifecycle.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusFilled, StatusCancelled:
		return true
	}
	return false
}

// Order is a single venue order. Values returned to collaborators are owned
// by the caller; the adapter only keeps the id for later cancel or lookup.
type Order struct {
	OrderID      string      `json:"order_id"`
	Symbol       string      `json:"symbol"`
	Side         string      `json:"side"`
	Price        float64     `json:"price"`
	Qty          float64     `json:"qty"`
	Type         string      `json:"type"`
	PositionSide string      `json:"position_side"`
	Label        string      `json:"custom_id"`
	Timestamp    int64       `json:"timestamp"`
	Status       OrderStatus `json:"status,omitempty"`
}
