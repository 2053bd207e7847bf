package models

// Candle is one OHLCV interval bucket, immutable once produced. Timestamp is
// milliseconds since epoch regardless of the venue's native unit.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Tick is a single trade print from the public trade feed.
type Tick struct {
	TradeID      int64   `json:"trade_id"`
	Price        float64 `json:"price"`
	Qty          float64 `json:"qty"`
	IsBuyerMaker bool    `json:"is_buyer_maker"`
	Timestamp    int64   `json:"timestamp"`
}
