package models

import "strings"

// MarketVariant identifies which of the venue's mutually incompatible product
// families a symbol belongs to. The variant is fixed once at startup and
// drives endpoint selection, payload field names and position-side rules.
type MarketVariant int

const (
	LinearPerpetual MarketVariant = iota
	InversePerpetual
	InverseFutures
)

func (v MarketVariant) String() string {
	switch v {
	case LinearPerpetual:
		return "linear_perpetual"
	case InversePerpetual:
		return "inverse_perpetual"
	case InverseFutures:
		return "inverse_futures"
	default:
		return "unknown"
	}
}

// ClassifyVariant determines the market variant from the symbol's quote-asset
// naming convention: USDT quoted contracts are linear perpetuals, USD quoted
// contracts are inverse perpetuals and everything else (dated symbols such as
// BTCUSDZ24) is an inverse future.
func ClassifyVariant(symbol string) MarketVariant {
	switch {
	case strings.HasSuffix(symbol, "USDT"):
		return LinearPerpetual
	case strings.HasSuffix(symbol, "USD"):
		return InversePerpetual
	default:
		return InverseFutures
	}
}

// RuntimeConfig holds the per-symbol trading constants resolved once at
// startup. It is written exactly once by the resolver and treated as
// read-only by every other component.
type RuntimeConfig struct {
	Symbol      string        `json:"symbol"`
	Variant     MarketVariant `json:"variant"`
	Inverse     bool          `json:"inverse"`
	HedgeMode   bool          `json:"hedge_mode"`
	BaseAsset   string        `json:"base_asset"`
	QuoteAsset  string        `json:"quote_asset"`
	MarginAsset string        `json:"margin_asset"`
	PriceStep   float64       `json:"price_step"`
	QtyStep     float64       `json:"qty_step"`
	MinQty      float64       `json:"min_qty"`
	MinCost     float64       `json:"min_cost"`
	MaxLeverage float64       `json:"max_leverage"`
	LastPrice   float64       `json:"last_price"`
}
