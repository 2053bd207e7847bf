package bybit

import "gridflow/internal/models"

// Endpoint keys used by the adapter. The three market variants expose the
// same logical operations under disjoint path sets; balance, metadata,
// ticker and server time are shared.
const (
	epPosition     = "position"
	epOpenOrders   = "open_orders"
	epCreateOrder  = "create_order"
	epCancelOrder  = "cancel_order"
	epTicks        = "ticks"
	epFills        = "fills"
	epOHLCVs       = "ohlcvs"
	epIncome       = "income"
	epBalance      = "balance"
	epExchangeInfo = "exchange_info"
	epTicker       = "ticker"
	epServerTime   = "server_time"
)

// Websocket endpoints per variant.
type streamEndpoints struct {
	Market string
	User   string
}

// buildEndpoints resolves the endpoint table for a variant once at startup.
// Every REST call after resolution goes through this table.
func buildEndpoints(variant models.MarketVariant) map[string]string {
	var endpoints map[string]string
	switch variant {
	case models.LinearPerpetual:
		endpoints = map[string]string{
			epPosition:    "/private/linear/position/list",
			epOpenOrders:  "/private/linear/order/search",
			epCreateOrder: "/private/linear/order/create",
			epCancelOrder: "/private/linear/order/cancel",
			epTicks:       "/public/linear/recent-trading-records",
			epFills:       "/private/linear/trade/execution/list",
			epOHLCVs:      "/public/linear/kline",
			epIncome:      "/private/linear/trade/closed-pnl/list",
		}
	case models.InversePerpetual:
		endpoints = map[string]string{
			epPosition:    "/v2/private/position/list",
			epOpenOrders:  "/v2/private/order",
			epCreateOrder: "/v2/private/order/create",
			epCancelOrder: "/v2/private/order/cancel",
			epTicks:       "/v2/public/trading-records",
			epFills:       "/v2/private/execution/list",
			epOHLCVs:      "/v2/public/kline/list",
			epIncome:      "/v2/private/trade/closed-pnl/list",
		}
	default: // InverseFutures
		endpoints = map[string]string{
			epPosition:    "/futures/private/position/list",
			epOpenOrders:  "/futures/private/order",
			epCreateOrder: "/futures/private/order/create",
			epCancelOrder: "/futures/private/order/cancel",
			epTicks:       "/v2/public/trading-records",
			epFills:       "/futures/private/execution/list",
			epOHLCVs:      "/v2/public/kline/list",
			epIncome:      "/futures/private/trade/closed-pnl/list",
		}
	}

	endpoints[epBalance] = "/v2/private/wallet/balance"
	endpoints[epExchangeInfo] = "/v2/public/symbols"
	endpoints[epTicker] = "/v2/public/tickers"
	endpoints[epServerTime] = "/v2/public/time"
	return endpoints
}

// buildStreamEndpoints resolves the websocket URLs for a variant. Linear
// contracts use split public/private streams; inverse contracts share one.
func buildStreamEndpoints(variant models.MarketVariant) streamEndpoints {
	if variant == models.LinearPerpetual {
		return streamEndpoints{
			Market: "wss://stream.bybit.com/realtime_public",
			User:   "wss://stream.bybit.com/realtime_private",
		}
	}
	return streamEndpoints{
		Market: "wss://stream.bybit.com/realtime",
		User:   "wss://stream.bybit.com/realtime",
	}
}

// Variant-specific paths used only by the idempotent exchange setup calls.
const (
	pathFuturesLeverageSave = "/futures/private/position/leverage/save"
	pathFuturesSwitchMode   = "/futures/private/position/switch-mode"
	pathLinearSwitchIsolate = "/private/linear/position/switch-isolated"
	pathLinearSetLeverage   = "/private/linear/position/set-leverage"
	pathInverseLeverageSave = "/v2/private/position/leverage/save"
)
