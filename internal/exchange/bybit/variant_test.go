package bybit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gridflow/internal/models"
)

const instrumentList = `[
	{"name":"BTCUSDT","base_currency":"BTC","quote_currency":"USDT",
	 "price_filter":{"tick_size":"0.50"},
	 "lot_size_filter":{"qty_step":0.001,"min_trading_qty":0.001},
	 "leverage_filter":{"max_leverage":100}},
	{"name":"BTCUSD","base_currency":"BTC","quote_currency":"USD",
	 "price_filter":{"tick_size":"0.50"},
	 "lot_size_filter":{"qty_step":1,"min_trading_qty":1},
	 "leverage_filter":{"max_leverage":100}},
	{"name":"BTCUSDZ26","base_currency":"BTC","quote_currency":"USD",
	 "price_filter":{"tick_size":"0.50"},
	 "lot_size_filter":{"qty_step":1,"min_trading_qty":1},
	 "leverage_filter":{"max_leverage":100}}
]`

func newResolverServer(t *testing.T, instruments string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/public/symbols":
			w.Write([]byte(`{"ret_code":0,"ret_msg":"OK","result":` + instruments + `}`))
		case "/v2/public/tickers":
			w.Write([]byte(`{"ret_code":0,"ret_msg":"OK","result":[{"symbol":"` +
				r.URL.Query().Get("symbol") + `","last_price":"43210.5"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
}

func TestResolveRuntimePerVariant(t *testing.T) {
	server := newResolverServer(t, instrumentList)
	defer server.Close()

	tests := []struct {
		symbol      string
		variant     models.MarketVariant
		inverse     bool
		hedgeMode   bool
		marginAsset string
	}{
		{"BTCUSDT", models.LinearPerpetual, false, true, "USDT"},
		{"BTCUSD", models.InversePerpetual, true, false, "BTC"},
		{"BTCUSDZ26", models.InverseFutures, true, true, "BTC"},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			c := newTestClient(server.URL, models.ClassifyVariant(tt.symbol))
			rc, err := ResolveRuntime(context.Background(), c, tt.symbol)
			if err != nil {
				t.Fatalf("ResolveRuntime: %v", err)
			}
			if rc.Variant != tt.variant {
				t.Errorf("Variant = %v, want %v", rc.Variant, tt.variant)
			}
			if rc.Inverse != tt.inverse {
				t.Errorf("Inverse = %v, want %v", rc.Inverse, tt.inverse)
			}
			if rc.HedgeMode != tt.hedgeMode {
				t.Errorf("HedgeMode = %v, want %v", rc.HedgeMode, tt.hedgeMode)
			}
			if rc.MarginAsset != tt.marginAsset {
				t.Errorf("MarginAsset = %q, want %q", rc.MarginAsset, tt.marginAsset)
			}
			if rc.PriceStep != 0.5 {
				t.Errorf("PriceStep = %v, want 0.5", rc.PriceStep)
			}
			if rc.MinCost != 0 {
				t.Errorf("MinCost = %v, want 0", rc.MinCost)
			}
			if rc.LastPrice != 43210.5 {
				t.Errorf("LastPrice = %v, want 43210.5", rc.LastPrice)
			}
		})
	}
}

func TestResolveRuntimeUnknownSymbol(t *testing.T) {
	server := newResolverServer(t, instrumentList)
	defer server.Close()

	c := newTestClient(server.URL, models.LinearPerpetual)
	_, err := ResolveRuntime(context.Background(), c, "DOGEUSDT")
	if !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("err = %v, want ErrUnknownSymbol", err)
	}
}

func TestResolveRuntimeFirstMatchWins(t *testing.T) {
	duplicated := `[
		{"name":"BTCUSDT","base_currency":"BTC","quote_currency":"USDT",
		 "price_filter":{"tick_size":"0.50"},
		 "lot_size_filter":{"qty_step":0.001,"min_trading_qty":0.001},
		 "leverage_filter":{"max_leverage":100}},
		{"name":"BTCUSDT","base_currency":"BTC","quote_currency":"USDT",
		 "price_filter":{"tick_size":"1.00"},
		 "lot_size_filter":{"qty_step":0.01,"min_trading_qty":0.01},
		 "leverage_filter":{"max_leverage":50}}
	]`
	server := newResolverServer(t, duplicated)
	defer server.Close()

	c := newTestClient(server.URL, models.LinearPerpetual)
	rc, err := ResolveRuntime(context.Background(), c, "BTCUSDT")
	if err != nil {
		t.Fatalf("ResolveRuntime: %v", err)
	}
	if rc.PriceStep != 0.5 || rc.QtyStep != 0.001 {
		t.Fatalf("resolver did not take the first matching entry: %+v", rc)
	}
}

func TestClassifyVariant(t *testing.T) {
	tests := []struct {
		symbol string
		want   models.MarketVariant
	}{
		{"BTCUSDT", models.LinearPerpetual},
		{"ETHUSDT", models.LinearPerpetual},
		{"BTCUSD", models.InversePerpetual},
		{"BTCUSDZ26", models.InverseFutures},
		{"ETHUSDH27", models.InverseFutures},
	}
	for _, tt := range tests {
		if got := models.ClassifyVariant(tt.symbol); got != tt.want {
			t.Errorf("ClassifyVariant(%s) = %v, want %v", tt.symbol, got, tt.want)
		}
	}
}
