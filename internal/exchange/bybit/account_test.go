package bybit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gridflow/internal/models"
)

func linearRuntime() *models.RuntimeConfig {
	return &models.RuntimeConfig{
		Symbol:      "BTCUSDT",
		Variant:     models.LinearPerpetual,
		HedgeMode:   true,
		MarginAsset: "USDT",
		QtyStep:     0.001,
	}
}

func inversePerpRuntime() *models.RuntimeConfig {
	return &models.RuntimeConfig{
		Symbol:      "BTCUSD",
		Variant:     models.InversePerpetual,
		Inverse:     true,
		MarginAsset: "BTC",
		QtyStep:     1,
	}
}

func futuresRuntime() *models.RuntimeConfig {
	return &models.RuntimeConfig{
		Symbol:      "BTCUSDZ26",
		Variant:     models.InverseFutures,
		Inverse:     true,
		HedgeMode:   true,
		MarginAsset: "BTC",
		QtyStep:     1,
	}
}

func TestFetchAccountSnapshotLinear(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/private/linear/position/list":
			w.Write([]byte(`{"ret_code":0,"result":[
				{"side":"Buy","size":0.5,"entry_price":40000,"liq_price":35000},
				{"side":"Sell","size":0.2,"entry_price":42000,"liq_price":48000}
			]}`))
		case "/v2/private/wallet/balance":
			if coin := r.URL.Query().Get("coin"); coin != "USDT" {
				t.Errorf("balance coin = %q, want USDT", coin)
			}
			w.Write([]byte(`{"ret_code":0,"result":{"USDT":{"wallet_balance":1234.56}}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := newTestClient(server.URL, models.LinearPerpetual)
	snap, err := FetchAccountSnapshot(context.Background(), c, linearRuntime())
	if err != nil {
		t.Fatalf("FetchAccountSnapshot: %v", err)
	}
	if snap.Position.Long.Size != 0.5 || snap.Position.Long.Price != 40000 {
		t.Errorf("long leg = %+v", snap.Position.Long)
	}
	if snap.Position.Short.Size != -0.2 {
		t.Errorf("short size = %v, want -0.2", snap.Position.Short.Size)
	}
	if snap.Position.Short.Price != 42000 {
		t.Errorf("short price = %v", snap.Position.Short.Price)
	}
	if snap.WalletBalance != 1234.56 {
		t.Errorf("wallet balance = %v", snap.WalletBalance)
	}
}

func TestFetchAccountSnapshotInversePerpetual(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantLong  float64
		wantShort float64
	}{
		{
			name:      "short exposure",
			payload:   `{"side":"Sell","size":"100","entry_price":"40000","liq_price":"48000"}`,
			wantLong:  0,
			wantShort: -100,
		},
		{
			name:      "long exposure",
			payload:   `{"side":"Buy","size":"50","entry_price":"41000","liq_price":"30000"}`,
			wantLong:  50,
			wantShort: 0,
		},
		{
			name:      "flat",
			payload:   `{"side":"None","size":0,"entry_price":0,"liq_price":0}`,
			wantLong:  0,
			wantShort: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/v2/private/position/list":
					w.Write([]byte(`{"ret_code":0,"result":` + tt.payload + `}`))
				case "/v2/private/wallet/balance":
					w.Write([]byte(`{"ret_code":0,"result":{"BTC":{"wallet_balance":0.75}}}`))
				}
			}))
			defer server.Close()

			c := newTestClient(server.URL, models.InversePerpetual)
			snap, err := FetchAccountSnapshot(context.Background(), c, inversePerpRuntime())
			if err != nil {
				t.Fatalf("FetchAccountSnapshot: %v", err)
			}
			if snap.Position.Long.Size != tt.wantLong {
				t.Errorf("long size = %v, want %v", snap.Position.Long.Size, tt.wantLong)
			}
			if snap.Position.Short.Size != tt.wantShort {
				t.Errorf("short size = %v, want %v", snap.Position.Short.Size, tt.wantShort)
			}
			if snap.WalletBalance != 0.75 {
				t.Errorf("wallet balance = %v", snap.WalletBalance)
			}
		})
	}
}

func TestFetchAccountSnapshotInverseFutures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/futures/private/position/list":
			w.Write([]byte(`{"ret_code":0,"result":[
				{"data":{"position_idx":1,"side":"Buy","size":300,"entry_price":"40000","liq_price":"30000"}},
				{"data":{"position_idx":2,"side":"Sell","size":150,"entry_price":"43000","liq_price":"50000"}}
			]}`))
		case "/v2/private/wallet/balance":
			w.Write([]byte(`{"ret_code":0,"result":{"BTC":{"wallet_balance":1.5}}}`))
		}
	}))
	defer server.Close()

	c := newTestClient(server.URL, models.InverseFutures)
	snap, err := FetchAccountSnapshot(context.Background(), c, futuresRuntime())
	if err != nil {
		t.Fatalf("FetchAccountSnapshot: %v", err)
	}
	if snap.Position.Long.Size != 300 {
		t.Errorf("long size = %v", snap.Position.Long.Size)
	}
	if snap.Position.Short.Size != -150 {
		t.Errorf("short size = %v, want -150", snap.Position.Short.Size)
	}
}

func TestFetchAccountSnapshotInverseFuturesMissingLeg(t *testing.T) {
	// A payload with only one position_idx slot may be hiding exposure on
	// the missing leg; it must not pass as a flat snapshot.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/futures/private/position/list":
			w.Write([]byte(`{"ret_code":0,"result":[
				{"data":{"position_idx":1,"side":"Buy","size":300,"entry_price":"40000","liq_price":"30000"}}
			]}`))
		case "/v2/private/wallet/balance":
			w.Write([]byte(`{"ret_code":0,"result":{"BTC":{"wallet_balance":1.5}}}`))
		}
	}))
	defer server.Close()

	c := newTestClient(server.URL, models.InverseFutures)
	_, err := FetchAccountSnapshot(context.Background(), c, futuresRuntime())
	if !errors.Is(err, ErrIncompleteSnapshot) {
		t.Fatalf("err = %v, want ErrIncompleteSnapshot", err)
	}
}

func TestFetchAccountSnapshotIncompleteOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/private/linear/position/list":
			w.Write([]byte(`{"ret_code":0,"result":[]}`))
		case "/v2/private/wallet/balance":
			w.Write([]byte(`{"ret_code":10002,"ret_msg":"timestamp out of window","result":null}`))
		}
	}))
	defer server.Close()

	c := newTestClient(server.URL, models.LinearPerpetual)
	_, err := FetchAccountSnapshot(context.Background(), c, linearRuntime())
	if !errors.Is(err, ErrIncompleteSnapshot) {
		t.Fatalf("err = %v, want ErrIncompleteSnapshot", err)
	}
}

func TestFetchOpenOrders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/private/linear/order/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"ret_code":0,"result":[
			{"order_id":"a1","order_link_id":"grid_entry_001","symbol":"BTCUSDT",
			 "side":"Buy","price":39000,"qty":0.01,"order_type":"Limit",
			 "created_time":"2026-08-29T10:00:00Z"},
			{"order_id":"a2","order_link_id":"grid_close_002","symbol":"BTCUSDT",
			 "side":"Sell","price":45000,"qty":0.01,"order_type":"Limit",
			 "created_time":"2026-08-29T11:00:00Z"}
		]}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, models.LinearPerpetual)
	orders, err := FetchOpenOrders(context.Background(), c, linearRuntime())
	if err != nil {
		t.Fatalf("FetchOpenOrders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2", len(orders))
	}
	if orders[0].Side != "buy" || orders[0].Type != "limit" {
		t.Errorf("order[0] = %+v", orders[0])
	}
	if orders[0].PositionSide != models.PositionSideLong {
		t.Errorf("buy entry position side = %q, want long", orders[0].PositionSide)
	}
	if orders[1].PositionSide != models.PositionSideLong {
		t.Errorf("sell close position side = %q, want long", orders[1].PositionSide)
	}
	if orders[0].Timestamp == 0 {
		t.Error("timestamp not parsed")
	}
}

func TestDeterminePositionSide(t *testing.T) {
	tests := []struct {
		side   string
		linkID string
		want   string
	}{
		{"Buy", "grid_entry_1", models.PositionSideLong},
		{"Buy", "grid_close_1", models.PositionSideShort},
		{"Sell", "grid_entry_1", models.PositionSideShort},
		{"Sell", "grid_close_1", models.PositionSideLong},
		{"Buy", "manual", models.PositionSideBoth},
		{"Sell", "", models.PositionSideBoth},
	}
	for _, tt := range tests {
		if got := DeterminePositionSide(tt.side, tt.linkID); got != tt.want {
			t.Errorf("DeterminePositionSide(%s, %s) = %q, want %q", tt.side, tt.linkID, got, tt.want)
		}
	}
}
