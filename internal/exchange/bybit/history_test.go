package bybit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gridflow/internal/models"
)

func pnlRecord(id int64, createdAt int64, pnl float64) string {
	return fmt.Sprintf(`{"id":%d,"symbol":"BTCUSDT","order_id":"o%d","closed_pnl":%v,"created_at":%d}`,
		id, id, pnl, createdAt)
}

func incomeServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/private/linear/trade/closed-pnl/list" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		page := r.URL.Query().Get("page")
		data, ok := pages[page]
		if !ok {
			data = ""
		}
		w.Write([]byte(`{"ret_code":0,"result":{"current_page":` + page + `,"data":[` + data + `]}}`))
	}))
}

func TestFetchAllIncomeKeepsRecordsOnBadPage(t *testing.T) {
	var page1 []string
	for i := int64(1); i <= incomePageSize; i++ {
		page1 = append(page1, pnlRecord(i, 1000+i, 0.5))
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			w.Write([]byte(`{"ret_code":0,"result":{"current_page":1,"data":[` + strings.Join(page1, ",") + `]}}`))
			return
		}
		w.Write([]byte(`{"ret_code":10006,"ret_msg":"too many visits","result":null}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, models.LinearPerpetual)
	income, err := FetchAllIncome(context.Background(), c, linearRuntime(), "", 0, 0)
	if err != nil {
		t.Fatalf("FetchAllIncome: %v", err)
	}
	if len(income) != incomePageSize {
		t.Fatalf("got %d records, want the first page's %d", len(income), incomePageSize)
	}
}

func TestFetchAllIncomeStopsOnShortPage(t *testing.T) {
	// Page 1 is full, page 2 is short; page 3 must never be requested.
	var page1 []string
	for i := int64(1); i <= incomePageSize; i++ {
		page1 = append(page1, pnlRecord(i, 1000+i, 0.5))
	}
	pages := map[string]string{
		"1": strings.Join(page1, ","),
		"2": pnlRecord(100, 2000, 1.5),
		"3": pnlRecord(999, 9999, 9.9),
	}
	server := incomeServer(t, pages)
	defer server.Close()

	c := newTestClient(server.URL, models.LinearPerpetual)
	income, err := FetchAllIncome(context.Background(), c, linearRuntime(), "", 0, 0)
	if err != nil {
		t.Fatalf("FetchAllIncome: %v", err)
	}
	if len(income) != incomePageSize+1 {
		t.Fatalf("got %d records, want %d", len(income), incomePageSize+1)
	}
	for _, e := range income {
		if e.TransactionID == 999 {
			t.Fatal("pagination did not stop at the short page")
		}
	}
}

func TestFetchAllIncomeStopsOnRepeatedTail(t *testing.T) {
	// The venue repeats the last page when asked past the end. Both pages
	// are full so only the tail comparison can stop the walk.
	var page1 []string
	for i := int64(1); i <= incomePageSize; i++ {
		page1 = append(page1, pnlRecord(i, 1000+i, 0.5))
	}
	pages := map[string]string{
		"1": strings.Join(page1, ","),
		"2": strings.Join(page1, ","),
		"3": strings.Join(page1, ","),
	}
	server := incomeServer(t, pages)
	defer server.Close()

	c := newTestClient(server.URL, models.LinearPerpetual)
	income, err := FetchAllIncome(context.Background(), c, linearRuntime(), "", 0, 0)
	if err != nil {
		t.Fatalf("FetchAllIncome: %v", err)
	}
	if len(income) != incomePageSize {
		t.Fatalf("got %d records, want %d", len(income), incomePageSize)
	}
}

func TestFetchAllIncomeDeduplicatesAndSorts(t *testing.T) {
	// Overlapping pages share transaction ids; the result must contain
	// each id once, ordered by timestamp.
	pages := map[string]string{
		"1": strings.Join([]string{
			pnlRecord(3, 300, 0.1),
			pnlRecord(1, 100, 0.2),
			pnlRecord(2, 200, 0.3),
		}, ","),
		"2": "",
	}
	server := incomeServer(t, pages)
	defer server.Close()

	c := newTestClient(server.URL, models.LinearPerpetual)
	income, err := FetchAllIncome(context.Background(), c, linearRuntime(), "", 0, 0)
	if err != nil {
		t.Fatalf("FetchAllIncome: %v", err)
	}
	if len(income) != 3 {
		t.Fatalf("got %d records, want 3", len(income))
	}
	for i := 1; i < len(income); i++ {
		if income[i-1].Timestamp > income[i].Timestamp {
			t.Fatalf("records not sorted by timestamp: %v then %v",
				income[i-1].Timestamp, income[i].Timestamp)
		}
	}
	if income[0].TransactionID != 1 || income[2].TransactionID != 3 {
		t.Fatalf("unexpected order: %+v", income)
	}
}

func TestFetchIncomePageConvertsUnits(t *testing.T) {
	var gotStart, gotExecType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("start_time")
		gotExecType = r.URL.Query().Get("exec_type")
		w.Write([]byte(`{"ret_code":0,"result":{"current_page":1,"data":[` +
			pnlRecord(7, 1700000000, 2.5) + `]}}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, models.LinearPerpetual)
	records, err := FetchIncomePage(context.Background(), c, linearRuntime(), "", 1700000000000, 0, 1)
	if err != nil {
		t.Fatalf("FetchIncomePage: %v", err)
	}
	// Outbound start_time is seconds, inbound created_at becomes millis.
	if gotStart != "1700000000" {
		t.Errorf("start_time = %q, want 1700000000", gotStart)
	}
	if gotExecType != "Trade" {
		t.Errorf("exec_type = %q, want Trade", gotExecType)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0].Timestamp != 1700000000000 {
		t.Errorf("timestamp = %d, want 1700000000000", records[0].Timestamp)
	}
	if records[0].IncomeType != "realized_pnl" {
		t.Errorf("income type = %q", records[0].IncomeType)
	}
	if records[0].Asset != "USDT" {
		t.Errorf("asset = %q, want USDT", records[0].Asset)
	}
}

func TestFetchIncomePageTypeMapping(t *testing.T) {
	var gotExecType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotExecType = r.URL.Query().Get("exec_type")
		w.Write([]byte(`{"ret_code":0,"result":{"current_page":1,"data":[
			{"id":8,"symbol":"BTCUSDT","order_id":"o8","exec_type":"Funding","closed_pnl":-0.1,"created_at":1700000100}
		]}}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, models.LinearPerpetual)
	records, err := FetchIncomePage(context.Background(), c, linearRuntime(), "Funding", 0, 0, 1)
	if err != nil {
		t.Fatalf("FetchIncomePage: %v", err)
	}
	if gotExecType != "Funding" {
		t.Errorf("exec_type = %q, want Funding", gotExecType)
	}
	if len(records) != 1 || records[0].IncomeType != "funding" {
		t.Errorf("records = %+v", records)
	}
}

func TestRepeatsTail(t *testing.T) {
	mk := func(ids ...int64) []models.Income {
		out := make([]models.Income, len(ids))
		for i, id := range ids {
			out[i] = models.Income{TransactionID: id}
		}
		return out
	}
	tests := []struct {
		name        string
		accumulated []models.Income
		page        []models.Income
		want        bool
	}{
		{"exact tail", mk(1, 2, 3, 4), mk(3, 4), true},
		{"different tail", mk(1, 2, 3, 4), mk(2, 3), false},
		{"page longer than accumulated", mk(1), mk(1, 2), false},
		{"empty page", mk(1, 2), nil, false},
	}
	for _, tt := range tests {
		if got := repeatsTail(tt.accumulated, tt.page); got != tt.want {
			t.Errorf("%s: repeatsTail = %v, want %v", tt.name, got, tt.want)
		}
	}
}
