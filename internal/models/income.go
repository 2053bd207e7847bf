package models

// Income is one realized PnL record from the venue's closed-pnl history.
// TransactionID is the uniqueness key used to deduplicate records across
// paginated fetches.
type Income struct {
	Symbol        string  `json:"symbol"`
	IncomeType    string  `json:"income_type"`
	Income        float64 `json:"income"`
	Asset         string  `json:"token"`
	Timestamp     int64   `json:"timestamp"`
	TransactionID int64   `json:"transaction_id"`
	TradeID       string  `json:"trade_id"`
	Page          int     `json:"page"`
}
