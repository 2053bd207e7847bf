package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"gridflow/internal/models"
	"gridflow/logger"
)

// incomePageSize is the venue's page size for closed-pnl history.
const incomePageSize = 50

// defaultIncomeType is the exec_type the venue uses for trade pnl.
const defaultIncomeType = "Trade"

type closedPnlRecord struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	OrderID   string    `json:"order_id"`
	ExecType  string    `json:"exec_type"`
	ClosedPnl flexFloat `json:"closed_pnl"`
	CreatedAt int64     `json:"created_at"`
}

// FetchIncomePage retrieves one page of realized-pnl records, oldest first
// within the page. Page numbering starts at 1.
func FetchIncomePage(ctx context.Context, c *Client, rc *models.RuntimeConfig, incomeType string, startTime, endTime int64, page int) ([]models.Income, error) {
	if incomeType == "" {
		incomeType = defaultIncomeType
	}
	params := url.Values{}
	params.Set("symbol", rc.Symbol)
	params.Set("exec_type", incomeType)
	params.Set("limit", strconv.Itoa(incomePageSize))
	if startTime > 0 {
		params.Set("start_time", strconv.FormatInt(startTime/1000, 10))
	}
	if endTime > 0 {
		params.Set("end_time", strconv.FormatInt(endTime/1000, 10))
	}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}

	raw, err := c.Get(ctx, epIncome, params, true)
	if err != nil {
		return nil, err
	}

	var result struct {
		CurrentPage int               `json:"current_page"`
		Data        []closedPnlRecord `json:"data"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode income page: %w", err)
	}

	records := make([]models.Income, 0, len(result.Data))
	for _, e := range result.Data {
		incType := "realized_pnl"
		if e.ExecType != "" && e.ExecType != defaultIncomeType {
			incType = strings.ToLower(e.ExecType)
		}
		records = append(records, models.Income{
			Symbol:        e.Symbol,
			IncomeType:    incType,
			Income:        float64(e.ClosedPnl),
			Asset:         rc.MarginAsset,
			Timestamp:     e.CreatedAt * 1000,
			TransactionID: e.ID,
			TradeID:       e.OrderID,
			Page:          page,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
	return records, nil
}

// FetchAllIncome walks the paginated closed-pnl history until the venue runs
// out of records. Pagination stops on an empty page, a short page, or a page
// that repeats the tail of what was already accumulated, which the venue
// produces when asked past the end. Records are deduplicated by transaction
// id before the final sort so venue-side page overlap cannot double-count.
func FetchAllIncome(ctx context.Context, c *Client, rc *models.RuntimeConfig, incomeType string, startTime, endTime int64) ([]models.Income, error) {
	log := logger.GetLogger().WithComponent("bybit-history")

	var accumulated []models.Income
	for page := 1; ; page++ {
		fetched, err := FetchIncomePage(ctx, c, rc, incomeType, startTime, endTime, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("income page %d: %w", page, err)
			}
			// A bad page loses history, not correctness. Keep what was
			// collected and let the caller re-request later.
			log.WithError(err).WithFields(logger.Fields{"page": page}).Warn("income page fetch failed")
			break
		}
		if len(fetched) == 0 {
			break
		}
		log.WithFields(logger.Fields{
			"page":  page,
			"count": len(fetched),
			"first": fetched[0].Timestamp,
		}).Debug("fetched income page")

		if repeatsTail(accumulated, fetched) {
			break
		}
		accumulated = append(accumulated, fetched...)
		if len(fetched) < incomePageSize {
			break
		}
	}

	unique := make(map[int64]models.Income, len(accumulated))
	for _, e := range accumulated {
		unique[e.TransactionID] = e
	}
	income := make([]models.Income, 0, len(unique))
	for _, e := range unique {
		income = append(income, e)
	}
	sort.Slice(income, func(i, j int) bool {
		if income[i].Timestamp != income[j].Timestamp {
			return income[i].Timestamp < income[j].Timestamp
		}
		return income[i].TransactionID < income[j].TransactionID
	})
	return income, nil
}

// repeatsTail reports whether page is exactly the trailing portion of
// accumulated, comparing by transaction id.
func repeatsTail(accumulated, page []models.Income) bool {
	if len(page) == 0 || len(accumulated) < len(page) {
		return false
	}
	tail := accumulated[len(accumulated)-len(page):]
	for i := range page {
		if tail[i].TransactionID != page[i].TransactionID {
			return false
		}
	}
	return true
}
