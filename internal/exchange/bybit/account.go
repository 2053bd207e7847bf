package bybit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"gridflow/internal/models"
)

// flexFloat decodes venue numerics that arrive either as JSON numbers or as
// quoted strings depending on the endpoint.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type positionEntry struct {
	Side        string    `json:"side"`
	PositionIdx int       `json:"position_idx"`
	Size        flexFloat `json:"size"`
	EntryPrice  flexFloat `json:"entry_price"`
	LiqPrice    flexFloat `json:"liq_price"`
}

// AccountSnapshot is a coherent point-in-time view of position and margin
// balance, both fetched in the same round trip window.
type AccountSnapshot struct {
	Position      models.Position
	WalletBalance float64
}

// FetchAccountSnapshot retrieves position and wallet balance concurrently.
// If either fetch fails no partial view is returned; the caller gets
// ErrIncompleteSnapshot and must retry.
func FetchAccountSnapshot(ctx context.Context, c *Client, rc *models.RuntimeConfig) (*AccountSnapshot, error) {
	var (
		wg      sync.WaitGroup
		pos     models.Position
		balance float64
		posErr  error
		balErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		pos, posErr = fetchPosition(ctx, c, rc)
	}()
	go func() {
		defer wg.Done()
		balance, balErr = fetchWalletBalance(ctx, c, rc.MarginAsset)
	}()
	wg.Wait()

	if posErr != nil {
		return nil, fmt.Errorf("%w: position: %v", ErrIncompleteSnapshot, posErr)
	}
	if balErr != nil {
		return nil, fmt.Errorf("%w: balance: %v", ErrIncompleteSnapshot, balErr)
	}
	return &AccountSnapshot{Position: pos, WalletBalance: balance}, nil
}

// fetchPosition normalizes the three variant-specific position payload shapes
// into the signed two-leg form. This is the only place snapshot short sizes
// are negated.
func fetchPosition(ctx context.Context, c *Client, rc *models.RuntimeConfig) (models.Position, error) {
	params := url.Values{}
	params.Set("symbol", rc.Symbol)
	raw, err := c.Get(ctx, epPosition, params, true)
	if err != nil {
		return models.Position{}, err
	}

	var long, short positionEntry
	switch rc.Variant {
	case models.LinearPerpetual:
		// Hedge mode returns one entry per side.
		var entries []positionEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return models.Position{}, fmt.Errorf("decode linear position: %w", err)
		}
		for _, e := range entries {
			switch e.Side {
			case "Buy":
				long = e
			case "Sell":
				short = e
			}
		}
	case models.InversePerpetual:
		// One-way mode returns a single object whose side tells which leg
		// holds the exposure.
		var entry positionEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return models.Position{}, fmt.Errorf("decode inverse position: %w", err)
		}
		if entry.Side == "Buy" {
			long = entry
		} else {
			short = entry
		}
	default:
		// Futures wrap each entry in a data object and tag legs by
		// position_idx: 1 is long, 2 is short. Both slots must be present;
		// a missing slot could hide real exposure behind a flat leg.
		var entries []struct {
			Data positionEntry `json:"data"`
		}
		if err := json.Unmarshal(raw, &entries); err != nil {
			return models.Position{}, fmt.Errorf("decode futures position: %w", err)
		}
		var sawLong, sawShort bool
		for _, e := range entries {
			switch e.Data.PositionIdx {
			case 1:
				long = e.Data
				sawLong = true
			case 2:
				short = e.Data
				sawShort = true
			}
		}
		if !sawLong || !sawShort {
			return models.Position{}, fmt.Errorf("%w: futures position missing a leg slot", ErrIncompleteSnapshot)
		}
	}

	pos := models.Position{
		Long: models.PositionLeg{
			Size:     float64(long.Size),
			Price:    float64(long.EntryPrice),
			LiqPrice: float64(long.LiqPrice),
		},
		Short: models.PositionLeg{
			Size:     -abs(float64(short.Size)),
			Price:    float64(short.EntryPrice),
			LiqPrice: float64(short.LiqPrice),
		},
	}
	return pos, nil
}

func fetchWalletBalance(ctx context.Context, c *Client, asset string) (float64, error) {
	params := url.Values{}
	params.Set("coin", asset)
	raw, err := c.Get(ctx, epBalance, params, true)
	if err != nil {
		return 0, err
	}

	var balances map[string]struct {
		WalletBalance flexFloat `json:"wallet_balance"`
	}
	if err := json.Unmarshal(raw, &balances); err != nil {
		return 0, fmt.Errorf("decode balance: %w", err)
	}
	entry, ok := balances[asset]
	if !ok {
		return 0, fmt.Errorf("balance missing asset %s", asset)
	}
	return float64(entry.WalletBalance), nil
}

type openOrderEntry struct {
	OrderID     string    `json:"order_id"`
	OrderLinkID string    `json:"order_link_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Price       flexFloat `json:"price"`
	Qty         flexFloat `json:"qty"`
	OrderType   string    `json:"order_type"`
	CreatedAt   string    `json:"created_at"`
	CreatedTime string    `json:"created_time"`
}

// FetchOpenOrders lists resting orders for the configured symbol, inferring
// each order's position side from its label tag.
func FetchOpenOrders(ctx context.Context, c *Client, rc *models.RuntimeConfig) ([]models.Order, error) {
	params := url.Values{}
	params.Set("symbol", rc.Symbol)
	raw, err := c.Get(ctx, epOpenOrders, params, true)
	if err != nil {
		return nil, err
	}

	var entries []openOrderEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}

	orders := make([]models.Order, 0, len(entries))
	for _, e := range entries {
		created := e.CreatedAt
		if created == "" {
			created = e.CreatedTime
		}
		orders = append(orders, models.Order{
			OrderID:      e.OrderID,
			Symbol:       e.Symbol,
			Side:         strings.ToLower(e.Side),
			Price:        float64(e.Price),
			Qty:          float64(e.Qty),
			Type:         strings.ToLower(e.OrderType),
			PositionSide: DeterminePositionSide(e.Side, e.OrderLinkID),
			Label:        e.OrderLinkID,
			Timestamp:    parseVenueTime(created),
		})
	}
	return orders, nil
}

// DeterminePositionSide infers which position leg an order belongs to from
// its side and the entry/close tag embedded in the order label. Orders with
// no recognizable tag map to "both".
func DeterminePositionSide(side, orderLinkID string) string {
	isEntry := strings.Contains(orderLinkID, "entry")
	isClose := strings.Contains(orderLinkID, "close")
	switch strings.ToLower(side) {
	case models.SideBuy:
		if isEntry {
			return models.PositionSideLong
		}
		if isClose {
			return models.PositionSideShort
		}
	case models.SideSell:
		if isEntry {
			return models.PositionSideShort
		}
		if isClose {
			return models.PositionSideLong
		}
	}
	return models.PositionSideBoth
}

// parseVenueTime converts the venue's RFC3339 creation timestamps to epoch
// milliseconds. Unparseable values yield zero rather than an error; the
// timestamp is informational.
func parseVenueTime(value string) int64 {
	if value == "" {
		return 0
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
