package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"gridflow/internal/models"
)

// Venue interval codes and the span of each interval in minutes. Sub-daily
// intervals are coded by their minute count, larger ones by letter.
var intervalCodes = map[string]string{
	"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "120", "4h": "240", "6h": "360", "12h": "720",
	"1d": "D", "1w": "W", "1M": "M",
}

var intervalMinutes = map[string]int64{
	"1m": 1, "3m": 3, "5m": 5, "15m": 15, "30m": 30,
	"1h": 60, "2h": 120, "4h": 240, "6h": 360, "12h": 720,
	"1d": 1440, "1w": 10080, "1M": 43200,
}

type tradeRecord struct {
	ID          flexFloat `json:"id"`
	Price       flexFloat `json:"price"`
	Qty         flexFloat `json:"qty"`
	Side        string    `json:"side"`
	Time        string    `json:"time"`
	TradeTimeMs flexFloat `json:"trade_time_ms"`
}

// FetchTicks returns up to 1000 recent public trades, oldest first. A
// non-zero fromID asks the venue to start at that trade id.
func FetchTicks(ctx context.Context, c *Client, rc *models.RuntimeConfig, fromID int64) ([]models.Tick, error) {
	params := url.Values{}
	params.Set("symbol", rc.Symbol)
	params.Set("limit", "1000")
	if fromID > 0 {
		params.Set("from", strconv.FormatInt(fromID, 10))
	}

	raw, err := c.Get(ctx, epTicks, params, false)
	if err != nil {
		return nil, err
	}

	var records []tradeRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode trades: %w", err)
	}

	ticks := make([]models.Tick, 0, len(records))
	for _, r := range records {
		ts := int64(r.TradeTimeMs)
		if ts == 0 {
			ts = parseVenueTime(r.Time)
		}
		ticks = append(ticks, models.Tick{
			TradeID:      int64(r.ID),
			Price:        float64(r.Price),
			Qty:          float64(r.Qty),
			IsBuyerMaker: r.Side == "Sell",
			Timestamp:    ts,
		})
	}
	return ticks, nil
}

type klineRecord struct {
	OpenTime int64     `json:"open_time"`
	Open     flexFloat `json:"open"`
	High     flexFloat `json:"high"`
	Low      flexFloat `json:"low"`
	Close    flexFloat `json:"close"`
	Volume   flexFloat `json:"volume"`
}

// FetchOHLCVs returns limit candles of the given interval. When startTime is
// zero the window is anchored backwards from the venue clock so the newest
// candles are returned.
func FetchOHLCVs(ctx context.Context, c *Client, rc *models.RuntimeConfig, interval string, startTime int64, limit int) ([]models.Candle, error) {
	code, ok := intervalCodes[interval]
	if !ok {
		return nil, fmt.Errorf("unsupported interval %q", interval)
	}
	if limit <= 0 {
		limit = 200
	}

	params := url.Values{}
	params.Set("symbol", rc.Symbol)
	params.Set("interval", code)
	params.Set("limit", strconv.Itoa(limit))

	if startTime > 0 {
		params.Set("from", strconv.FormatInt(startTime/1000, 10))
	} else {
		serverMs, err := c.ServerTime(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch server time: %w", err)
		}
		from := serverMs/1000 - 60*intervalMinutes[interval]*int64(limit)
		params.Set("from", strconv.FormatInt(from, 10))
	}

	raw, err := c.Get(ctx, epOHLCVs, params, false)
	if err != nil {
		return nil, err
	}

	var records []klineRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}

	candles := make([]models.Candle, 0, len(records))
	for _, r := range records {
		candles = append(candles, models.Candle{
			Timestamp: r.OpenTime * 1000,
			Open:      float64(r.Open),
			High:      float64(r.High),
			Low:       float64(r.Low),
			Close:     float64(r.Close),
			Volume:    float64(r.Volume),
		})
	}
	return candles, nil
}
