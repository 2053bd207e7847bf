package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"gridflow/internal/models"
	"gridflow/logger"
)

type instrumentInfo struct {
	Name          string `json:"name"`
	BaseCurrency  string `json:"base_currency"`
	QuoteCurrency string `json:"quote_currency"`
	PriceFilter   struct {
		TickSize string `json:"tick_size"`
	} `json:"price_filter"`
	LotSizeFilter struct {
		QtyStep       float64 `json:"qty_step"`
		MinTradingQty float64 `json:"min_trading_qty"`
	} `json:"lot_size_filter"`
	LeverageFilter struct {
		MaxLeverage float64 `json:"max_leverage"`
	} `json:"leverage_filter"`
}

type tickerInfo struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"last_price"`
}

// ResolveRuntime queries the venue instrument list, locates the configured
// symbol and fixes the per-symbol trading constants for the life of the
// process. An unknown symbol is fatal to startup. When the instrument list
// carries duplicate entries for a symbol the first match wins.
func ResolveRuntime(ctx context.Context, c *Client, symbol string) (*models.RuntimeConfig, error) {
	raw, err := c.Get(ctx, epExchangeInfo, nil, false)
	if err != nil {
		return nil, fmt.Errorf("fetch instrument list: %w", err)
	}

	var instruments []instrumentInfo
	if err := json.Unmarshal(raw, &instruments); err != nil {
		return nil, fmt.Errorf("decode instrument list: %w", err)
	}

	var found *instrumentInfo
	for i := range instruments {
		if instruments[i].Name == symbol {
			found = &instruments[i]
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	variant := models.ClassifyVariant(symbol)
	inverse := variant != models.LinearPerpetual

	priceStep, err := strconv.ParseFloat(found.PriceFilter.TickSize, 64)
	if err != nil {
		return nil, fmt.Errorf("parse tick size %q: %w", found.PriceFilter.TickSize, err)
	}

	rc := &models.RuntimeConfig{
		Symbol:     symbol,
		Variant:    variant,
		Inverse:    inverse,
		HedgeMode:  variant != models.InversePerpetual,
		BaseAsset:  found.BaseCurrency,
		QuoteAsset: found.QuoteCurrency,
		PriceStep:  priceStep,
		QtyStep:    found.LotSizeFilter.QtyStep,
		MinQty:     found.LotSizeFilter.MinTradingQty,
		// The venue enforces no minimum notional on derivatives.
		MinCost:     0.0,
		MaxLeverage: found.LeverageFilter.MaxLeverage,
	}

	// Inverse contracts are coin margined, linear contracts settle in the
	// quote asset.
	if inverse {
		rc.MarginAsset = found.BaseCurrency
	} else {
		rc.MarginAsset = found.QuoteCurrency
	}

	if err := primeLastPrice(ctx, c, rc); err != nil {
		return nil, err
	}

	logger.GetLogger().WithComponent("bybit-resolver").WithFields(logger.Fields{
		"symbol":       rc.Symbol,
		"variant":      rc.Variant.String(),
		"price_step":   rc.PriceStep,
		"qty_step":     rc.QtyStep,
		"min_qty":      rc.MinQty,
		"max_leverage": rc.MaxLeverage,
		"last_price":   rc.LastPrice,
	}).Info("resolved market runtime")
	return rc, nil
}

// primeLastPrice seeds LastPrice from the REST ticker so price-dependent
// logic has a value before the first streamed trade arrives.
func primeLastPrice(ctx context.Context, c *Client, rc *models.RuntimeConfig) error {
	params := url.Values{}
	params.Set("symbol", rc.Symbol)
	raw, err := c.Get(ctx, epTicker, params, false)
	if err != nil {
		return fmt.Errorf("fetch ticker: %w", err)
	}

	var tickers []tickerInfo
	if err := json.Unmarshal(raw, &tickers); err != nil {
		return fmt.Errorf("decode ticker: %w", err)
	}
	for _, t := range tickers {
		if t.Symbol != rc.Symbol {
			continue
		}
		price, err := strconv.ParseFloat(t.LastPrice, 64)
		if err != nil {
			return fmt.Errorf("parse last price %q: %w", t.LastPrice, err)
		}
		rc.LastPrice = price
		return nil
	}
	return fmt.Errorf("ticker missing symbol %s", rc.Symbol)
}
