package bybit

import (
	"context"
	"net/url"
	"strconv"

	"gridflow/internal/models"
	"gridflow/logger"
)

// InitExchangeConfig drives the account into the margin mode, position mode
// and leverage the adapter assumes. Every call is idempotent: the venue
// rejects a no-op change with a benign code, which is treated as success.
func InitExchangeConfig(ctx context.Context, c *Client, rc *models.RuntimeConfig, leverage int) error {
	if leverage <= 0 {
		leverage = 7
	}
	if max := int(rc.MaxLeverage); max > 0 && leverage > max {
		leverage = max
	}
	lev := strconv.Itoa(leverage)

	switch rc.Variant {
	case models.LinearPerpetual:
		params := url.Values{}
		params.Set("symbol", rc.Symbol)
		params.Set("is_isolated", "false")
		params.Set("buy_leverage", lev)
		params.Set("sell_leverage", lev)
		if err := setupCall(ctx, c, pathLinearSwitchIsolate, params); err != nil {
			return err
		}

		params = url.Values{}
		params.Set("symbol", rc.Symbol)
		params.Set("buy_leverage", lev)
		params.Set("sell_leverage", lev)
		return setupCall(ctx, c, pathLinearSetLeverage, params)

	case models.InverseFutures:
		for _, idx := range []string{"1", "2"} {
			params := url.Values{}
			params.Set("symbol", rc.Symbol)
			params.Set("position_idx", idx)
			params.Set("leverage", lev)
			if err := setupCall(ctx, c, pathFuturesLeverageSave, params); err != nil {
				return err
			}
		}

		// Mode 3 is hedged; both legs can hold size simultaneously.
		params := url.Values{}
		params.Set("symbol", rc.Symbol)
		params.Set("mode", "3")
		return setupCall(ctx, c, pathFuturesSwitchMode, params)

	default:
		// Inverse perpetuals run one-way on cross margin; leverage 0 with
		// leverage_only requests cross.
		params := url.Values{}
		params.Set("symbol", rc.Symbol)
		params.Set("leverage", "0")
		params.Set("leverage_only", "true")
		return setupCall(ctx, c, pathInverseLeverageSave, params)
	}
}

// setupCall posts one setup request and absorbs the already-configured
// rejection codes.
func setupCall(ctx context.Context, c *Client, path string, params url.Values) error {
	log := logger.GetLogger().WithComponent("bybit-setup")

	_, err := c.PostPath(ctx, path, params)
	if err == nil {
		log.WithFields(logger.Fields{"path": path}).Info("exchange setup applied")
		return nil
	}
	if IsBenign(err) {
		log.WithFields(logger.Fields{"path": path}).WithError(err).Info("exchange setup already in effect")
		return nil
	}
	return err
}
