package bybit

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"gridflow/internal/models"
	"gridflow/logger"
)

// maxOrderLinkIDLen is the venue's limit on client order ids.
const maxOrderLinkIDLen = 36

// buildOrderLinkID appends a unique suffix to the order label so the
// entry/close tag survives into every venue-side record of the order.
func buildOrderLinkID(label string) string {
	id := label + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if len(id) > maxOrderLinkIDLen {
		id = id[:maxOrderLinkIDLen]
	}
	return id
}

// SubmitOrder places one order. Failures of any kind are soft: the error is
// logged and nil is returned, leaving the caller's book unchanged until the
// venue confirms the order through snapshot or stream.
func SubmitOrder(ctx context.Context, c *Client, rc *models.RuntimeConfig, order models.Order) *models.Order {
	log := logger.GetLogger().WithComponent("bybit-orders")

	params := url.Values{}
	params.Set("symbol", rc.Symbol)
	params.Set("side", capitalize(order.Side))
	params.Set("order_type", capitalize(order.Type))
	params.Set("close_on_trigger", "false")

	// Inverse contracts quote quantity in whole contracts.
	if rc.Inverse {
		params.Set("qty", strconv.FormatInt(int64(order.Qty), 10))
	} else {
		params.Set("qty", strconv.FormatFloat(order.Qty, 'f', -1, 64))
	}

	linkID := buildOrderLinkID(order.Label)
	params.Set("order_link_id", linkID)

	reduceOnly := strings.Contains(order.Label, "close")
	if rc.HedgeMode {
		if order.PositionSide == models.PositionSideShort {
			params.Set("position_idx", "2")
		} else {
			params.Set("position_idx", "1")
		}
		if rc.Variant == models.LinearPerpetual {
			params.Set("reduce_only", strconv.FormatBool(reduceOnly))
		}
	} else {
		params.Set("position_idx", "0")
		params.Set("reduce_only", strconv.FormatBool(reduceOnly))
	}

	// Limit orders rest passively; anything else is fire at market.
	if order.Type == models.OrderTypeLimit {
		params.Set("time_in_force", "PostOnly")
		params.Set("price", strconv.FormatFloat(order.Price, 'f', -1, 64))
	} else {
		params.Set("time_in_force", "GoodTillCancel")
	}

	raw, err := c.Post(ctx, epCreateOrder, params)
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"symbol": rc.Symbol,
			"side":   order.Side,
			"qty":    order.Qty,
			"price":  order.Price,
		}).Error("order submission failed")
		return nil
	}

	var created struct {
		OrderID     string `json:"order_id"`
		OrderLinkID string `json:"order_link_id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil || created.OrderID == "" {
		log.WithFields(logger.Fields{"symbol": rc.Symbol}).Error("order submission returned no order id")
		return nil
	}

	placed := order
	placed.OrderID = created.OrderID
	placed.Symbol = rc.Symbol
	placed.Label = linkID
	placed.Status = models.StatusCreated
	if placed.PositionSide == "" || placed.PositionSide == models.PositionSideBoth {
		placed.PositionSide = DeterminePositionSide(order.Side, linkID)
	}
	log.WithFields(logger.Fields{
		"order_id":      placed.OrderID,
		"order_link_id": linkID,
		"side":          placed.Side,
		"position_side": placed.PositionSide,
		"qty":           placed.Qty,
		"price":         placed.Price,
	}).Info("order submitted")
	return &placed
}

// CancelOrder cancels a resting order by id. Like submission, failure is
// soft: nil is returned and the caller must force a snapshot refresh before
// trusting its local book again.
func CancelOrder(ctx context.Context, c *Client, rc *models.RuntimeConfig, order models.Order) *models.Order {
	log := logger.GetLogger().WithComponent("bybit-orders")

	params := url.Values{}
	params.Set("symbol", rc.Symbol)
	params.Set("order_id", order.OrderID)

	raw, err := c.Post(ctx, epCancelOrder, params)
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"order_id": order.OrderID,
			"symbol":   rc.Symbol,
		}).Error("order cancellation failed")
		return nil
	}

	cancelled := order
	cancelled.Symbol = rc.Symbol

	// The venue echoes the id of the order it actually cancelled. Adopt it
	// so the caller's bookkeeping tracks the venue's view.
	var echo struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(raw, &echo); err == nil && echo.OrderID != "" {
		cancelled.OrderID = echo.OrderID
	}
	log.WithFields(logger.Fields{
		"order_id": cancelled.OrderID,
		"side":     cancelled.Side,
		"qty":      cancelled.Qty,
		"price":    cancelled.Price,
	}).Info("order cancelled")
	return &cancelled
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
