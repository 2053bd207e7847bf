package bybit

import (
	"encoding/json"
	"fmt"
	"strings"

	"gridflow/internal/models"
	"gridflow/logger"
)

// Normalizer converts raw websocket payloads into canonical state-change
// events. It is stateless except for a read-only view of the current
// position, which one-way variants need to attribute new orders to a leg.
type Normalizer struct {
	rc *models.RuntimeConfig

	// position returns the current local position. Consulted only for
	// inverse perpetual order attribution.
	position func() models.Position

	log *logger.Entry
}

func NewNormalizer(rc *models.RuntimeConfig, position func() models.Position) *Normalizer {
	return &Normalizer{
		rc:       rc,
		position: position,
		log:      logger.GetLogger().WithComponent("bybit-normalizer"),
	}
}

type userStreamFrame struct {
	Topic string            `json:"topic"`
	Data  []json.RawMessage `json:"data"`
}

type orderPayload struct {
	OrderID     string    `json:"order_id"`
	OrderLinkID string    `json:"order_link_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	OrderType   string    `json:"order_type"`
	Price       flexFloat `json:"price"`
	Qty         flexFloat `json:"qty"`
	OrderStatus string    `json:"order_status"`
	CreateType  string    `json:"create_type"`
	Timestamp   string    `json:"timestamp"`
	UpdateTime  string    `json:"update_time"`
}

type executionPayload struct {
	Symbol string `json:"symbol"`
}

type positionPayload struct {
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Size          flexFloat `json:"size"`
	EntryPrice    flexFloat `json:"entry_price"`
	WalletBalance flexFloat `json:"wallet_balance"`
}

type walletPayload struct {
	WalletBalance flexFloat `json:"wallet_balance"`
}

// UserEvents translates one user-stream frame into zero or more canonical
// events. Frames without a topic (auth acks, pongs, subscription responses)
// yield no events. A frame that cannot be decoded is an error; the caller
// drops it and logs.
func (n *Normalizer) UserEvents(data []byte) ([]models.UserEvent, error) {
	var frame userStreamFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode user frame: %w", err)
	}
	if frame.Topic == "" {
		return nil, nil
	}

	switch frame.Topic {
	case "order":
		return n.orderEvents(frame)
	case "execution":
		return n.executionEvents(frame)
	case "position":
		return n.positionEvents(frame)
	case "wallet":
		return n.walletEvents(frame)
	default:
		return nil, nil
	}
}

func (n *Normalizer) orderEvents(frame userStreamFrame) ([]models.UserEvent, error) {
	var events []models.UserEvent
	for _, raw := range frame.Data {
		var o orderPayload
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("decode order payload: %w", err)
		}
		if o.Symbol != n.rc.Symbol {
			events = append(events, models.UserEvent{
				Kind:          models.EventForeignSymbol,
				ForeignSymbol: o.Symbol,
				Topic:         frame.Topic,
			})
			continue
		}

		switch models.OrderStatus(o.OrderStatus) {
		case models.StatusNew:
			// Linear frames stamp orders with update_time; inverse frames
			// use timestamp.
			created := o.Timestamp
			if n.rc.Variant == models.LinearPerpetual {
				created = o.UpdateTime
			}
			order := &models.Order{
				OrderID:      o.OrderID,
				Symbol:       o.Symbol,
				Side:         strings.ToLower(o.Side),
				Price:        float64(o.Price),
				Qty:          float64(o.Qty),
				Type:         strings.ToLower(o.OrderType),
				Label:        o.OrderLinkID,
				Timestamp:    parseVenueTime(created),
				Status:       models.StatusNew,
				PositionSide: n.orderPositionSide(o),
			}
			events = append(events, models.UserEvent{Kind: models.EventNewOpenOrder, Order: order})
		case models.StatusPartiallyFilled:
			events = append(events, models.UserEvent{
				Kind:            models.EventOrderRemoved,
				OrderID:         o.OrderID,
				PartiallyFilled: true,
			})
		case models.StatusFilled, models.StatusCancelled:
			events = append(events, models.UserEvent{
				Kind:    models.EventOrderRemoved,
				OrderID: o.OrderID,
			})
		case models.StatusCreated, models.StatusRejected, models.StatusPendingCancel:
			events = append(events, models.UserEvent{Kind: models.EventIgnored})
		default:
			return nil, fmt.Errorf("unknown order status %q", o.OrderStatus)
		}
	}
	return events, nil
}

// orderPositionSide attributes a freshly opened order to a position leg.
// An explicit entry/close tag in the label wins; otherwise linear contracts
// report the create type and one-way inverse perpetuals fall back to the
// current exposure.
func (n *Normalizer) orderPositionSide(o orderPayload) string {
	if tagged := DeterminePositionSide(o.Side, o.OrderLinkID); tagged != models.PositionSideBoth {
		return tagged
	}
	side := strings.ToLower(o.Side)
	switch n.rc.Variant {
	case models.LinearPerpetual:
		if (side == models.SideBuy && o.CreateType == "CreateByUser") ||
			(side == models.SideSell && o.CreateType == "CreateByClosing") {
			return models.PositionSideLong
		}
		return models.PositionSideShort
	case models.InversePerpetual:
		pos := n.position()
		if pos.Long.Size != 0 {
			return models.PositionSideLong
		}
		if pos.Short.Size != 0 {
			return models.PositionSideShort
		}
		if side == models.SideBuy {
			return models.PositionSideLong
		}
		return models.PositionSideShort
	default:
		// Futures orders without a label tag cannot be attributed.
		return models.PositionSideBoth
	}
}

// executionEvents deliberately produces no state changes. Fills on this
// venue are fully derivable from order-topic transitions, so Trade records
// here would only duplicate removals already applied. The topic stays
// subscribed for observability of foreign-symbol traffic.
func (n *Normalizer) executionEvents(frame userStreamFrame) ([]models.UserEvent, error) {
	var events []models.UserEvent
	for _, raw := range frame.Data {
		var e executionPayload
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode execution payload: %w", err)
		}
		if e.Symbol != n.rc.Symbol {
			events = append(events, models.UserEvent{
				Kind:          models.EventForeignSymbol,
				ForeignSymbol: e.Symbol,
				Topic:         frame.Topic,
			})
			continue
		}
		events = append(events, models.UserEvent{Kind: models.EventIgnored})
	}
	return events, nil
}

func (n *Normalizer) positionEvents(frame userStreamFrame) ([]models.UserEvent, error) {
	var events []models.UserEvent
	for _, raw := range frame.Data {
		var p positionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode position payload: %w", err)
		}
		if p.Symbol != n.rc.Symbol {
			events = append(events, models.UserEvent{
				Kind:          models.EventForeignSymbol,
				ForeignSymbol: p.Symbol,
				Topic:         frame.Topic,
			})
			continue
		}

		ev := models.UserEvent{Kind: models.EventPositionUpdate, Price: float64(p.EntryPrice)}
		switch p.Side {
		case "Buy":
			ev.PositionSide = models.PositionSideLong
			ev.Size = roundStep(float64(p.Size), n.rc.QtyStep)
		case "Sell":
			ev.PositionSide = models.PositionSideShort
			ev.Size = -roundStep(abs(float64(p.Size)), n.rc.QtyStep)
		default:
			return nil, fmt.Errorf("unknown position side %q", p.Side)
		}
		// Inverse position frames carry the margin balance inline.
		if n.rc.Inverse {
			ev.WalletBalance = float64(p.WalletBalance)
			ev.HasWallet = true
		}
		events = append(events, ev)
	}
	return events, nil
}

func (n *Normalizer) walletEvents(frame userStreamFrame) ([]models.UserEvent, error) {
	// Inverse sessions get their coin-denominated balance inline on
	// position frames; a wallet frame there must not overwrite it.
	if n.rc.Inverse {
		return nil, nil
	}
	var events []models.UserEvent
	for _, raw := range frame.Data {
		var w walletPayload
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode wallet payload: %w", err)
		}
		events = append(events, models.UserEvent{
			Kind:          models.EventWalletUpdate,
			WalletBalance: float64(w.WalletBalance),
			HasWallet:     true,
		})
	}
	return events, nil
}

type marketTradeFrame struct {
	Topic string            `json:"topic"`
	Data  []json.RawMessage `json:"data"`
}

type tradePrint struct {
	Price       flexFloat `json:"price"`
	Size        flexFloat `json:"size"`
	Side        string    `json:"side"`
	TradeTimeMs flexFloat `json:"trade_time_ms"`
	Timestamp   string    `json:"timestamp"`
}

// MarketTicks extracts trade prints from a public-stream frame. Frames for
// other topics yield no ticks. A malformed element is dropped and logged
// without aborting the rest of the batch.
func (n *Normalizer) MarketTicks(data []byte) ([]models.Tick, error) {
	var frame marketTradeFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode market frame: %w", err)
	}
	if !strings.HasPrefix(frame.Topic, "trade.") {
		return nil, nil
	}

	ticks := make([]models.Tick, 0, len(frame.Data))
	for _, raw := range frame.Data {
		var t tradePrint
		if err := json.Unmarshal(raw, &t); err != nil {
			n.log.WithError(err).Warn("dropped malformed trade print")
			continue
		}
		ts := int64(t.TradeTimeMs)
		if ts == 0 {
			ts = parseVenueTime(t.Timestamp)
		}
		ticks = append(ticks, models.Tick{
			Price:        float64(t.Price),
			Qty:          float64(t.Size),
			IsBuyerMaker: t.Side == "Sell",
			Timestamp:    ts,
		})
	}
	return ticks, nil
}

// roundStep snaps a quantity to the instrument's step grid.
func roundStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	n := v / step
	whole := float64(int64(n + 0.5))
	return whole * step
}
