package bybit

import (
	"context"
	"fmt"

	"gridflow/config"
	"gridflow/internal/channel/events"
	"gridflow/internal/models"
	"gridflow/logger"
)

// Adapter wires the REST client, the account state, the streaming sessions
// and the normalization pipeline into one venue-facing unit.
type Adapter struct {
	client    *Client
	rc        *models.RuntimeConfig
	state     *AccountState
	channels  *events.Channels
	streams   *StreamManager
	processor *Processor
	leverage  int
	log       *logger.Entry
}

// NewAdapter resolves the symbol's market variant, fixes the runtime
// constants and assembles the adapter. Credentials come from the
// environment, never from configuration files.
func NewAdapter(ctx context.Context, cfg *config.Config) (*Adapter, error) {
	key, secret, err := config.Credentials()
	if err != nil {
		return nil, err
	}

	symbol := cfg.Account.Symbol
	client := NewClient(cfg.Source.Bybit, key, secret, models.ClassifyVariant(symbol))

	rc, err := ResolveRuntime(ctx, client, symbol)
	if err != nil {
		return nil, fmt.Errorf("resolve market runtime: %w", err)
	}

	state := NewAccountState(rc)
	channels := events.NewChannels(cfg.Channels.RawBuffer, cfg.Channels.NormBuffer)

	return &Adapter{
		client:    client,
		rc:        rc,
		state:     state,
		channels:  channels,
		streams:   NewStreamManager(client, rc, cfg.Source.Bybit.Stream, channels),
		processor: NewProcessor(rc, channels, state),
		leverage:  cfg.Account.Leverage,
		log:       logger.GetLogger().WithComponent("bybit-adapter"),
	}, nil
}

func (a *Adapter) Runtime() *models.RuntimeConfig { return a.rc }

func (a *Adapter) Setup(ctx context.Context) error {
	return InitExchangeConfig(ctx, a.client, a.rc, a.leverage)
}

// Refresh rebuilds position, balance and the open order book from REST in
// one pass and clears the refresh latch.
func (a *Adapter) Refresh(ctx context.Context) error {
	snap, err := FetchAccountSnapshot(ctx, a.client, a.rc)
	if err != nil {
		return err
	}
	orders, err := FetchOpenOrders(ctx, a.client, a.rc)
	if err != nil {
		return fmt.Errorf("fetch open orders: %w", err)
	}
	a.state.LoadSnapshot(snap, orders)
	a.log.WithFields(logger.Fields{
		"long_size":      snap.Position.Long.Size,
		"short_size":     snap.Position.Short.Size,
		"wallet_balance": snap.WalletBalance,
		"open_orders":    len(orders),
	}).Info("account view refreshed")
	return nil
}

func (a *Adapter) Position() models.Position  { return a.state.Position() }
func (a *Adapter) WalletBalance() float64     { return a.state.WalletBalance() }
func (a *Adapter) LastPrice() float64         { return a.state.LastPrice() }
func (a *Adapter) OpenOrders() []models.Order { return a.state.OpenOrders() }
func (a *Adapter) NeedsRefresh() bool         { return a.state.NeedsRefresh() }

// Submit places each order and returns the accepted subset. A failed
// submission may still have reached the venue, so the refresh latch is set.
func (a *Adapter) Submit(ctx context.Context, orders []models.Order) []models.Order {
	accepted := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if placed := SubmitOrder(ctx, a.client, a.rc, o); placed != nil {
			accepted = append(accepted, *placed)
		} else {
			a.state.RequestRefresh()
		}
	}
	return accepted
}

// Cancel removes each order. A failed cancellation leaves the order's true
// state unknown, so the refresh latch is set.
func (a *Adapter) Cancel(ctx context.Context, orders []models.Order) []models.Order {
	cancelled := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if done := CancelOrder(ctx, a.client, a.rc, o); done != nil {
			cancelled = append(cancelled, *done)
		} else {
			a.state.RequestRefresh()
		}
	}
	return cancelled
}

func (a *Adapter) Ticks(ctx context.Context, fromID int64) ([]models.Tick, error) {
	return FetchTicks(ctx, a.client, a.rc, fromID)
}

func (a *Adapter) OHLCVs(ctx context.Context, interval string, startTime int64, limit int) ([]models.Candle, error) {
	return FetchOHLCVs(ctx, a.client, a.rc, interval, startTime, limit)
}

func (a *Adapter) Income(ctx context.Context, incomeType string, startTime, endTime int64) ([]models.Income, error) {
	return FetchAllIncome(ctx, a.client, a.rc, incomeType, startTime, endTime)
}

// Start launches the normalization pipeline first so no raw frame waits on
// a full channel, then the websocket sessions.
func (a *Adapter) Start(ctx context.Context) error {
	if err := a.processor.Start(ctx); err != nil {
		return err
	}
	if err := a.streams.Start(ctx); err != nil {
		a.processor.Stop()
		return err
	}
	return nil
}

// Stop shuts the sessions down before the pipeline so every received frame
// is drained.
func (a *Adapter) Stop() {
	a.streams.Stop()
	a.processor.Stop()
	stats := a.channels.GetStats()
	a.log.WithFields(logger.Fields{
		"raw_sent":     stats.RawSent,
		"raw_dropped":  stats.RawDropped,
		"norm_sent":    stats.NormSent,
		"norm_dropped": stats.NormDropped,
	}).Info("adapter stopped")
}
