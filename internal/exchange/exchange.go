// Package exchange defines the venue-neutral contract the rest of the
// system trades through. A venue adapter owns its REST client, its streams
// and the authoritative local account view; collaborators only see this
// interface.
package exchange

import (
	"context"

	"gridflow/internal/models"
)

type Adapter interface {
	// Runtime returns the per-symbol constants resolved at startup. The
	// returned value is read-only after construction.
	Runtime() *models.RuntimeConfig

	// Setup drives the venue account into the margin mode, position mode
	// and leverage the adapter assumes. Idempotent.
	Setup(ctx context.Context) error

	// Refresh rebuilds the local account view from REST. It must be called
	// whenever NeedsRefresh reports true.
	Refresh(ctx context.Context) error

	Position() models.Position
	WalletBalance() float64
	LastPrice() float64
	OpenOrders() []models.Order
	NeedsRefresh() bool

	// Submit places orders one by one and returns the subset that the
	// venue accepted. Rejected or failed submissions are logged and
	// omitted, never returned as partially constructed orders.
	Submit(ctx context.Context, orders []models.Order) []models.Order

	// Cancel removes resting orders and returns the subset confirmed
	// cancelled. Any failure latches NeedsRefresh.
	Cancel(ctx context.Context, orders []models.Order) []models.Order

	Ticks(ctx context.Context, fromID int64) ([]models.Tick, error)
	OHLCVs(ctx context.Context, interval string, startTime int64, limit int) ([]models.Candle, error)
	Income(ctx context.Context, incomeType string, startTime, endTime int64) ([]models.Income, error)

	// Start launches the websocket sessions and the normalization
	// pipeline. Stop shuts them down and waits.
	Start(ctx context.Context) error
	Stop()
}
