package bybit

import (
	"sync"

	"gridflow/internal/models"
	"gridflow/logger"
)

// AccountState is the authoritative local view of position, balance and
// resting orders. One mutex owns all of it so readers always observe a
// coherent triple. Mutation happens only through snapshot loads and
// normalized events.
type AccountState struct {
	mu            sync.Mutex
	rc            *models.RuntimeConfig
	position      models.Position
	walletBalance float64
	lastPrice     float64
	openOrders    map[string]models.Order

	// forceRefresh latches when the local book can no longer be trusted,
	// for example after a failed cancellation. It stays set until the next
	// snapshot load.
	forceRefresh bool

	log *logger.Entry
}

func NewAccountState(rc *models.RuntimeConfig) *AccountState {
	return &AccountState{
		rc:         rc,
		lastPrice:  rc.LastPrice,
		openOrders: make(map[string]models.Order),
		log:        logger.GetLogger().WithComponent("bybit-state"),
	}
}

// LoadSnapshot replaces the whole local view with a fresh REST snapshot and
// clears the refresh latch.
func (s *AccountState) LoadSnapshot(snap *AccountSnapshot, orders []models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.position = snap.Position
	s.walletBalance = snap.WalletBalance
	s.openOrders = make(map[string]models.Order, len(orders))
	for _, o := range orders {
		if o.Status == "" {
			o.Status = models.StatusNew
		}
		s.openOrders[o.OrderID] = o
	}
	s.forceRefresh = false
}

func (s *AccountState) Position() models.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *AccountState) WalletBalance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walletBalance
}

func (s *AccountState) LastPrice() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPrice
}

// OpenOrders returns a copy of the resting order book.
func (s *AccountState) OpenOrders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders := make([]models.Order, 0, len(s.openOrders))
	for _, o := range s.openOrders {
		orders = append(orders, o)
	}
	return orders
}

// RequestRefresh latches the force-refresh flag.
func (s *AccountState) RequestRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceRefresh = true
}

// NeedsRefresh reports whether the local view must be rebuilt from REST
// before it can be trusted.
func (s *AccountState) NeedsRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forceRefresh
}

// ApplyEvent folds one normalized user event into the local view. Illegal
// order lifecycle transitions are rejected and logged, never applied.
func (s *AccountState) ApplyEvent(ev models.UserEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case models.EventNewOpenOrder:
		existing, ok := s.openOrders[ev.Order.OrderID]
		if ok && !models.CanTransition(existing.Status, models.StatusNew) {
			s.log.WithFields(logger.Fields{
				"order_id": ev.Order.OrderID,
				"from":     string(existing.Status),
				"to":       string(models.StatusNew),
			}).Warn("rejected illegal order transition")
			return
		}
		o := *ev.Order
		o.Status = models.StatusNew
		s.openOrders[o.OrderID] = o

	case models.EventOrderRemoved:
		existing, ok := s.openOrders[ev.OrderID]
		if !ok {
			// Removal of an unknown id is a no-op: the snapshot may have
			// raced the stream and already dropped the order.
			return
		}
		// A removal may be a fill or a cancel; it is legal as long as the
		// order can still reach either terminal state.
		if !models.CanTransition(existing.Status, models.StatusFilled) &&
			!models.CanTransition(existing.Status, models.StatusCancelled) {
			s.log.WithFields(logger.Fields{
				"order_id": ev.OrderID,
				"from":     string(existing.Status),
			}).Warn("rejected illegal order removal")
			return
		}
		delete(s.openOrders, ev.OrderID)
		if ev.PartiallyFilled {
			// The remainder may still rest on the venue; resync before
			// trusting the book.
			s.forceRefresh = true
		}

	case models.EventPositionUpdate:
		switch ev.PositionSide {
		case models.PositionSideLong:
			s.position.Long.Size = ev.Size
			s.position.Long.Price = ev.Price
		case models.PositionSideShort:
			s.position.Short.Size = ev.Size
			s.position.Short.Price = ev.Price
		}
		if ev.HasWallet {
			s.walletBalance = ev.WalletBalance
		}

	case models.EventWalletUpdate:
		if ev.HasWallet {
			s.walletBalance = ev.WalletBalance
		}

	case models.EventForeignSymbol:
		s.log.WithFields(logger.Fields{
			"symbol": ev.ForeignSymbol,
			"topic":  ev.Topic,
		}).Warn("event for unexpected symbol")
	}
}

// ApplyTicks advances the last traded price from streamed trades.
func (s *AccountState) ApplyTicks(ticks []models.Tick) {
	if len(ticks) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPrice = ticks[len(ticks)-1].Price
}
