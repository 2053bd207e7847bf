package bybit

import (
	"context"
	"fmt"
	"sync"

	"gridflow/internal/channel/events"
	"gridflow/internal/models"
	"gridflow/logger"
)

// Processor drains the raw channel, normalizes frames and folds the
// resulting events into the account state. Malformed frames are dropped and
// logged; they never stop the pipeline.
type Processor struct {
	rc         *models.RuntimeConfig
	channels   *events.Channels
	normalizer *Normalizer
	state      *AccountState
	log        *logger.Entry

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewProcessor(rc *models.RuntimeConfig, ch *events.Channels, state *AccountState) *Processor {
	return &Processor{
		rc:         rc,
		channels:   ch,
		normalizer: NewNormalizer(rc, state.Position),
		state:      state,
		log:        logger.GetLogger().WithComponent("bybit-processor"),
	}
}

func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("processor already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.normalizeLoop(runCtx)
	}()
	go func() {
		defer p.wg.Done()
		p.applyLoop(runCtx)
	}()

	p.log.Info("processor started")
	return nil
}

func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.log.Info("processor stopped")
}

func (p *Processor) normalizeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-p.channels.Raw:
			if !ok {
				return
			}
			p.handleRaw(ctx, msg)
		}
	}
}

func (p *Processor) handleRaw(ctx context.Context, msg models.RawStreamMessage) {
	switch msg.Source {
	case models.SourceMarket:
		ticks, err := p.normalizer.MarketTicks(msg.Data)
		if err != nil {
			p.log.WithError(err).Warn("dropped malformed market frame")
			return
		}
		p.state.ApplyTicks(ticks)
	case models.SourceUser:
		userEvents, err := p.normalizer.UserEvents(msg.Data)
		if err != nil {
			p.log.WithError(err).Warn("dropped malformed user frame")
			return
		}
		for _, ev := range userEvents {
			if ev.Kind == models.EventIgnored {
				continue
			}
			p.channels.SendNorm(ctx, ev)
		}
	}
}

func (p *Processor) applyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-p.channels.Norm:
			if !ok {
				return
			}
			p.state.ApplyEvent(ev)
		}
	}
}
