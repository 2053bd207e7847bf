package events

import (
	"context"
	"sync"

	"gridflow/internal/models"
	"gridflow/logger"
)

type ChannelStats struct {
	RawSent     int64
	NormSent    int64
	RawDropped  int64
	NormDropped int64
}

// Channels carries raw websocket frames from the streaming sessions to the
// normalizer and canonical events from the normalizer to the state store.
type Channels struct {
	Raw  chan models.RawStreamMessage
	Norm chan models.UserEvent

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, normBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:  make(chan models.RawStreamMessage, rawBufferSize),
		Norm: make(chan models.UserEvent, normBufferSize),
		log:  log,
	}

	log.WithComponent("event_channels").WithFields(logger.Fields{
		"raw_buffer_size":  rawBufferSize,
		"norm_buffer_size": normBufferSize,
	}).Info("event channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Raw)
	close(c.Norm)
	c.log.WithComponent("event_channels").Info("event channels closed")
}

func (c *Channels) IncrementRawSent() {
	c.statsMutex.Lock()
	c.stats.RawSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementNormSent() {
	c.statsMutex.Lock()
	c.stats.NormSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementRawDropped() {
	c.statsMutex.Lock()
	c.stats.RawDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementNormDropped() {
	c.statsMutex.Lock()
	c.stats.NormDropped++
	c.statsMutex.Unlock()
}

// SendRaw enqueues a raw frame without blocking the session's read loop.
// Dropped frames are counted; a saturated pipeline must never stall the
// socket reader.
func (c *Channels) SendRaw(ctx context.Context, msg models.RawStreamMessage) bool {
	select {
	case c.Raw <- msg:
		c.IncrementRawSent()
		logger.RecordChannelMessage("events_raw", len(msg.Data))
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementRawDropped()
		return false
	}
}

func (c *Channels) SendNorm(ctx context.Context, evt models.UserEvent) bool {
	select {
	case c.Norm <- evt:
		c.IncrementNormSent()
		logger.RecordChannelMessage("events_norm", 1)
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementNormDropped()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
