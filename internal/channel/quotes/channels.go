package quotes

import (
	"context"
	"sync"

	"fixfeed/internal/metrics"
	"fixfeed/logger"
	"fixfeed/models"
)

type ChannelStats struct {
	Sent    int64
	Dropped int64
}

// Channel carries top of book updates from the coordinator to consumers.
// Sends never block the engine callback.
type Channel struct {
	Quotes chan models.QuoteUpdate

	stats      ChannelStats
	statsMutex sync.RWMutex
	closeOnce  sync.Once
	log        *logger.Log
}

func NewChannel(bufferSize int) *Channel {
	log := logger.GetLogger()
	c := &Channel{
		Quotes: make(chan models.QuoteUpdate, bufferSize),
		log:    log,
	}

	log.WithComponent("quote_channel").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("quote channel initialized")

	return c
}

func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.Quotes)
		c.log.WithComponent("quote_channel").Info("quote channel closed")
	})
}

func (c *Channel) incrementSent() {
	c.statsMutex.Lock()
	c.stats.Sent++
	c.statsMutex.Unlock()
}

func (c *Channel) incrementDropped() {
	c.statsMutex.Lock()
	c.stats.Dropped++
	c.statsMutex.Unlock()
}

// Send publishes q, dropping it when the buffer is full.
func (c *Channel) Send(ctx context.Context, q models.QuoteUpdate) bool {
	select {
	case c.Quotes <- q:
		c.incrementSent()
		logger.RecordChannelMessage("quotes", 1)
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementDropped()
		metrics.IncQuoteDropped()
		return false
	}
}

func (c *Channel) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
