// Package book maintains per-symbol best bid/ask and live entries from
// market data full and incremental refreshes.
package book

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fixfeed/models"
)

// Stats counts the entries a book has seen by side.
type Stats = models.BookStats

// OrderBook is the state for one symbol.
type OrderBook struct {
	mu        sync.RWMutex
	symbol    string
	bestBid   decimal.Decimal
	bidFound  bool
	bestAsk   decimal.Decimal
	askFound  bool
	levels    map[string]models.PriceLevel
	lastTrade *models.Trade
	stats     Stats
	updatedAt time.Time
}

// NewOrderBook returns an empty book.
func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{symbol: symbol, levels: make(map[string]models.PriceLevel)}
}

func (b *OrderBook) Symbol() string { return b.symbol }

// ApplySnapshot replaces the book with the entries of a full refresh. Entries
// without an MDEntryID set the best prices but are not live levels, since no
// incremental can address them.
func (b *OrderBook) ApplySnapshot(entries []models.MDEntry, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bidFound, b.askFound = false, false
	b.bestBid, b.bestAsk = decimal.Zero, decimal.Zero
	b.levels = make(map[string]models.PriceLevel, len(entries))

	for _, e := range entries {
		side := e.Type.Side()
		switch side {
		case models.SideBid:
			b.stats.Bids++
			if !b.bidFound || e.Price.GreaterThan(b.bestBid) {
				b.bestBid, b.bidFound = e.Price, true
			}
		case models.SideOffer:
			b.stats.Offers++
			if !b.askFound || e.Price.LessThan(b.bestAsk) {
				b.bestAsk, b.askFound = e.Price, true
			}
		case models.SideTrade:
			b.stats.Trades++
			b.lastTrade = &models.Trade{Price: e.Price, Size: e.Size, At: at}
			continue
		default:
			b.stats.Unknown++
			continue
		}
		b.stats.Applied++
		if e.EntryID == "" {
			b.stats.Unkeyed++
			continue
		}
		b.levels[e.EntryID] = models.PriceLevel{EntryID: e.EntryID, Side: side, Price: e.Price, Size: e.Size}
	}
	b.updatedAt = at
}

// ApplyIncremental upserts or deletes live entries and recomputes the best
// prices from the live levels. Deleting an unknown entry is reported and
// skipped.
func (b *OrderBook) ApplyIncremental(entries []models.MDEntry, at time.Time) []models.EntryError {
	b.mu.Lock()
	defer b.mu.Unlock()

	var failures []models.EntryError
	for _, e := range entries {
		side := e.Type.Side()
		switch side {
		case models.SideTrade:
			b.stats.Trades++
			if e.Action != models.ActionDelete {
				b.lastTrade = &models.Trade{Price: e.Price, Size: e.Size, At: at}
			}
			continue
		case models.SideBid:
			b.stats.Bids++
		case models.SideOffer:
			b.stats.Offers++
		default:
			b.stats.Unknown++
			continue
		}

		switch e.Action {
		case models.ActionNew, models.ActionChange:
			b.levels[e.EntryID] = models.PriceLevel{EntryID: e.EntryID, Side: side, Price: e.Price, Size: e.Size}
			b.stats.Applied++
		case models.ActionDelete:
			if _, ok := b.levels[e.EntryID]; !ok {
				b.stats.Rejected++
				failures = append(failures, models.EntryError{
					Index: e.Index,
					Err:   fmt.Errorf("entry %d: delete of unknown MDEntryID %q", e.Index, e.EntryID),
				})
				continue
			}
			delete(b.levels, e.EntryID)
			b.stats.Applied++
		}
	}
	b.recomputeLocked()
	b.updatedAt = at
	return failures
}

func (b *OrderBook) recomputeLocked() {
	b.bidFound, b.askFound = false, false
	b.bestBid, b.bestAsk = decimal.Zero, decimal.Zero
	for _, l := range b.levels {
		switch l.Side {
		case models.SideBid:
			if !b.bidFound || l.Price.GreaterThan(b.bestBid) {
				b.bestBid, b.bidFound = l.Price, true
			}
		case models.SideOffer:
			if !b.askFound || l.Price.LessThan(b.bestAsk) {
				b.bestAsk, b.askFound = l.Price, true
			}
		}
	}
}

// Quote returns the current top of book.
func (b *OrderBook) Quote() models.QuoteUpdate {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return models.QuoteUpdate{
		Symbol:     b.symbol,
		BestBid:    b.bestBid,
		BidFound:   b.bidFound,
		BestAsk:    b.bestAsk,
		AskFound:   b.askFound,
		Levels:     len(b.levels),
		ReceivedAt: b.updatedAt,
	}
}

// Levels returns the live entries, bids best first then offers best first.
func (b *OrderBook) Levels() []models.PriceLevel {
	b.mu.RLock()
	out := make([]models.PriceLevel, 0, len(b.levels))
	for _, l := range b.levels {
		out = append(out, l)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Side != out[j].Side {
			return out[i].Side == models.SideBid
		}
		if !out[i].Price.Equal(out[j].Price) {
			if out[i].Side == models.SideBid {
				return out[i].Price.GreaterThan(out[j].Price)
			}
			return out[i].Price.LessThan(out[j].Price)
		}
		return out[i].EntryID < out[j].EntryID
	})
	return out
}

// LastTrade returns the most recent trade entry.
func (b *OrderBook) LastTrade() (models.Trade, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lastTrade == nil {
		return models.Trade{}, false
	}
	return *b.lastTrade, true
}

func (b *OrderBook) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// View copies the quote, last trade, counters and live levels.
func (b *OrderBook) View() models.BookView {
	v := models.BookView{Quote: b.Quote(), Stats: b.Stats(), Levels: b.Levels()}
	if tr, ok := b.LastTrade(); ok {
		v.LastTrade = &tr
	}
	return v
}
