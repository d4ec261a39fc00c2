package book

import (
	"sort"
	"sync"
	"time"

	"fixfeed/models"
)

// Result reports what one market data message did to the books.
type Result struct {
	Quotes         []models.QuoteUpdate
	Errors         []models.EntryError
	MissingEntries bool
}

// Books is the set of order books owned by one session.
type Books struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

func NewBooks() *Books {
	return &Books{books: make(map[string]*OrderBook)}
}

// Get returns the book for symbol if it exists.
func (bs *Books) Get(symbol string) (*OrderBook, bool) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	b, ok := bs.books[symbol]
	return b, ok
}

func (bs *Books) getOrCreate(symbol string) *OrderBook {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	b, ok := bs.books[symbol]
	if !ok {
		b = NewOrderBook(symbol)
		bs.books[symbol] = b
	}
	return b
}

// groupBySymbol keeps entries in order, split by symbol in first seen order.
func groupBySymbol(entries []models.MDEntry) ([]string, map[string][]models.MDEntry) {
	var order []string
	bySymbol := make(map[string][]models.MDEntry)
	for _, e := range entries {
		if _, ok := bySymbol[e.Symbol]; !ok {
			order = append(order, e.Symbol)
		}
		bySymbol[e.Symbol] = append(bySymbol[e.Symbol], e)
	}
	return order, bySymbol
}

// ApplySnapshot applies a full refresh. A message without NoMDEntries leaves
// every book unchanged.
func (bs *Books) ApplySnapshot(msg models.Snapshot, at time.Time) Result {
	res := Result{Errors: msg.EntryErrors}
	if !msg.HasEntries {
		res.MissingEntries = true
		return res
	}

	order, bySymbol := groupBySymbol(msg.Entries)
	if len(order) == 0 && msg.Symbol != "" {
		order = []string{msg.Symbol}
	}
	for _, sym := range order {
		b := bs.getOrCreate(sym)
		b.ApplySnapshot(bySymbol[sym], at)
		q := b.Quote()
		q.Source = models.Snapshot{}.MsgType()
		res.Quotes = append(res.Quotes, q)
	}
	return res
}

// ApplyIncremental applies an incremental refresh.
func (bs *Books) ApplyIncremental(msg models.Incremental, at time.Time) Result {
	res := Result{Errors: msg.EntryErrors}
	if !msg.HasEntries {
		res.MissingEntries = true
		return res
	}

	order, bySymbol := groupBySymbol(msg.Entries)
	for _, sym := range order {
		b := bs.getOrCreate(sym)
		res.Errors = append(res.Errors, b.ApplyIncremental(bySymbol[sym], at)...)
		q := b.Quote()
		q.Source = models.Incremental{}.MsgType()
		res.Quotes = append(res.Quotes, q)
	}
	return res
}

// Remove drops the book for symbol.
func (bs *Books) Remove(symbol string) {
	bs.mu.Lock()
	delete(bs.books, symbol)
	bs.mu.Unlock()
}

// Clear drops every book.
func (bs *Books) Clear() {
	bs.mu.Lock()
	bs.books = make(map[string]*OrderBook)
	bs.mu.Unlock()
}

// Symbols lists the symbols with a book, sorted.
func (bs *Books) Symbols() []string {
	bs.mu.RLock()
	out := make([]string, 0, len(bs.books))
	for s := range bs.books {
		out = append(out, s)
	}
	bs.mu.RUnlock()
	sort.Strings(out)
	return out
}
