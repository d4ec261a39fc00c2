package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side classifies a market data entry.
type Side string

const (
	SideBid     Side = "bid"
	SideOffer   Side = "offer"
	SideTrade   Side = "trade"
	SideUnknown Side = "unknown"
)

// PriceLevel is one live entry of an order book keyed by its entry id.
type PriceLevel struct {
	EntryID string          `json:"entry_id"`
	Side    Side            `json:"side"`
	Price   decimal.Decimal `json:"price"`
	Size    decimal.Decimal `json:"size"`
}

// Trade is the last trade entry seen for a symbol.
type Trade struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
	At    time.Time       `json:"at"`
}

// QuoteUpdate is the top of book published after each applied market data
// message.
type QuoteUpdate struct {
	Session    string          `json:"session"`
	Symbol     string          `json:"symbol"`
	BestBid    decimal.Decimal `json:"best_bid"`
	BidFound   bool            `json:"bid_found"`
	BestAsk    decimal.Decimal `json:"best_ask"`
	AskFound   bool            `json:"ask_found"`
	Levels     int             `json:"levels"`
	Source     string          `json:"source"` // "W" full refresh or "X" incremental
	ReceivedAt time.Time       `json:"received_at"`
}

// NotAvailable is rendered for a side that has no price.
const NotAvailable = "N/A"

// BidString renders the best bid or N/A.
func (q QuoteUpdate) BidString() string {
	if !q.BidFound {
		return NotAvailable
	}
	return q.BestBid.String()
}

// AskString renders the best ask or N/A.
func (q QuoteUpdate) AskString() string {
	if !q.AskFound {
		return NotAvailable
	}
	return q.BestAsk.String()
}

// QuoteBatch groups archived quotes for a single symbol.
type QuoteBatch struct {
	BatchID     string        `json:"batch_id"`
	Venue       string        `json:"venue"`
	Symbol      string        `json:"symbol"`
	Quotes      []QuoteUpdate `json:"quotes"`
	RecordCount int           `json:"record_count"`
	Timestamp   time.Time     `json:"timestamp"`
}

// BookStats counts the entries a book has seen by kind.
type BookStats struct {
	Bids     int64 `json:"bids"`
	Offers   int64 `json:"offers"`
	Trades   int64 `json:"trades"`
	Unknown  int64 `json:"unknown"`
	Unkeyed  int64 `json:"unkeyed"`
	Applied  int64 `json:"applied"`
	Rejected int64 `json:"rejected"`
}

// BookView is a point in time copy of one order book.
type BookView struct {
	Quote     QuoteUpdate  `json:"quote"`
	LastTrade *Trade       `json:"last_trade,omitempty"`
	Stats     BookStats    `json:"stats"`
	Levels    []PriceLevel `json:"levels"`
}
