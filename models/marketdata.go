package models

import (
	"github.com/shopspring/decimal"
)

/////////////////////////////////////////////////////////////////////////////
/////////////////////////////// WIRE CODES //////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// EntryType is the single character MDEntryType (269) code.
type EntryType byte

const (
	EntryTypeBid   EntryType = '0'
	EntryTypeOffer EntryType = '1'
	EntryTypeTrade EntryType = '2'
)

// Side maps the wire code onto a book side.
func (t EntryType) Side() Side {
	switch t {
	case EntryTypeBid:
		return SideBid
	case EntryTypeOffer:
		return SideOffer
	case EntryTypeTrade:
		return SideTrade
	default:
		return SideUnknown
	}
}

func (t EntryType) String() string { return string(t) }

// UpdateAction is the MDUpdateAction (279) code of an incremental entry.
type UpdateAction byte

const (
	ActionNew    UpdateAction = '0'
	ActionChange UpdateAction = '1'
	ActionDelete UpdateAction = '2'
)

func (a UpdateAction) String() string { return string(a) }

// SubscriptionType is the SubscriptionRequestType (263) code.
type SubscriptionType byte

const (
	SubscriptionSnapshot        SubscriptionType = '0'
	SubscriptionSnapshotUpdates SubscriptionType = '1'
	SubscriptionUnsubscribe     SubscriptionType = '2'
)

func (s SubscriptionType) String() string { return string(s) }

// UpdateType is the MDUpdateType (265) code.
type UpdateType byte

const (
	UpdateFullRefresh UpdateType = '0'
	UpdateIncremental UpdateType = '1'
)

func (u UpdateType) String() string { return string(u) }

/////////////////////////////////////////////////////////////////////////////
/////////////////////////////// OUTBOUND ////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// SubscriptionRequest is a fully resolved market data request.
type SubscriptionRequest struct {
	RequestID        string
	Symbols          []string
	SubscriptionType SubscriptionType
	MarketDepth      int
	UpdateType       UpdateType
	EntryTypes       []EntryType
}

/////////////////////////////////////////////////////////////////////////////
//////////////////////////////// INBOUND ////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// MDEntry is one decoded NoMDEntries group entry. Index is 1-based.
type MDEntry struct {
	Index    int
	Type     EntryType
	Action   UpdateAction
	EntryID  string
	Symbol   string
	Price    decimal.Decimal
	HasPrice bool
	Size     decimal.Decimal
	HasSize  bool
}

// EntryError records an entry that could not be decoded or applied.
type EntryError struct {
	Index int
	Err   error
}

func (e EntryError) Error() string { return e.Err.Error() }

func (e EntryError) Unwrap() error { return e.Err }
