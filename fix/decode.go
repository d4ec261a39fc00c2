package fix

import (
	"fmt"

	"github.com/quickfixgo/quickfix"
	"github.com/shopspring/decimal"

	"fixfeed/errs"
	"fixfeed/models"
)

// Decode converts an engine message into the inbound union.
func Decode(msg *quickfix.Message) (models.Inbound, error) {
	return DecodeRaw(msg.String())
}

// DecodeRaw decodes an SOH delimited message. Only a missing MsgType is an
// error; entry level problems are reported in EntryErrors.
func DecodeRaw(raw string) (models.Inbound, error) {
	r := ParseRaw(raw)
	msgType, ok := r.Get(TagMsgType)
	if !ok || msgType == "" {
		return nil, errs.MissingField("MsgType", TagMsgType)
	}

	switch msgType {
	case MsgTypeSnapshot:
		s := models.Snapshot{MDReqID: r.String(TagMDReqID), Symbol: r.String(TagSymbol)}
		entries, has := r.Group(TagNoMDEntries)
		s.HasEntries = has
		s.Entries, s.EntryErrors = decodeEntries(entries, s.Symbol, false)
		if has {
			s.EntryErrors = checkCount(r, len(entries), s.EntryErrors)
		}
		return s, nil
	case MsgTypeIncremental:
		inc := models.Incremental{MDReqID: r.String(TagMDReqID), Symbol: r.String(TagSymbol)}
		entries, has := r.Group(TagNoMDEntries)
		inc.HasEntries = has
		inc.Entries, inc.EntryErrors = decodeEntries(entries, inc.Symbol, true)
		if has {
			inc.EntryErrors = checkCount(r, len(entries), inc.EntryErrors)
		}
		return inc, nil
	case MsgTypeMDReject:
		return models.MDReject{
			MDReqID: r.String(TagMDReqID),
			Reason:  r.String(TagMDReqRejReason),
			Text:    r.String(TagText),
		}, nil
	case MsgTypeBusinessReject:
		return models.BusinessReject{
			RefMsgType: r.String(TagRefMsgType),
			RefSeqNum:  r.String(TagRefSeqNum),
			Reason:     r.String(TagBusinessRejectReason),
			Text:       r.String(TagText),
		}, nil
	case MsgTypeReject:
		return models.SessionReject{
			RefSeqNum:  r.String(TagRefSeqNum),
			RefTagID:   r.String(TagRefTagID),
			RefMsgType: r.String(TagRefMsgType),
			Reason:     r.String(TagSessionRejectReason),
			Text:       r.String(TagText),
		}, nil
	case MsgTypeSecurityStatus:
		return models.SecurityStatus{
			Symbol:        r.String(TagSymbol),
			TradingStatus: r.String(TagSecurityTradingStat),
			Text:          r.String(TagText),
		}, nil
	case MsgTypeSecurityList:
		entries, _ := r.Group(TagNoRelatedSym)
		list := models.SecurityList{RequestID: r.String(TagSecurityReqID)}
		for _, e := range entries {
			if sym, ok := e.Get(TagSymbol); ok {
				list.Symbols = append(list.Symbols, sym)
			}
		}
		return list, nil
	default:
		return models.Unhandled{Type: msgType}, nil
	}
}

// checkCount reports a NoMDEntries value that does not match the entries on
// the wire. The error carries entry index 0.
func checkCount(r *Raw, parsed int, failures []models.EntryError) []models.EntryError {
	declared := r.Count(TagNoMDEntries)
	if declared == parsed {
		return failures
	}
	var err error
	if declared < 0 {
		err = fmt.Errorf("invalid NoMDEntries (%d) %q", TagNoMDEntries, r.String(TagNoMDEntries))
	} else {
		err = fmt.Errorf("NoMDEntries (%d) declares %d entries, found %d", TagNoMDEntries, declared, parsed)
	}
	return append(failures, models.EntryError{Index: 0, Err: err})
}

func decodeEntries(entries []Entry, symbol string, incremental bool) ([]models.MDEntry, []models.EntryError) {
	out := make([]models.MDEntry, 0, len(entries))
	var failures []models.EntryError
	for i, e := range entries {
		idx := i + 1
		entry, err := decodeEntry(e, idx, symbol, incremental)
		if err != nil {
			failures = append(failures, models.EntryError{Index: idx, Err: err})
			continue
		}
		out = append(out, entry)
	}
	return out, failures
}

func decodeEntry(e Entry, idx int, symbol string, incremental bool) (models.MDEntry, error) {
	entry := models.MDEntry{Index: idx, Symbol: symbol}

	if incremental {
		action, ok := e.Get(TagMDUpdateAction)
		if !ok || action == "" {
			return entry, errs.MissingEntryField("MDUpdateAction", TagMDUpdateAction, idx)
		}
		entry.Action = models.UpdateAction(action[0])
		switch entry.Action {
		case models.ActionNew, models.ActionChange, models.ActionDelete:
		default:
			return entry, fmt.Errorf("entry %d: unsupported MDUpdateAction %q", idx, action)
		}
	}

	typ, ok := e.Get(TagMDEntryType)
	if !ok || typ == "" {
		return entry, errs.MissingEntryField("MDEntryType", TagMDEntryType, idx)
	}
	entry.Type = models.EntryType(typ[0])

	if id, ok := e.Get(TagMDEntryID); ok {
		entry.EntryID = id
	}
	if incremental && entry.EntryID == "" {
		return entry, errs.MissingEntryField("MDEntryID", TagMDEntryID, idx)
	}
	if sym, ok := e.Get(TagSymbol); ok && sym != "" {
		entry.Symbol = sym
	}
	if entry.Symbol == "" {
		return entry, errs.MissingEntryField("Symbol", TagSymbol, idx)
	}

	px, hasPx := e.Get(TagMDEntryPx)
	needPrice := !incremental || entry.Action != models.ActionDelete
	if hasPx {
		d, err := decimal.NewFromString(px)
		if err != nil {
			return entry, fmt.Errorf("entry %d: invalid MDEntryPx %q: %w", idx, px, err)
		}
		entry.Price, entry.HasPrice = d, true
	} else if needPrice {
		return entry, errs.MissingEntryField("MDEntryPx", TagMDEntryPx, idx)
	}

	if sz, ok := e.Get(TagMDEntrySize); ok {
		d, err := decimal.NewFromString(sz)
		if err != nil {
			return entry, fmt.Errorf("entry %d: invalid MDEntrySize %q: %w", idx, sz, err)
		}
		entry.Size, entry.HasSize = d, true
	}
	return entry, nil
}
