package session

import (
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"

	"fixfeed/book"
	"fixfeed/fix"
	"fixfeed/internal/metrics"
	"fixfeed/logger"
	"fixfeed/models"
)

// FromAdmin logs logon confirmations, logout reasons and session rejects.
func (c *Coordinator) FromAdmin(msg *quickfix.Message, id quickfix.SessionID) quickfix.MessageRejectError {
	msgType, _ := msg.Header.GetString(tag.MsgType)
	log := c.log.WithSession(id.String())
	if c.cfg.Logging.LogMessages {
		log.WithField("msg_type", msgType).Debugf("incoming admin %s", logger.Redact(msg.String()))
	}

	switch msgType {
	case fix.MsgTypeLogon:
		log.Info("logon confirmed by venue")
	case fix.MsgTypeLogout:
		text, _ := msg.Body.GetString(tag.Text)
		log.WithField("text", text).Warn("logout received")
	case fix.MsgTypeReject:
		in, err := fix.Decode(msg)
		if err != nil {
			log.WithError(err).Warn("undecodable session reject")
			break
		}
		if r, ok := in.(models.SessionReject); ok {
			c.onSessionReject(log, r)
		}
	}
	return nil
}

// FromApp decodes application messages and dispatches them. Decode problems
// are logged and never surface to the engine.
func (c *Coordinator) FromApp(msg *quickfix.Message, id quickfix.SessionID) quickfix.MessageRejectError {
	log := c.log.WithSession(id.String())
	in, err := fix.Decode(msg)
	if err != nil {
		logger.IncrementEntryAnomaly()
		log.WithError(err).Warn("dropping undecodable application message")
		return nil
	}
	metrics.IncMessage(in.MsgType())
	c.dispatch(id, in)
	return nil
}

func (c *Coordinator) dispatch(id quickfix.SessionID, in models.Inbound) {
	log := c.log.WithSession(id.String())
	switch m := in.(type) {
	case models.Snapshot:
		st := c.stateFor(id)
		c.handleResult(id, log, m.Symbol, m.MsgType(), st.books.ApplySnapshot(m, c.now()))
	case models.Incremental:
		st := c.stateFor(id)
		c.handleResult(id, log, m.Symbol, m.MsgType(), st.books.ApplyIncremental(m, c.now()))
	case models.MDReject:
		c.onMDReject(id, log, m)
	case models.BusinessReject:
		metrics.IncReject("business")
		log.WithFields(logger.Fields{
			"ref_msg_type": m.RefMsgType,
			"ref_seq_num":  m.RefSeqNum,
			"reason":       m.Reason,
			"text":         m.Text,
		}).Error("business message reject")
	case models.SessionReject:
		c.onSessionReject(log, m)
	case models.SecurityStatus:
		log.WithFields(logger.Fields{
			"symbol":         m.Symbol,
			"trading_status": m.TradingStatus,
			"text":           m.Text,
		}).Info("security status")
	case models.SecurityList:
		log.WithFields(logger.Fields{
			"security_req_id": m.RequestID,
			"symbols":         len(m.Symbols),
		}).Info("security list")
	default:
		log.WithField("msg_type", in.MsgType()).Debug("unhandled application message")
	}
}

func (c *Coordinator) onSessionReject(log *logger.Entry, r models.SessionReject) {
	metrics.IncReject("session")
	log.WithFields(logger.Fields{
		"ref_seq_num":  r.RefSeqNum,
		"ref_tag_id":   r.RefTagID,
		"ref_msg_type": r.RefMsgType,
		"reason":       r.Reason,
		"text":         r.Text,
	}).Error("session level reject")
}

// onMDReject clears the request flag so the next logon subscribes again.
func (c *Coordinator) onMDReject(id quickfix.SessionID, log *logger.Entry, r models.MDReject) {
	metrics.IncReject("market_data")
	if st, ok := c.lookup(id); ok {
		st.mu.Lock()
		st.mdRequested = false
		st.mdReqID = ""
		st.mu.Unlock()
	}
	log.WithFields(logger.Fields{
		"md_req_id": r.MDReqID,
		"reason":    r.Reason,
		"text":      r.Text,
	}).Error("market data request rejected")
}

func (c *Coordinator) handleResult(id quickfix.SessionID, log *logger.Entry, symbol, msgType string, res book.Result) {
	if symbol == "" {
		symbol = "unknown"
	}
	if res.MissingEntries {
		logger.IncrementEntryAnomaly()
		metrics.IncEntryAnomaly(symbol)
		log.WithFields(logger.Fields{"symbol": symbol, "msg_type": msgType}).Warn("market data message without NoMDEntries")
		return
	}

	suppressed := 0
	for _, e := range res.Errors {
		logger.IncrementEntryAnomaly()
		metrics.IncEntryAnomaly(symbol)
		if !c.anomalies.Allow() {
			suppressed++
			continue
		}
		log.WithFields(logger.Fields{"symbol": symbol, "entry": e.Index}).WithError(e.Err).Warn("skipping market data entry")
	}
	if suppressed > 0 {
		log.WithField("suppressed", suppressed).Debug("entry anomaly logs throttled")
	}

	for _, q := range res.Quotes {
		q.Session = id.String()
		log.WithFields(logger.Fields{
			"symbol":   q.Symbol,
			"best_bid": q.BidString(),
			"best_ask": q.AskString(),
			"levels":   q.Levels,
			"source":   q.Source,
		}).Info("top of book")
		c.publish(q)
	}
}
