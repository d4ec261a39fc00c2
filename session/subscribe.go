package session

import (
	"fmt"
	"strings"

	"github.com/quickfixgo/quickfix"

	"fixfeed/errs"
	"fixfeed/internal/metrics"
	"fixfeed/logger"
	"fixfeed/models"
	"fixfeed/subscription"
)

// Subscribe sends the configured market data request once per logon. A
// failed send clears the flag so a later logon can retry.
func (c *Coordinator) Subscribe(id quickfix.SessionID) error {
	st, ok := c.lookup(id)
	if !ok {
		return fmt.Errorf("subscribe %s: %w", id, errs.ErrSessionNotFound)
	}

	st.mu.Lock()
	if st.phase != models.PhaseLoggedOn {
		st.mu.Unlock()
		return fmt.Errorf("subscribe %s: not logged on: %w", id, errs.ErrSessionNotFound)
	}
	if st.mdRequested {
		st.mu.Unlock()
		return nil
	}
	st.mdRequested = true
	st.mu.Unlock()

	reset := func() {
		st.mu.Lock()
		st.mdRequested = false
		st.mdReqID = ""
		st.mu.Unlock()
	}

	req, err := subscription.Build(c.cfg.Subscribe)
	if err != nil {
		reset()
		metrics.IncSubscription("invalid")
		return err
	}

	if err := c.send(subscription.Encode(req), id); err != nil {
		reset()
		metrics.IncSubscription("failed")
		if isUnknownSession(err) {
			return fmt.Errorf("subscribe %s: %v: %w", id, err, errs.ErrSessionNotFound)
		}
		return fmt.Errorf("subscribe %s: %w", id, err)
	}

	st.mu.Lock()
	st.mdReqID = req.RequestID
	st.mu.Unlock()
	if req.SubscriptionType == models.SubscriptionUnsubscribe {
		for _, sym := range req.Symbols {
			st.books.Remove(sym)
		}
	}

	metrics.IncSubscription("sent")
	c.log.WithSession(id.String()).WithFields(logger.Fields{
		"md_req_id": req.RequestID,
		"symbols":   strings.Join(req.Symbols, ","),
	}).Info("market data subscription sent")
	return nil
}

// unknownSessionText is the message of the unexported errUnknownSession that
// quickfixgo v0.8.1 SendToTarget returns for a session it does not know.
const unknownSessionText = "Unknown session"

func isUnknownSession(err error) bool {
	return strings.Contains(err.Error(), unknownSessionText)
}
