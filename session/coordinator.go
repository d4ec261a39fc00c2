// Package session implements the quickfix Application that drives logon
// signing, subscription and market data handling for each FIX session.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quickfixgo/quickfix"
	"golang.org/x/time/rate"

	"fixfeed/auth"
	"fixfeed/book"
	"fixfeed/config"
	"fixfeed/internal/channel/quotes"
	"fixfeed/internal/metrics"
	"fixfeed/logger"
	"fixfeed/models"
	"fixfeed/subscription"
)

// Sender delivers an outbound message to a session.
type Sender func(m quickfix.Messagable, id quickfix.SessionID) error

// state is the per-session lifecycle record.
type state struct {
	mu          sync.Mutex
	phase       models.Phase
	mdRequested bool
	mdReqID     string
	books       *book.Books
}

// Coordinator implements quickfix.Application.
type Coordinator struct {
	cfg    *config.Config
	creds  models.Credentials
	signer *auth.Signer
	strict bool

	send   Sender
	now    func() time.Time
	quotes *quotes.Channel

	mu         sync.RWMutex
	sessions   map[quickfix.SessionID]*state
	current    quickfix.SessionID
	hasCurrent bool

	signingFailures chan error
	loggedOn        chan quickfix.SessionID
	anomalies       *rate.Limiter

	log *logger.Entry
}

// NewCoordinator decodes the secret and prepares an empty session table.
// quoteCh may be nil when nothing consumes quotes.
func NewCoordinator(cfg *config.Config, quoteCh *quotes.Channel) (*Coordinator, error) {
	signer, err := auth.NewSigner(cfg.Credentials.SecretKey, cfg.Credentials.SecretEncoding)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		cfg: cfg,
		creds: models.Credentials{
			Username:         cfg.Credentials.Username,
			Passphrase:       cfg.Credentials.Passphrase,
			SecretKey:        cfg.Credentials.SecretKey,
			SenderCompID:     cfg.Venue.SenderCompID,
			TargetCompID:     cfg.Venue.TargetCompID,
			DefaultApplVerID: cfg.Venue.DefaultApplVerID,
		},
		signer:          signer,
		strict:          cfg.Auth.StrictSigning,
		send:            quickfix.SendToTarget,
		now:             time.Now,
		quotes:          quoteCh,
		sessions:        make(map[quickfix.SessionID]*state),
		signingFailures: make(chan error, 1),
		loggedOn:        make(chan quickfix.SessionID, 1),
		anomalies:       rate.NewLimiter(rate.Every(time.Second), 10),
		log:             logger.GetLogger().WithComponent("session"),
	}, nil
}

// SigningFailures reports strict logon signing failures. main stops the
// initiator on the first value.
func (c *Coordinator) SigningFailures() <-chan error { return c.signingFailures }

// LoggedOn receives the session id of each successful logon.
func (c *Coordinator) LoggedOn() <-chan quickfix.SessionID { return c.loggedOn }

// Close wipes the decoded secret.
func (c *Coordinator) Close() { c.signer.Wipe() }

func (c *Coordinator) lookup(id quickfix.SessionID) (*state, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.sessions[id]
	return st, ok
}

func (c *Coordinator) stateFor(id quickfix.SessionID) *state {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sessions[id]
	if !ok {
		st = &state{books: book.NewBooks()}
		c.sessions[id] = st
	}
	return st
}

// Phase returns the lifecycle phase of id.
func (c *Coordinator) Phase(id quickfix.SessionID) models.Phase {
	st, ok := c.lookup(id)
	if !ok {
		return models.PhaseNoSession
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.phase
}

// MarketDataRequested reports whether a subscription is outstanding for id.
func (c *Coordinator) MarketDataRequested(id quickfix.SessionID) bool {
	st, ok := c.lookup(id)
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.mdRequested
}

// Books returns the order books of id.
func (c *Coordinator) Books(id quickfix.SessionID) (*book.Books, bool) {
	st, ok := c.lookup(id)
	if !ok {
		return nil, false
	}
	return st.books, true
}

// Current returns the most recently created session that has not logged out.
func (c *Coordinator) Current() (quickfix.SessionID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.hasCurrent
}

func (c *Coordinator) OnCreate(id quickfix.SessionID) {
	st := c.stateFor(id)
	st.mu.Lock()
	st.phase = models.PhaseCreated
	st.mu.Unlock()

	c.mu.Lock()
	c.current, c.hasCurrent = id, true
	c.mu.Unlock()

	metrics.IncSessionEvent("create")
	c.log.WithSession(id.String()).Info("session created")
}

func (c *Coordinator) OnLogon(id quickfix.SessionID) {
	st := c.stateFor(id)
	st.mu.Lock()
	st.phase = models.PhaseLoggedOn
	st.mdRequested = false
	st.mdReqID = ""
	st.mu.Unlock()

	metrics.IncSessionEvent("logon")
	log := c.log.WithSession(id.String())
	log.Info("logon successful")
	log.LogMetric("session", "logons", 1, "counter", nil)

	select {
	case c.loggedOn <- id:
	default:
	}

	if err := c.Subscribe(id); err != nil {
		log.WithError(err).Error("market data subscription failed")
	}
	if c.cfg.Subscribe.SecurityList {
		c.requestSecurityList(id, log)
	}
}

func (c *Coordinator) requestSecurityList(id quickfix.SessionID, log *logger.Entry) {
	msg, reqID := subscription.EncodeSecurityList()
	if err := c.send(msg, id); err != nil {
		log.WithError(err).Warn("security list request failed")
		return
	}
	log.WithField("security_req_id", reqID).Info("security list requested")
}

func (c *Coordinator) OnLogout(id quickfix.SessionID) {
	if st, ok := c.lookup(id); ok {
		st.mu.Lock()
		st.phase = models.PhaseNoSession
		st.mdRequested = false
		st.mdReqID = ""
		st.mu.Unlock()
		st.books.Clear()
	}

	c.mu.Lock()
	if c.hasCurrent && c.current == id {
		c.current, c.hasCurrent = quickfix.SessionID{}, false
	}
	c.mu.Unlock()

	metrics.IncSessionEvent("logout")
	c.log.WithSession(id.String()).Info("session logged out")
}

// publish forwards a quote to the channel without blocking the engine.
func (c *Coordinator) publish(q models.QuoteUpdate) {
	metrics.SetBestPrice(q.Symbol, "bid", q.BestBid, q.BidFound)
	metrics.SetBestPrice(q.Symbol, "ask", q.BestAsk, q.AskFound)
	if c.quotes == nil {
		return
	}
	if c.quotes.Send(context.Background(), q) {
		logger.IncrementQuotePublished()
	}
}

// sortedStates snapshots the session map sorted by id.
func (c *Coordinator) sortedStates() ([]quickfix.SessionID, map[quickfix.SessionID]*state) {
	c.mu.RLock()
	ids := make([]quickfix.SessionID, 0, len(c.sessions))
	states := make(map[quickfix.SessionID]*state, len(c.sessions))
	for id, st := range c.sessions {
		ids = append(ids, id)
		states[id] = st
	}
	c.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, states
}

// Status reports every known session, sorted by id, with the top of each book.
func (c *Coordinator) Status() []models.SessionStatus {
	ids, states := c.sortedStates()
	out := make([]models.SessionStatus, 0, len(ids))
	for _, id := range ids {
		st := states[id]
		st.mu.Lock()
		status := models.SessionStatus{
			Session:             id.String(),
			Phase:               st.phase.String(),
			MarketDataRequested: st.mdRequested,
			MDReqID:             st.mdReqID,
		}
		st.mu.Unlock()
		for _, sym := range st.books.Symbols() {
			if b, ok := st.books.Get(sym); ok {
				q := b.Quote()
				q.Session = status.Session
				status.Quotes = append(status.Quotes, q)
			}
		}
		out = append(out, status)
	}
	return out
}

// BookViews returns the book for symbol in every session that has one.
func (c *Coordinator) BookViews(symbol string) []models.BookView {
	ids, states := c.sortedStates()
	var out []models.BookView
	for _, id := range ids {
		b, ok := states[id].books.Get(symbol)
		if !ok {
			continue
		}
		v := b.View()
		v.Quote.Session = id.String()
		out = append(out, v)
	}
	return out
}
