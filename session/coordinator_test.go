package session

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"

	"fixfeed/auth"
	"fixfeed/config"
	"fixfeed/errs"
	"fixfeed/internal/channel/quotes"
	"fixfeed/models"
	"fixfeed/subscription"
)

var testSession = quickfix.SessionID{BeginString: quickfix.BeginStringFIXT11, SenderCompID: "svc-1", TargetCompID: "Coinbase"}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) send(m quickfix.Messagable, _ quickfix.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m.ToMessage().String())
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Venue.SenderCompID = "svc-1"
	cfg.Credentials.Username = "api-key"
	cfg.Credentials.Passphrase = "pass"
	cfg.Credentials.SecretKey = "c2VjcmV0" // "secret"
	cfg.Subscribe.Products = "BTC-USD,ETH-USD"
	return &cfg
}

func newTestCoordinator(t *testing.T, cfg *config.Config, ch *quotes.Channel) (*Coordinator, *fakeSender) {
	t.Helper()
	c, err := NewCoordinator(cfg, ch)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	fs := &fakeSender{}
	c.send = fs.send
	c.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return c, fs
}

func logonMessage(sendingTime bool, seq string) *quickfix.Message {
	msg := quickfix.NewMessage()
	msg.Header.SetString(tag.BeginString, quickfix.BeginStringFIXT11)
	msg.Header.SetString(tag.MsgType, "A")
	msg.Header.SetString(tag.SenderCompID, "svc-1")
	msg.Header.SetString(tag.TargetCompID, "Coinbase")
	if seq != "" {
		msg.Header.SetString(tag.MsgSeqNum, seq)
	}
	if sendingTime {
		msg.Header.SetString(tag.SendingTime, "20240501-12:00:00.000")
	}
	return msg
}

// wire frames an SOH body with BeginString, BodyLength and CheckSum.
func wire(body string) string {
	body = strings.ReplaceAll(body, "|", "\x01")
	head := fmt.Sprintf("8=FIXT.1.1\x019=%d\x01", len(body))
	sum := 0
	for _, b := range []byte(head + body) {
		sum += int(b)
	}
	return fmt.Sprintf("%s%s10=%03d\x01", head, body, sum%256)
}

func parsed(t *testing.T, body string) *quickfix.Message {
	t.Helper()
	msg := quickfix.NewMessage()
	if err := quickfix.ParseMessage(msg, bytes.NewBufferString(wire(body))); err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	return msg
}

func TestLogonSigned(t *testing.T) {
	c, _ := newTestCoordinator(t, testConfig(), nil)
	msg := logonMessage(true, "1")
	c.ToAdmin(msg, testSession)

	get := func(fm *quickfix.FieldMap, tg quickfix.Tag) string {
		v, err := fm.GetString(tg)
		if err != nil {
			t.Fatalf("tag %d missing", tg)
		}
		return v
	}
	if get(&msg.Body.FieldMap, tag.HeartBtInt) != "30" || get(&msg.Body.FieldMap, tag.EncryptMethod) != "0" {
		t.Fatalf("heartbeat or encrypt method not set")
	}
	if get(&msg.Body.FieldMap, tag.Username) != "api-key" || get(&msg.Body.FieldMap, tag.Password) != "pass" {
		t.Fatalf("credentials not set")
	}
	if get(&msg.Body.FieldMap, tag.DefaultApplVerID) != "9" {
		t.Fatalf("DefaultApplVerID not set")
	}

	prehash, _ := auth.CreatePrehash("20240501-12:00:00.000", "A", "1", "svc-1", "Coinbase", "pass")
	want, _ := auth.SignWithKey([]byte("secret"), prehash)
	sig := get(&msg.Body.FieldMap, tag.RawData)
	if sig != want {
		t.Fatalf("unexpected signature %q, want %q", sig, want)
	}
	if get(&msg.Body.FieldMap, tag.RawDataLength) != fmt.Sprint(len(want)) {
		t.Fatalf("RawDataLength mismatch")
	}
	if msg.Body.Has(tag.ResetSeqNumFlag) {
		t.Fatalf("ResetSeqNumFlag set without configuration")
	}
}

func TestLogonSendingTimeFallback(t *testing.T) {
	c, _ := newTestCoordinator(t, testConfig(), nil)
	msg := logonMessage(false, "1")
	c.ToAdmin(msg, testSession)

	st, err := msg.Header.GetString(tag.SendingTime)
	if err != nil || st != "20240501-12:00:00.000" {
		t.Fatalf("unexpected SendingTime %q", st)
	}
	if !msg.Body.Has(tag.RawData) {
		t.Fatalf("logon not signed after fallback")
	}
}

func TestLogonStrictFailureStripsCredentials(t *testing.T) {
	c, _ := newTestCoordinator(t, testConfig(), nil)
	msg := logonMessage(true, "")
	c.ToAdmin(msg, testSession)

	for _, tg := range []quickfix.Tag{tag.Password, tag.Username, tag.RawData, tag.RawDataLength} {
		if msg.Body.Has(tg) {
			t.Fatalf("tag %d left on failed logon", tg)
		}
	}
	select {
	case err := <-c.SigningFailures():
		if !errors.Is(err, errs.ErrSigning) || !errors.Is(err, errs.ErrMissingField) {
			t.Fatalf("unexpected failure %v", err)
		}
	default:
		t.Fatalf("signing failure not reported")
	}
}

func TestLogonLenientFailureForwards(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.StrictSigning = false
	c, _ := newTestCoordinator(t, cfg, nil)
	msg := logonMessage(true, "")
	c.ToAdmin(msg, testSession)

	if !msg.Body.Has(tag.Password) || msg.Body.Has(tag.RawData) {
		t.Fatalf("lenient logon should keep credentials and lack a signature")
	}
	select {
	case <-c.SigningFailures():
		t.Fatalf("lenient failure should not stop the process")
	default:
	}
}

func TestLogonResetSeqNum(t *testing.T) {
	cfg := testConfig()
	cfg.Venue.ResetSeqNumOnLogon = true
	c, _ := newTestCoordinator(t, cfg, nil)
	msg := logonMessage(true, "1")
	c.ToAdmin(msg, testSession)
	if v, _ := msg.Body.GetString(tag.ResetSeqNumFlag); v != "Y" {
		t.Fatalf("ResetSeqNumFlag not set")
	}
}

func TestNonLogonAdminUntouched(t *testing.T) {
	c, _ := newTestCoordinator(t, testConfig(), nil)
	msg := quickfix.NewMessage()
	msg.Header.SetString(tag.MsgType, "0")
	c.ToAdmin(msg, testSession)
	if msg.Body.Has(tag.Password) || msg.Body.Has(tag.HeartBtInt) {
		t.Fatalf("heartbeat mutated")
	}
}

func TestToAppApplVerID(t *testing.T) {
	c, _ := newTestCoordinator(t, testConfig(), nil)

	msg := quickfix.NewMessage()
	msg.Header.SetString(tag.MsgType, "V")
	if err := c.ToApp(msg, testSession); err != nil {
		t.Fatalf("ToApp: %v", err)
	}
	if v, _ := msg.Header.GetString(tag.ApplVerID); v != "9" {
		t.Fatalf("ApplVerID not set on FIXT session")
	}

	fix44 := quickfix.SessionID{BeginString: quickfix.BeginStringFIX44, SenderCompID: "a", TargetCompID: "b"}
	msg = quickfix.NewMessage()
	msg.Header.SetString(tag.MsgType, "V")
	_ = c.ToApp(msg, fix44)
	if msg.Header.Has(tag.ApplVerID) {
		t.Fatalf("ApplVerID set on FIX.4.4 session")
	}
}

func TestLifecycleSubscribesOncePerLogon(t *testing.T) {
	c, fs := newTestCoordinator(t, testConfig(), nil)

	if c.Phase(testSession) != models.PhaseNoSession {
		t.Fatalf("unexpected initial phase")
	}
	c.OnCreate(testSession)
	if c.Phase(testSession) != models.PhaseCreated {
		t.Fatalf("expected created phase")
	}
	if cur, ok := c.Current(); !ok || cur != testSession {
		t.Fatalf("current session not stored")
	}

	c.OnLogon(testSession)
	if c.Phase(testSession) != models.PhaseLoggedOn || !c.MarketDataRequested(testSession) {
		t.Fatalf("logon did not subscribe")
	}
	if fs.count() != 1 {
		t.Fatalf("expected one request, got %d", fs.count())
	}
	select {
	case id := <-c.LoggedOn():
		if id != testSession {
			t.Fatalf("unexpected logged on id %v", id)
		}
	default:
		t.Fatalf("logon not announced")
	}

	if err := c.Subscribe(testSession); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("subscription sent twice in one logon")
	}

	req, err := subscription.DecodeRequest(fs.sent[0])
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if strings.Join(req.Symbols, ",") != "BTC-USD,ETH-USD" {
		t.Fatalf("unexpected symbols %v", req.Symbols)
	}

	c.OnLogout(testSession)
	if c.Phase(testSession) != models.PhaseNoSession || c.MarketDataRequested(testSession) {
		t.Fatalf("logout did not reset state")
	}
	if _, ok := c.Current(); ok {
		t.Fatalf("current session not cleared")
	}
	if err := c.Subscribe(testSession); !errors.Is(err, errs.ErrSessionNotFound) {
		t.Fatalf("expected session not found after logout, got %v", err)
	}

	c.OnLogon(testSession)
	if fs.count() != 2 {
		t.Fatalf("expected resubscribe on new logon, got %d", fs.count())
	}
}

func TestSubscribeUnknownSessionResetsFlag(t *testing.T) {
	c, fs := newTestCoordinator(t, testConfig(), nil)
	fs.err = errors.New("Unknown session: FIXT.1.1:svc-1->Coinbase")
	c.OnCreate(testSession)
	c.OnLogon(testSession)

	if c.MarketDataRequested(testSession) {
		t.Fatalf("flag not reset after failed send")
	}
	fs.err = errors.New("Unknown session: FIXT.1.1:svc-1->Coinbase")
	if err := c.Subscribe(testSession); !errors.Is(err, errs.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}

	fs.err = nil
	if err := c.Subscribe(testSession); err != nil || fs.count() != 1 {
		t.Fatalf("retry failed: %v (%d sent)", err, fs.count())
	}
}

func TestSubscribeInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Subscribe.Products = ""
	c, fs := newTestCoordinator(t, cfg, nil)
	c.OnCreate(testSession)
	c.OnLogon(testSession)

	if fs.count() != 0 || c.MarketDataRequested(testSession) {
		t.Fatalf("invalid configuration should not send")
	}
	if err := c.Subscribe(testSession); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestFromAppSnapshotPublishesQuote(t *testing.T) {
	ch := quotes.NewChannel(4)
	c, _ := newTestCoordinator(t, testConfig(), ch)
	c.OnCreate(testSession)
	c.OnLogon(testSession)

	msg := parsed(t, "35=W|34=2|49=Coinbase|52=20240501-12:00:00.000|56=svc-1|55=BTC-USD|268=4|269=0|270=100|271=1|269=0|270=105|271=2|269=1|270=110|271=1|269=1|270=108|271=1|")
	if rej := c.FromApp(msg, testSession); rej != nil {
		t.Fatalf("FromApp rejected: %v", rej)
	}

	select {
	case q := <-ch.Quotes:
		if q.Symbol != "BTC-USD" || q.BidString() != "105" || q.AskString() != "108" {
			t.Fatalf("unexpected quote %+v", q)
		}
		if q.Session != testSession.String() {
			t.Fatalf("session not stamped: %q", q.Session)
		}
	default:
		t.Fatalf("no quote published")
	}

	books, _ := c.Books(testSession)
	if b, ok := books.Get("BTC-USD"); !ok || b.Quote().BidString() != "105" {
		t.Fatalf("book not updated")
	}
}

func TestFromAppMalformedNeverRejects(t *testing.T) {
	c, _ := newTestCoordinator(t, testConfig(), nil)
	c.OnCreate(testSession)

	msg := parsed(t, "35=W|34=2|49=Coinbase|52=20240501-12:00:00.000|56=svc-1|55=BTC-USD|")
	if rej := c.FromApp(msg, testSession); rej != nil {
		t.Fatalf("FromApp rejected: %v", rej)
	}
	msg = parsed(t, "35=X|34=3|49=Coinbase|52=20240501-12:00:00.000|56=svc-1|268=2|279=2|269=0|278=gone|55=BTC-USD|279=0|269=1|55=BTC-USD|270=1|")
	if rej := c.FromApp(msg, testSession); rej != nil {
		t.Fatalf("FromApp rejected: %v", rej)
	}
}

func TestMDRejectClearsFlag(t *testing.T) {
	c, _ := newTestCoordinator(t, testConfig(), nil)
	c.OnCreate(testSession)
	c.OnLogon(testSession)

	msg := quickfix.NewMessage()
	msg.Header.SetString(tag.BeginString, quickfix.BeginStringFIXT11)
	msg.Header.SetString(tag.MsgType, "Y")
	msg.Body.SetString(tag.MDReqID, "req-1")
	msg.Body.SetString(tag.Text, "unknown symbol")
	c.FromApp(msg, testSession)

	if c.MarketDataRequested(testSession) {
		t.Fatalf("market data reject did not clear flag")
	}
}

func TestFromAdminHandlesRejectAndLogout(t *testing.T) {
	c, _ := newTestCoordinator(t, testConfig(), nil)
	reject := parsed(t, "35=3|34=2|49=Coinbase|52=20240501-12:00:00.000|56=svc-1|45=1|371=96|372=A|373=5|58=invalid signature|")
	if rej := c.FromAdmin(reject, testSession); rej != nil {
		t.Fatalf("FromAdmin rejected: %v", rej)
	}
	logout := parsed(t, "35=5|34=3|49=Coinbase|52=20240501-12:00:00.000|56=svc-1|58=bye|")
	if rej := c.FromAdmin(logout, testSession); rej != nil {
		t.Fatalf("FromAdmin rejected: %v", rej)
	}
}

func TestNewCoordinatorRejectsBadSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Credentials.SecretKey = "not base64!"
	if _, err := NewCoordinator(cfg, nil); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestStatusReportsBooks(t *testing.T) {
	c, _ := newTestCoordinator(t, testConfig(), nil)
	c.OnCreate(testSession)
	c.OnLogon(testSession)
	c.FromApp(parsed(t, "35=W|34=2|49=Coinbase|52=20240501-12:00:00.000|56=svc-1|55=ETH-USD|268=1|269=1|270=2000|271=1|"), testSession)

	status := c.Status()
	if len(status) != 1 {
		t.Fatalf("expected one session, got %d", len(status))
	}
	st := status[0]
	if st.Phase != "logged_on" || !st.MarketDataRequested || st.MDReqID == "" {
		t.Fatalf("unexpected status %+v", st)
	}
	if len(st.Quotes) != 1 || st.Quotes[0].AskString() != "2000" || st.Quotes[0].BidString() != models.NotAvailable {
		t.Fatalf("unexpected quotes %+v", st.Quotes)
	}
}

func TestUnsubscribeDropsBooks(t *testing.T) {
	cfg := testConfig()
	c, fs := newTestCoordinator(t, cfg, nil)
	c.OnCreate(testSession)
	c.OnLogon(testSession)
	c.FromApp(parsed(t, "35=W|34=2|49=Coinbase|52=20240501-12:00:00.000|56=svc-1|55=BTC-USD|268=1|269=0|270=100|271=1|"), testSession)
	c.FromApp(parsed(t, "35=W|34=3|49=Coinbase|52=20240501-12:00:00.000|56=svc-1|55=SOL-USD|268=1|269=0|270=150|271=1|"), testSession)

	books, _ := c.Books(testSession)
	if len(books.Symbols()) != 2 {
		t.Fatalf("expected two books, got %v", books.Symbols())
	}

	// A market data reject clears the flag so the next request goes out.
	c.FromApp(parsed(t, "35=Y|34=4|49=Coinbase|52=20240501-12:00:00.000|56=svc-1|262=req-1|58=retry|"), testSession)
	cfg.Subscribe.Type = "2"
	if err := c.Subscribe(testSession); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if fs.count() != 2 {
		t.Fatalf("expected unsubscribe to be sent, got %d messages", fs.count())
	}
	if syms := books.Symbols(); len(syms) != 1 || syms[0] != "SOL-USD" {
		t.Fatalf("unsubscribed books kept: %v", syms)
	}
}

func TestUnsubscribeFailureKeepsBooks(t *testing.T) {
	cfg := testConfig()
	cfg.Subscribe.Type = "2"
	c, fs := newTestCoordinator(t, cfg, nil)
	c.OnCreate(testSession)
	fs.err = errors.New("connection reset")
	c.OnLogon(testSession)
	c.FromApp(parsed(t, "35=W|34=2|49=Coinbase|52=20240501-12:00:00.000|56=svc-1|55=BTC-USD|268=1|269=0|270=100|271=1|"), testSession)

	if err := c.Subscribe(testSession); err == nil {
		t.Fatalf("expected send failure")
	}
	books, _ := c.Books(testSession)
	if _, ok := books.Get("BTC-USD"); !ok {
		t.Fatalf("book dropped although unsubscribe was not sent")
	}
}

func TestSubscribeEngineUnknownSessionError(t *testing.T) {
	c, fs := newTestCoordinator(t, testConfig(), nil)
	c.OnCreate(testSession)
	fs.err = errors.New("Unknown session")
	c.OnLogon(testSession)

	fs.err = errors.New("Unknown session")
	if err := c.Subscribe(testSession); !errors.Is(err, errs.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
	fs.err = errors.New("write: broken pipe")
	if err := c.Subscribe(testSession); err == nil || errors.Is(err, errs.ErrSessionNotFound) {
		t.Fatalf("transport error mapped to session not found: %v", err)
	}
}

func TestSecurityListRequestedWhenEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Subscribe.SecurityList = true
	c, fs := newTestCoordinator(t, cfg, nil)
	c.OnCreate(testSession)
	c.OnLogon(testSession)

	if fs.count() != 2 {
		t.Fatalf("expected subscription and security list request, got %d", fs.count())
	}
	fs.mu.Lock()
	raw := strings.ReplaceAll(fs.sent[1], "\x01", "|")
	fs.mu.Unlock()
	if !strings.Contains(raw, "|35=x|") || !strings.Contains(raw, "|559=4|") || !strings.Contains(raw, "|320=") {
		t.Fatalf("unexpected security list request %q", raw)
	}

	c2, fs2 := newTestCoordinator(t, testConfig(), nil)
	c2.OnCreate(testSession)
	c2.OnLogon(testSession)
	if fs2.count() != 1 {
		t.Fatalf("security list requested without configuration")
	}
}

func TestConcurrentSessions(t *testing.T) {
	c, _ := newTestCoordinator(t, testConfig(), nil)
	other := quickfix.SessionID{BeginString: quickfix.BeginStringFIXT11, SenderCompID: "svc-2", TargetCompID: "Coinbase"}
	c.OnCreate(testSession)
	c.OnCreate(other)
	c.OnLogon(testSession)

	const rounds = 50
	snapshots := make([]*quickfix.Message, rounds)
	others := make([]*quickfix.Message, rounds)
	for i := range snapshots {
		snapshots[i] = parsed(t, fmt.Sprintf("35=W|34=%d|49=Coinbase|52=20240501-12:00:00.000|56=svc-1|55=BTC-USD|268=2|269=0|270=%d|271=1|269=1|270=200|271=1|", i+2, 100+i))
		others[i] = parsed(t, fmt.Sprintf("35=W|34=%d|49=Coinbase|52=20240501-12:00:00.000|56=svc-2|55=BTC-USD|268=1|269=0|270=%d|271=1|", i+2, 50+i))
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for _, m := range snapshots {
			c.FromApp(m, testSession)
		}
	}()
	go func() {
		defer wg.Done()
		for _, m := range others {
			c.OnLogon(other)
			c.FromApp(m, other)
			c.OnLogout(other)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_ = c.Status()
			_ = c.BookViews("BTC-USD")
		}
	}()
	wg.Wait()

	books, _ := c.Books(testSession)
	b, ok := books.Get("BTC-USD")
	if !ok {
		t.Fatalf("book missing for first session")
	}
	if q := b.Quote(); q.BidString() != fmt.Sprint(100+rounds-1) || q.AskString() != "200" {
		t.Fatalf("unexpected quote bid=%s ask=%s", q.BidString(), q.AskString())
	}
	if c.Phase(other) != models.PhaseNoSession {
		t.Fatalf("second session should end logged out")
	}
	if otherBooks, _ := c.Books(other); len(otherBooks.Symbols()) != 0 {
		t.Fatalf("logout left books behind")
	}
}
