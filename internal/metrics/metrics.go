// Registers:
//
//	#fixfeed_messages_total{msg_type}
//	#fixfeed_rejects_total{kind}
//	#fixfeed_entry_anomalies_total{symbol}
//	#fixfeed_session_events_total{event}
//	#fixfeed_signing_failures_total
//	#fixfeed_subscriptions_total{result}
//	#fixfeed_quotes_dropped_total
//	#fixfeed_best_price{symbol,side}
//	#go_* and process_* system metrics
//
// Serve exposes them on the configured address using the Prometheus HTTP handler
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"fixfeed/logger"
)

var (
	registerOnce sync.Once
	serveOnce    sync.Once

	messages        *prometheus.CounterVec
	rejects         *prometheus.CounterVec
	entryAnomalies  *prometheus.CounterVec
	sessionEvents   *prometheus.CounterVec
	signingFailures prometheus.Counter
	subscriptions   *prometheus.CounterVec
	quotesDropped   prometheus.Counter
	bestPrice       *prometheus.GaugeVec
)

// Register creates and registers the collectors. It is safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		messages = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fixfeed_messages_total",
			Help: "Inbound application messages by MsgType",
		}, []string{"msg_type"})
		rejects = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fixfeed_rejects_total",
			Help: "Rejects received by kind (session, business, market_data)",
		}, []string{"kind"})
		entryAnomalies = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fixfeed_entry_anomalies_total",
			Help: "Market data entries that could not be decoded or applied",
		}, []string{"symbol"})
		sessionEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fixfeed_session_events_total",
			Help: "Session lifecycle events",
		}, []string{"event"})
		signingFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fixfeed_signing_failures_total",
			Help: "Logon messages that could not be signed",
		})
		subscriptions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fixfeed_subscriptions_total",
			Help: "Market data subscription attempts by result",
		}, []string{"result"})
		quotesDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fixfeed_quotes_dropped_total",
			Help: "Quotes dropped because the quote channel was full",
		})
		bestPrice = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fixfeed_best_price",
			Help: "Best bid and ask per symbol",
		}, []string{"symbol", "side"})

		for _, c := range []prometheus.Collector{
			messages, rejects, entryAnomalies, sessionEvents, signingFailures,
			subscriptions, quotesDropped, bestPrice,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		} {
			_ = prometheus.Register(c)
		}
	})
}

// Serve registers the collectors and starts the metrics endpoint once.
func Serve(listen string) {
	Register()
	serveOnce.Do(func() {
		log := logger.GetLogger().WithComponent("metrics")
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			log.WithField("listen", listen).Info("metrics endpoint started")
			if err := http.ListenAndServe(listen, mux); err != nil {
				log.WithError(err).Error("metrics server failed")
			}
		}()
	})
}

// IncMessage counts an inbound message.
func IncMessage(msgType string) {
	if messages != nil {
		messages.WithLabelValues(msgType).Inc()
	}
}

// IncReject counts a reject of the given kind.
func IncReject(kind string) {
	if rejects != nil {
		rejects.WithLabelValues(kind).Inc()
	}
}

// IncEntryAnomaly counts a malformed entry.
func IncEntryAnomaly(symbol string) {
	if entryAnomalies != nil {
		entryAnomalies.WithLabelValues(symbol).Inc()
	}
}

// IncSessionEvent counts a lifecycle event.
func IncSessionEvent(event string) {
	if sessionEvents != nil {
		sessionEvents.WithLabelValues(event).Inc()
	}
}

// IncSigningFailure counts a logon signing failure.
func IncSigningFailure() {
	if signingFailures != nil {
		signingFailures.Inc()
	}
}

// IncSubscription counts a subscription attempt.
func IncSubscription(result string) {
	if subscriptions != nil {
		subscriptions.WithLabelValues(result).Inc()
	}
}

// IncQuoteDropped counts a dropped quote.
func IncQuoteDropped() {
	if quotesDropped != nil {
		quotesDropped.Inc()
	}
}

// SetBestPrice records the best price of one side; a side without a price is
// removed.
func SetBestPrice(symbol, side string, price decimal.Decimal, found bool) {
	if bestPrice == nil {
		return
	}
	if !found {
		bestPrice.DeleteLabelValues(symbol, side)
		return
	}
	bestPrice.WithLabelValues(symbol, side).Set(price.InexactFloat64())
}
