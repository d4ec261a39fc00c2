// Package dashboard serves a small JSON status API: session phases, top of
// book per symbol, runtime counters and recent logs.
package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fixfeed/config"
	"fixfeed/logger"
	"fixfeed/models"
)

// StatusSource reports the live sessions. The session coordinator implements it.
type StatusSource interface {
	Status() []models.SessionStatus
	BookViews(symbol string) []models.BookView
}

// Server hosts the status API.
type Server struct {
	cfg        config.DashboardConfig
	log        *logger.Log
	source     StatusSource
	logStore   *logStore
	httpServer *http.Server
}

// NewServer returns nil when the dashboard is disabled.
func NewServer(cfg config.DashboardConfig, log *logger.Log, source StatusSource) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if source == nil {
		return nil, errors.New("dashboard: status source is required")
	}

	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}

	store := newLogStore(cfg.LogHistory)
	log.AddHook(store)

	return &Server{
		cfg:      cfg,
		log:      log,
		source:   source,
		logStore: store,
	}, nil
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}
	defer s.cleanup()

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.WithComponent("dashboard").WithField("address", s.cfg.Address).Info("dashboard started")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	if s.logStore != nil {
		s.logStore.close()
	}
}

// Address reports the listen address.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	// 200 once any session is logged on.
	router.GET("/healthz", func(c *gin.Context) {
		for _, st := range s.source.Status() {
			if st.Phase == models.PhaseLoggedOn.String() {
				c.JSON(http.StatusOK, gin.H{"status": "ok", "session": st.Session})
				return
			}
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "no session logged on"})
	})

	router.GET("/api/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": s.source.Status()})
	})

	router.GET("/api/quotes", func(c *gin.Context) {
		symbol := c.Query("symbol")
		payload := make([]gin.H, 0)
		for _, st := range s.source.Status() {
			for _, q := range st.Quotes {
				if symbol != "" && q.Symbol != symbol {
					continue
				}
				payload = append(payload, gin.H{
					"session":     q.Session,
					"symbol":      q.Symbol,
					"best_bid":    q.BidString(),
					"best_ask":    q.AskString(),
					"levels":      q.Levels,
					"source":      q.Source,
					"received_at": q.ReceivedAt.Format(time.RFC3339Nano),
				})
			}
		}
		c.JSON(http.StatusOK, gin.H{"quotes": payload})
	})

	// Live levels, last trade and counters of one symbol across sessions.
	router.GET("/api/books/:symbol", func(c *gin.Context) {
		views := s.source.BookViews(c.Param("symbol"))
		if len(views) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "no book for symbol"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"books": views})
	})

	router.GET("/api/counters", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"counters": logger.Counters()})
	})

	router.GET("/api/logs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot()})
	})

	return router, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
