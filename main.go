package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/quickfixgo/quickfix"

	"fixfeed/config"
	"fixfeed/internal/channel/quotes"
	"fixfeed/internal/dashboard"
	"fixfeed/internal/metrics"
	"fixfeed/logger"
	"fixfeed/session"
	"fixfeed/writer"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		return 1
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		return 1
	}

	env := config.AppEnvironment()
	log.WithFields(logger.Fields{
		"service":     cfg.Fixfeed.Name,
		"version":     cfg.Fixfeed.Version,
		"environment": env,
		"venue":       cfg.Venue.Name,
	}).Info("starting fixfeed")

	if !cfg.Auth.StrictSigning && config.IsProductionLike(env) {
		log.WithField("environment", env).Error("lenient logon signing is not allowed in this environment")
		return 1
	}
	if cfg.Venue.SenderCompID != cfg.Credentials.Username {
		log.WithFields(logger.Fields{
			"sender_comp_id": cfg.Venue.SenderCompID,
			"username":       cfg.Credentials.Username,
		}).Warn("SenderCompID differs from username; the venue usually expects the service account id")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Prometheus.Enabled {
		metrics.Serve(cfg.Metrics.Prometheus.Listen)
	} else {
		metrics.Register()
	}
	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Metrics.CloudWatch.Dashboard)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, cfg.Metrics.ReportInterval)
	}

	quoteCh := quotes.NewChannel(cfg.Channels.QuoteBuffer)

	var quoteWriter *writer.QuoteWriter
	if cfg.Storage.S3.Enabled {
		quoteWriter, err = writer.NewQuoteWriter(cfg, quoteCh.Quotes)
		if err != nil {
			log.WithError(err).Error("failed to create quote writer")
			return 1
		}
		if err := quoteWriter.Start(ctx); err != nil {
			log.WithError(err).Error("quote writer failed to start")
			return 1
		}
	} else {
		log.WithComponent("main").Info("S3 storage disabled; quotes are logged only")
		go discard(ctx, quoteCh)
	}

	coordinator, err := session.NewCoordinator(cfg, quoteCh)
	if err != nil {
		log.WithError(err).Error("failed to create session coordinator")
		return 1
	}
	defer coordinator.Close()

	statusServer, err := dashboard.NewServer(cfg.Dashboard, log, coordinator)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard")
		return 1
	}
	if statusServer != nil {
		go func() {
			if err := statusServer.Run(ctx); err != nil {
				log.WithError(err).Warn("dashboard stopped")
			}
		}()
	}

	settings, err := config.SessionSettings(cfg)
	if err != nil {
		log.WithError(err).Error("failed to build session settings")
		return 1
	}
	store, err := config.MessageStoreFactory(cfg, settings)
	if err != nil {
		log.WithError(err).Error("failed to create message store")
		return 1
	}
	initiator, err := quickfix.NewInitiator(coordinator, store, settings, logger.NewFIXLogFactory(log, cfg.Logging.LogMessages))
	if err != nil {
		log.WithError(err).Error("failed to create initiator")
		return 1
	}
	if err := initiator.Start(); err != nil {
		log.WithError(err).Error("failed to start initiator")
		return 1
	}
	log.WithFields(logger.Fields{
		"host": cfg.Venue.Host,
		"port": cfg.Venue.Port,
	}).Info("initiator started")

	var logonTimeout <-chan time.Time
	if cfg.Session.LogonTimeout > 0 {
		timer := time.NewTimer(cfg.Session.LogonTimeout)
		defer timer.Stop()
		logonTimeout = timer.C
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
wait:
	for {
		select {
		case sig := <-sigChan:
			log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
			break wait
		case err := <-coordinator.SigningFailures():
			log.WithError(err).Error("logon could not be signed; stopping")
			exitCode = 1
			break wait
		case id := <-coordinator.LoggedOn():
			log.WithSession(id.String()).Info("session established")
			logonTimeout = nil
		case <-logonTimeout:
			log.WithField("timeout", cfg.Session.LogonTimeout.String()).Error("no logon within timeout")
			exitCode = 1
			break wait
		}
	}

	log.Info("starting graceful shutdown")
	done := make(chan struct{})
	go func() {
		initiator.Stop()
		cancel()
		if quoteWriter != nil {
			log.Info("stopping quote writer")
			quoteWriter.Stop()
		}
		close(done)
	}()

	shutdownTimeout := cfg.Session.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(shutdownTimeout):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("fixfeed stopped")
	return exitCode
}

// discard keeps the quote channel flowing when no archive is configured.
func discard(ctx context.Context, ch *quotes.Channel) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch.Quotes:
		}
	}
}
