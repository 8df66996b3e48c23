package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vekjja/espwifi-broker/api/handlers"
	"github.com/vekjja/espwifi-broker/internal/claim"
	"github.com/vekjja/espwifi-broker/internal/config"
	"github.com/vekjja/espwifi-broker/internal/db"
	"github.com/vekjja/espwifi-broker/internal/journal"
	"github.com/vekjja/espwifi-broker/internal/logger"
	"github.com/vekjja/espwifi-broker/internal/publicurl"
	"github.com/vekjja/espwifi-broker/internal/repository"
	"github.com/vekjja/espwifi-broker/internal/ws"
)

const (
	shutdownTimeout = 10 * time.Second
	janitorInterval = time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logCloser, err := logger.Init(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize logger")
	}
	defer logCloser.Close()
	log := logger.Default()

	urls, err := publicurl.NewResolver(cfg.PublicBaseURL)
	if err != nil {
		log.WithError(err).Fatal("Invalid public base URL")
	}

	// Journal sinks are optional and only observe; nothing is read back on start.
	var sinks journal.Multi
	var events handlers.EventLister

	var database *sql.DB
	if cfg.JournalDBPath != "" {
		database, err = db.Open(cfg.JournalDBPath)
		if err != nil {
			log.WithError(err).Fatal("Failed to open journal database")
		}
		defer database.Close()
		repo := repository.NewEventRepository(database)
		sinks = append(sinks, repo)
		events = repo
		log.WithField("path", cfg.JournalDBPath).Info("sqlite event journal enabled")
	}

	if cfg.NATSURL != "" {
		pub, err := journal.DialNATS(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to NATS")
		}
		defer pub.Close()
		sinks = append(sinks, pub)
		log.WithField("prefix", cfg.NATSSubjectPrefix).Info("NATS event publisher enabled")
	}

	var sink journal.Sink
	if len(sinks) > 0 {
		async := journal.NewAsync(sinks, journal.DefaultQueueDepth)
		defer async.Close()
		sink = async
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	claims := claim.NewStore()
	go claims.RunJanitor(ctx, janitorInterval)

	svc := ws.NewService(ws.Config{
		DeviceAuthToken: cfg.DeviceAuthToken,
		UIAuthToken:     cfg.UIAuthToken,
		MaxFrameBytes:   cfg.MaxFrameBytes,
	}, claims, urls, sink)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handlers.NewRouter(handlers.Deps{Service: svc, Events: events}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":        cfg.ListenAddr,
			"public_base": cfg.PublicBaseURL,
			"device_auth": cfg.DeviceAuthToken != "",
			"ui_auth":     cfg.UIAuthToken != "",
		}).Info("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("Shutting down server...")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown did not complete")
	}

	// Hijacked WebSocket connections are not tracked by Shutdown.
	svc.Close()
	cancel()
	log.WithField("hub_sessions", svc.Hub().Len()).Info("Server stopped")
}
