package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqpconsumer "your.org/helpdesk-whatsmeow/internal/amqp"
	"your.org/helpdesk-whatsmeow/internal/broker"
	"your.org/helpdesk-whatsmeow/internal/config"
	httpserver "your.org/helpdesk-whatsmeow/internal/http"
	ilog "your.org/helpdesk-whatsmeow/internal/log"
	"your.org/helpdesk-whatsmeow/internal/pipeline"
	"your.org/helpdesk-whatsmeow/internal/status"
	"your.org/helpdesk-whatsmeow/internal/store"
	"your.org/helpdesk-whatsmeow/internal/wbot"
)

// main is the entrypoint for the helpdesk adapter.  It wires together
// the configuration loader, the SQLite store, the message pipeline,
// the WhatsApp client manager, the AMQP consumer and the HTTP API
// server.  All long-running components are started concurrently and
// the application shuts down gracefully when an interrupt signal
// (SIGINT or SIGTERM) is received.
func main() {
	// Load configuration from environment variables.  If required values
	// are missing a sensible default is used instead.  See config.NewConfig
	// for details on each field.
	cfg := config.NewConfig()

	// Init Redis status writer (no-op if REDIS_URL empty)
	status.Init(cfg.RedisURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the ticketing store.  This creates the schema on first run.
	db, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		ilog.Errorf("failed to open database %s: %v", cfg.DBPath, err)
		os.Exit(1)
	}
	defer db.Close()

	// The media store is optional: when MinIO is unreachable the
	// adapter still ingests messages, recording attachments as absent.
	var content pipeline.ContentStore
	if mediaStore, err := pipeline.NewMinioStore(
		cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey,
		cfg.MinioBucket, cfg.MinioRegion, cfg.MinioUseSSL, 7*24*time.Hour,
	); err != nil {
		ilog.Errorf("object store unavailable, media will be skipped: %v", err)
	} else {
		content = mediaStore
	}

	// Publisher fans ticket, message and ack events out to the topic
	// exchange; the frontend and workers consume them from there.
	publisher := broker.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()

	pipe := pipeline.New(db, publisher, content, pipeline.NewOverrides(cfg.RedisURL), pipeline.Options{
		GreetingDelay:     cfg.GreetingDelay,
		ReopenWindow:      cfg.ReopenWindow,
		QueueCheckKeyword: cfg.QueueCheckKeyword,
	})

	// Create a manager for WhatsApp clients.  The manager bootstraps new
	// sessions, keeps track of connected clients and feeds every device
	// event into the pipeline.
	clientManager := wbot.NewManager(cfg.SessionStore, pipe)

	// Auto-restore sessions that already have a saved store (session.db)
	if restored, err := clientManager.RestoreSavedSessions(); err != nil {
		ilog.Errorf("failed to restore saved sessions: %v", err)
	} else if len(restored) > 0 {
		ilog.Infof("restoring %d saved session(s): %v", len(restored), restored)
	} else {
		ilog.Infof("no saved sessions to restore")
	}

	// Initialize the AMQP consumer.  The consumer connects to the broker,
	// binds the send queue to the exchange and dispatches outgoing text
	// commands to the owning session.
	consumer := amqpconsumer.NewConsumer(cfg, clientManager)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			ilog.Errorf("AMQP consumer stopped: %v", err)
		}
	}()

	// Spin up the HTTP server exposing health checks, QR code retrieval,
	// session lifecycle management and the operator ticket actions.
	srv := httpserver.NewServer(cfg, clientManager, pipe, db)
	go func() {
		if err := srv.Start(); err != nil {
			ilog.Errorf("HTTP server stopped: %v", err)
		}
	}()

	// Wait for a termination signal and initiate a graceful shutdown.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	ilog.Infof("Shutting down…")

	// Cancel the root context which causes the consumer to exit.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		ilog.Errorf("failed to shutdown HTTP server: %v", err)
	}
}
