// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// The hubspot-meeting-sync service polls the HubSpot CRM for recently
// modified meetings and dispatches one "Meeting Created" or "Meeting Updated"
// action per meeting attendee to the configured action sink (NATS JetStream,
// an HTTP webhook, a DynamoDB table, or the log).
//
// See config.go for the supported environment variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	errKey = "error"
	// gracefulShutdownSeconds should be higher than the HTTP client timeout,
	// and lower than the pod's terminationGracePeriodSeconds.
	gracefulShutdownSeconds = 25
)

var (
	logger   *slog.Logger
	cfg      *Config
	natsConn *nats.Conn
)

// main parses optional flags and starts the polling loop.
func main() {
	// Load configuration
	var err error
	cfg, err = LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	var debug = flag.Bool("d", false, "enable debug logging")
	var port = flag.String("p", cfg.Port, "health checks port")
	var bind = flag.String("bind", cfg.Bind, "interface to bind on")
	var once = flag.Bool("once", false, "run a single sync pass and exit")
	var dryRun = flag.Bool("dry-run", false, "log actions instead of dispatching them")

	flag.Usage = func() {
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()

	if *dryRun {
		cfg.ActionSink = sinkLog
	}

	var logCloser io.Closer
	logger, logCloser = newLogger(cfg.Debug || *debug, cfg.LogFile)
	defer logCloser.Close()
	slog.SetDefault(logger)

	// Support GET/POST monitoring "ping".
	http.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "OK\n")
	})

	// Basic health check.
	http.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if cfg.ActionSink == sinkNATS {
			if natsConn == nil || !natsConn.IsConnected() || natsConn.IsDraining() {
				http.Error(w, "NATS connection not ready", http.StatusServiceUnavailable)
				return
			}
		}
		fmt.Fprintf(w, "OK\n")
	})

	// Add an http listener for health checks. This server does NOT participate
	// in the graceful shutdown process.
	var addr string
	if *bind == "*" {
		addr = ":" + *port
	} else {
		addr = *bind + ":" + *port
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           http.DefaultServeMux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	if !*once {
		go func() {
			err := httpServer.ListenAndServe()
			if err != nil && err != http.ErrServerClosed {
				logger.With(errKey, err).Error("http listener error")
				os.Exit(1)
			}
		}()
	}

	// Create a wait group which is used to wait while draining (gracefully
	// closing) a connection.
	gracefulCloseWG := sync.WaitGroup{}

	// Support graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	// Create the action sink.
	var dispatcher ActionDispatcher
	switch cfg.ActionSink {
	case sinkNATS:
		gracefulCloseWG.Add(1)
		natsConn, err = connectNATS(ctx, cfg.NATSURL, &gracefulCloseWG, done)
		if err != nil {
			logger.With(errKey, err).Error("error creating NATS client")
			os.Exit(1)
		}
		jsContext, err := jetstream.New(natsConn)
		if err != nil {
			logger.With(errKey, err).Error("error creating JetStream context")
			os.Exit(1)
		}
		if err := ensureActionStream(ctx, jsContext, cfg.NATSStreamName, cfg.NATSSubjectPrefix); err != nil {
			logger.With(errKey, err, "stream", cfg.NATSStreamName).Error("error creating NATS stream")
			os.Exit(1)
		}
		dispatcher = NewNATSActionDispatcher(jsContext, cfg.NATSSubjectPrefix, cfg.UseMsgpack, logger)
	case sinkWebhook:
		dispatcher = NewWebhookActionDispatcher(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookAudience, logger)
	case sinkDynamoDB:
		dynClient, err := newDynamoDBClient(ctx, cfg)
		if err != nil {
			logger.With(errKey, err).Error("error creating DynamoDB client")
			os.Exit(1)
		}
		dispatcher = NewDynamoDBActionDispatcher(dynClient, cfg.DynamoDBTable, logger)
	default:
		dispatcher = NewLogActionDispatcher(logger)
	}
	logger.With("action_sink", cfg.ActionSink).Info("action sink ready")

	hubspotClient := NewHubSpotClient(newHubSpotHTTPClient(cfg), cfg.HubSpotAPIURL)
	attendeeService := NewHubSpotAttendeeService(hubspotClient, cfg.ContactCacheTTL, logger)
	orchestrator := NewMeetingSyncOrchestrator(hubspotClient, attendeeService, dispatcher, logger)

	if *once {
		orchestrator.RunOnce(ctx)
	} else {
		pollingDone := make(chan struct{})
		go func() {
			defer close(pollingDone)
			runPeriodically(ctx, cfg.PollInterval, func(ctx context.Context) {
				orchestrator.RunOnce(ctx)
			})
		}()
		logger.With("poll_interval", cfg.PollInterval.String()).Info("meeting sync started")

		// This next line blocks until SIGINT or SIGTERM is received, or NATS disconnects.
		<-done

		// Begin graceful shutdown process.
		logger.Debug("beginning graceful shutdown")
		cancel()
		<-pollingDone
	}

	// Cancel the background context.
	cancel()

	// Drain the connection, which flushes pending publishes, then close it.
	if natsConn != nil && !natsConn.IsClosed() && !natsConn.IsDraining() {
		logger.Info("draining NATS connection")
		if err := natsConn.Drain(); err != nil {
			logger.With(errKey, err).Error("error draining NATS connection")
			os.Exit(1)
		}
	}

	// Wait for the graceful shutdown steps to complete.
	logger.Debug("waiting for graceful shutdown steps to complete")
	gracefulCloseWG.Wait()
	logger.Debug("graceful shutdown steps completed")

	// Immediately close the HTTP server after graceful shutdown has finished.
	if err = httpServer.Close(); err != nil {
		logger.With(errKey, err).Error("http listener error on close")
	}
}

// connectNATS connects to NATS. The wait group is released when the
// connection closes during a graceful shutdown; if the connection closes for
// any other reason, a synthetic interrupt is sent on done and the process
// exits.
func connectNATS(ctx context.Context, url string, gracefulCloseWG *sync.WaitGroup, done chan<- os.Signal) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.DrainTimeout(gracefulShutdownSeconds*time.Second),
		nats.ErrorHandler(func(_ *nats.Conn, s *nats.Subscription, err error) {
			if s != nil {
				logger.With(errKey, err, "subject", s.Subject, "queue", s.Queue).Error("async NATS error")
			} else {
				logger.With(errKey, err).Error("async NATS error outside subscription")
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if ctx.Err() != nil {
				// Graceful shutdown: release the wait group so other shutdown
				// steps can complete.
				gracefulCloseWG.Done()
				return
			}
			// Otherwise max reconnect attempts have been exhausted.
			logger.Error("NATS max-reconnects exhausted; connection closed")
			done <- os.Interrupt
			time.Sleep(5 * time.Second)
			os.Exit(1)
		}),
	)
}
