package server

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TradeGate/internal/usecase"
	pkgch "TradeGate/pkg/clickhouse"
	"TradeGate/pkg/config"
	xhttp "TradeGate/pkg/http"
	pkgkafka "TradeGate/pkg/kafka"
	applogger "TradeGate/pkg/logger"
	"TradeGate/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg          *config.Config
	collector    *usecase.BarCollector
	engine       *usecase.Engine
	fillConsumer *pkgkafka.Consumer
	fillHandler  pkgkafka.MessageHandler
	balConsumer  *pkgkafka.Consumer
	balHandler   pkgkafka.MessageHandler
	retrainQueue *queue.RedisQueue
	chClient     *pkgch.Client
	httpServer   *xhttp.Server
	httpHandler  xhttp.Handler
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	collector *usecase.BarCollector,
	engine *usecase.Engine,
	fillConsumer *pkgkafka.Consumer,
	fillHandler pkgkafka.MessageHandler,
	balConsumer *pkgkafka.Consumer,
	balHandler pkgkafka.MessageHandler,
	retrainQueue *queue.RedisQueue,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:          cfg,
		collector:    collector,
		engine:       engine,
		fillConsumer: fillConsumer,
		fillHandler:  fillHandler,
		balConsumer:  balConsumer,
		balHandler:   balHandler,
		retrainQueue: retrainQueue,
		chClient:     chClient,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, _ := applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Start bar collector
	go func() {
		if err := a.collector.Start(ctx); err != nil {
			l.Error("collector error", applogger.Error(err))
		}
	}()
	l.Info("collector started", applogger.Strings("symbols", a.cfg.MarketData.Symbols))

	// Start fill/balance consumers if configured
	startConsumer(l, a.fillConsumer, a.fillHandler)
	startConsumer(l, a.balConsumer, a.balHandler)

	// Start retrain queue workers
	if a.retrainQueue != nil {
		if err := a.retrainQueue.Start(); err != nil {
			l.Error("retrain queue start error", applogger.Error(err))
		} else {
			a.retrainQueue.StartRetryProcessor()
			l.Info("retrain queue started")
		}
	}

	// Discipline day rollover on UTC midnight
	go a.rolloverLoop(ctx, l)

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

func startConsumer(l *applogger.Logger, c *pkgkafka.Consumer, h pkgkafka.MessageHandler) {
	if c == nil || h == nil {
		return
	}
	c.RegisterHandler(h)
	go func() {
		if err := c.Start(); err != nil {
			l.Error("kafka consumer error", applogger.Error(err))
		}
	}()
	l.Info("kafka consumer started", applogger.String("topic", h.Topic()))
}

func (a *App) rolloverLoop(ctx context.Context, l *applogger.Logger) {
	for {
		now := time.Now().UTC()
		next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			if err := a.engine.Rollover(ctx); err != nil {
				l.Warn("rollover error", applogger.Error(err))
			}
		}
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	l, err := applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
	if err != nil {
		log.Printf("failed to create logger: %v", err)
		return err
	}
	l.Info("shutting down...")

	// Stop collector (pipeline + stream)
	if err := a.collector.Shutdown(ctx); err != nil {
		l.Warn("collector stop error", applogger.Error(err))
	}

	// Shutdown HTTP server
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	// Stop consumers
	if a.fillConsumer != nil {
		if err := a.fillConsumer.Stop(ctx); err != nil {
			l.Warn("fill consumer stop error", applogger.Error(err))
		}
	}
	if a.balConsumer != nil {
		if err := a.balConsumer.Stop(ctx); err != nil {
			l.Warn("balance consumer stop error", applogger.Error(err))
		}
	}

	// Stop retrain queue workers
	if a.retrainQueue != nil {
		if err := a.retrainQueue.Stop(ctx); err != nil {
			l.Warn("retrain queue stop error", applogger.Error(err))
		}
	}

	// Drain in-flight engine work
	a.engine.Close()

	// Close infrastructure clients
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
