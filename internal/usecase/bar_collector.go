package usecase

import (
	"context"

	"TradeGate/internal/domain/models"
	drepo "TradeGate/internal/domain/repository"
	mid "TradeGate/internal/middleware"
)

// BarCollector reads bars from the market stream and drives the engine.
type BarCollector struct {
	stream  drepo.MarketStream
	engine  *Engine
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
}

// NewBarCollector creates a new BarCollector instance.
func NewBarCollector(stream drepo.MarketStream, engine *Engine, metrics drepo.Metrics, pipe *mid.RealtimePipeline) *BarCollector {
	return &BarCollector{stream: stream, engine: engine, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the market stream is connected.
func (c *BarCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *BarCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	barCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, barCh, errCh)
	return nil
}

func (c *BarCollector) consume(ctx context.Context, barCh <-chan *models.PriceBar, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case b := <-barCh:
			if b == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, b)
			} else {
				_ = c.engine.OnBar(ctx, b)
			}
		}
	}
}

func (c *BarCollector) Stop() error { return c.stream.Close() }

// Shutdown stops the pipeline and closes the stream.
func (c *BarCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
