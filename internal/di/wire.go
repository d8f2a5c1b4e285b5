//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"TradeGate/pkg/config"
	"TradeGate/pkg/server"
)

// InitializeApp builds the full application graph.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideClickHouseClient,
		ProvideRedisClient,
		ProvideKafkaProducer,
		ProvideMetrics,
		ProvideAuditLedger,
		ProvideModelStore,
		ProvideBarStore,
		ProvideClassifier,
		ProvideRegimeService,
		ProvideAdvisoryScorer,
		ProvidePublisher,
		ProvideValidator,
		ProvideDisciplineTracker,
		ProvideApprovalOracle,
		ProvideAllocator,
		ProvideRetrainQueue,
		ProvideEngine,
		ProvideMarketStream,
		ProvideBarCollector,
		ProvideFillConsumer,
		ProvideBalanceConsumer,
		ProvideFillsHandler,
		ProvideBalanceHandler,
		ProvideGateHandler,
		ProvideApp,
	)
	return nil, nil
}
