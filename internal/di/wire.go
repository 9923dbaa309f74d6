//go:build wireinject
// +build wireinject

package di

import (
	"MicroTrader/pkg/config"
	"MicroTrader/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideCache,
		ProvideClickHouseClient,

		// Repositories
		ProvidePortfolioStore,
		ProvideTradeLogger,
		ProvideTradeEventStore,
		ProvideKafkaConsumer,

		// Market access
		ProvideQuoteStream,
		ProvideAlpacaClient,
		ProvideMarketData,
		ProvideBroker,

		// Domain services
		ProvideRiskGate,
		ProvideAnalyticsBase,
		ProvideClassifier,
		ProvideSentiment,
		ProvideCrashDetector,
		ProvideExitEngine,
		ProvideGenerator,

		// Use cases
		ProvideHaltState,
		ProvideExecutor,
		ProvidePnLTracker,
		ProvideCycle,

		// Transport
		ProvideOpsHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
