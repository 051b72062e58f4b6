package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/llamalend/config"
	"github.com/michaelpento.lv/llamalend/gas"
	"github.com/michaelpento.lv/llamalend/health"
	"github.com/michaelpento.lv/llamalend/market"
	"github.com/michaelpento.lv/llamalend/orchestrator"
	"github.com/michaelpento.lv/llamalend/pool"
	"github.com/michaelpento.lv/llamalend/position"
	"github.com/michaelpento.lv/llamalend/quote"
	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/sdk/fixture"
	"github.com/michaelpento.lv/llamalend/utils"
	"github.com/michaelpento.lv/llamalend/utils/metrics"
	"github.com/michaelpento.lv/llamalend/utils/monitor"
	"github.com/michaelpento.lv/llamalend/wallet"
)

const (
	feeMaxAge       = 15 * time.Second
	monitorInterval = 5 * time.Second
)

// app wires every service of one command invocation
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	chain   *fixture.Chain
	markets []sdk.Market
	byID    map[string]sdk.Market

	poolMetrics  *metrics.PoolMetrics
	txMetrics    *metrics.TxMetrics
	stats        *market.Service
	positions    *position.Service
	quotes       *quote.Engine
	orchestrator *orchestrator.Orchestrator
}

func loadFixture(path string) (*fixture.File, error) {
	if path == "" {
		return fixture.Default()
	}
	return fixture.Load(path)
}

// newApp loads the config and builds the services. Metrics are served
// until ctx is done when an address is configured.
func newApp(ctx context.Context) (*app, error) {
	logger := utils.GetLogger()

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if fixturePath != "" {
		cfg.FixturePath = fixturePath
	}
	if metricsAddr != "" {
		cfg.PrometheusEnabled = true
		cfg.PrometheusAddr = metricsAddr
	}

	f, err := loadFixture(cfg.FixturePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load markets: %w", err)
	}
	chain := fixture.NewChain()
	fms, err := fixture.NewMarkets(f, chain)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		chain:   chain,
		markets: make([]sdk.Market, 0, len(fms)),
		byID:    make(map[string]sdk.Market, len(fms)),
	}
	for _, m := range fms {
		a.markets = append(a.markets, m)
		a.byID[m.Info().ID] = m
	}

	var reg prometheus.Registerer
	if cfg.PrometheusEnabled {
		metrics.Initialize(&metrics.MetricsConfig{Enabled: true, Addr: cfg.PrometheusAddr}, logger)
		reg = metrics.Registry()
		go func() {
			if err := metrics.Serve(ctx, cfg.PrometheusAddr); err != nil {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
		monitor.NewRuntimeMonitor(metrics.Namespace, reg, logger).Start(ctx, monitorInterval)
	}
	a.poolMetrics = metrics.NewPoolMetrics(metrics.Namespace, reg)
	a.txMetrics = metrics.NewTxMetrics(metrics.Namespace, reg)

	p := pool.New(cfg.Concurrency,
		pool.WithLogger(logger),
		pool.WithMetrics(a.poolMetrics),
		pool.WithRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize))

	a.stats = market.NewService(p, cfg.UseAPI, logger)
	a.positions = position.NewService(p, a.stats,
		health.NewCalculator(cfg.SoftLiquidationThreshold, cfg.Policy()), logger)

	quoteOpts := []quote.Option{quote.WithMetrics(metrics.NewQuoteMetrics(metrics.Namespace, reg))}
	var client wallet.EthClient
	if cfg.RPCURL != "" {
		c, err := wallet.Dial(ctx, cfg.RPCURL)
		if err != nil {
			return nil, err
		}
		client = c
		fees := gas.NewEstimator(c, feeMaxAge, logger)
		fees.Start(ctx, feeMaxAge)
		quoteOpts = append(quoteOpts, quote.WithGasEstimator(fees))
	}
	a.quotes = quote.NewEngine(logger, quoteOpts...)

	provider, err := newProvider(cfg, client, chain, logger)
	if err != nil {
		return nil, err
	}
	a.orchestrator = orchestrator.New(provider, logger,
		orchestrator.WithMetrics(a.txMetrics),
		orchestrator.WithConfirmTimeout(cfg.Confirmation.Timeout))

	logger.Debug("Services ready",
		zap.Int("markets", len(a.markets)),
		zap.Int("concurrency", p.Limit()),
		zap.String("provider", cfg.Provider),
		zap.Bool("useAPI", cfg.UseAPI))
	return a, nil
}

// newProvider picks where transactions are confirmed. The rpc provider
// polls receipts from the configured node.
func newProvider(cfg *config.Config, client wallet.EthClient, chain *fixture.Chain, logger *zap.Logger) (sdk.Provider, error) {
	if cfg.Provider != config.ProviderRPC {
		return fixture.NewProvider(chain, 0), nil
	}
	p, err := wallet.NewProvider(client, cfg.WalletConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc provider: %w", err)
	}
	return p, nil
}

// market looks up one market by id
func (a *app) market(id string) (sdk.Market, error) {
	m, ok := a.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown market %q", id)
	}
	return m, nil
}

// selectMarkets returns the markets named by ids, or every market
func (a *app) selectMarkets(ids []string) ([]sdk.Market, error) {
	if len(ids) == 0 {
		return a.markets, nil
	}
	out := make([]sdk.Market, 0, len(ids))
	for _, id := range ids {
		m, err := a.market(id)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// batchSummary logs how many tasks of each batch failed
func (a *app) batchSummary(batches ...string) {
	for _, b := range batches {
		ok := metrics.CounterValue(a.poolMetrics.Tasks.WithLabelValues(b, "success"))
		failed := metrics.CounterValue(a.poolMetrics.Tasks.WithLabelValues(b, "failure"))
		if failed > 0 {
			a.logger.Warn("Batch finished with failures",
				zap.String("batch", b),
				zap.Float64("succeeded", ok),
				zap.Float64("failed", failed))
		} else {
			a.logger.Debug("Batch finished",
				zap.String("batch", b),
				zap.Float64("succeeded", ok))
		}
	}
}
