// Package app assembles a running split-payment environment from a
// config.Config: logger, metrics registry, registry backend, execution chain
// and a deployed factory.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/bitfsorg/libsplit-go/chain"
	"github.com/bitfsorg/libsplit-go/config"
	"github.com/bitfsorg/libsplit-go/factory"
	"github.com/bitfsorg/libsplit-go/ledger"
	"github.com/bitfsorg/libsplit-go/metrics"
	"github.com/bitfsorg/libsplit-go/registry"
	"github.com/bitfsorg/libsplit-go/wallet"
)

// DefaultDeployer is the account that deploys the factory unless the
// configuration or WithDeployer names another.
var DefaultDeployer = ledger.MustParseAddress("0x00000000000000000000000000000000000f0001")

const shutdownTimeout = 5 * time.Second

// Option configures New.
type Option func(*options)

type options struct {
	deployer *ledger.Address
	logger   *zap.Logger
}

// WithDeployer sets the account deploying the factory. It takes precedence
// over Config.Deployer.
func WithDeployer(addr ledger.Address) Option {
	return func(o *options) { o.deployer = &addr }
}

// WithLogger overrides the logger built from the configuration.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// App holds the wired components. Close releases the registry backend.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    registry.Store
	Chain    *chain.Chain
	Factory  *factory.Factory
	Network  *wallet.Network
}

// New validates cfg and builds an App.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	network, err := wallet.GetNetwork(cfg.Network)
	if err != nil {
		return nil, err
	}
	deployer, err := resolveDeployer(cfg, o)
	if err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger, err = config.NewLogger(cfg)
		if err != nil {
			return nil, err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg, cfg.MetricsNamespace)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ch := chain.New(chain.WithLogger(logger.Named("chain")))
	f, err := factory.Deploy(ctx, ch, deployer, store,
		factory.WithLogger(logger.Named("factory")),
		factory.WithMetrics(m),
	)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("app: deploy factory: %w", err)
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  m,
		Store:    store,
		Chain:    ch,
		Factory:  f,
		Network:  network,
	}
	logger.Info("factory deployed",
		zap.Stringer("address", f.Address()),
		zap.String("encoded", a.EncodeAddress(f.Address())),
		zap.Stringer("deployer", deployer),
		zap.String("backend", cfg.Backend))
	return a, nil
}

func resolveDeployer(cfg config.Config, o options) (ledger.Address, error) {
	if o.deployer != nil {
		return *o.deployer, nil
	}
	addr, err := config.DeployerAddress(cfg)
	if err != nil {
		return ledger.ZeroAddress, err
	}
	if addr.IsZero() {
		return DefaultDeployer, nil
	}
	return addr, nil
}

// EncodeAddress renders addr as a Base58Check address of the configured
// network, falling back to the hex form.
func (a *App) EncodeAddress(addr ledger.Address) string {
	s, err := wallet.EncodeAddress(addr, a.Network)
	if err != nil {
		return addr.String()
	}
	return s
}

// openStore selects the registry backend named by cfg.Backend.
func openStore(ctx context.Context, cfg config.Config) (registry.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return registry.NewMemStore(), nil
	case config.BackendBolt:
		return registry.OpenBoltStore(config.RegistryPath(cfg.DataDir))
	case config.BackendPostgres:
		return registry.NewPgStore(ctx, cfg.PostgresDSN)
	default:
		return nil, config.ErrInvalidBackend
	}
}

// Handler serves /metrics and /healthz.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.Registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve listens on Config.ListenAddr until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("metrics listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: shutdown: %w", err)
		}
		return nil
	}
}

// Close flushes the logger and closes the registry backend.
func (a *App) Close() error {
	_ = a.Logger.Sync()
	return a.Store.Close()
}
