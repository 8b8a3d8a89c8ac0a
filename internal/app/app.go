// Package app wires the configured dependencies into the assessment service:
// feed clients, the stage graph, the executor, persistence and metrics.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sashabaranov/go-openai"

	"github.com/aurea-hq/underwriting/internal/config"
	"github.com/aurea-hq/underwriting/internal/ctxlog"
	"github.com/aurea-hq/underwriting/internal/feeds"
	"github.com/aurea-hq/underwriting/internal/metric"
	"github.com/aurea-hq/underwriting/internal/oracle"
	"github.com/aurea-hq/underwriting/internal/pipeline"
	"github.com/aurea-hq/underwriting/internal/policystore"
	"github.com/aurea-hq/underwriting/internal/stage"
	"github.com/aurea-hq/underwriting/internal/store"
)

// App encapsulates the assembled service: one compiled stage graph, one
// executor, one store. It is safe for concurrent use; every assessment runs
// on its own state.
type App struct {
	logger  *slog.Logger
	cfg     *config.Config
	exec    *pipeline.Executor
	store   store.Store
	metrics *metric.Metrics

	natsConn *nats.Conn
}

// Option overrides parts of the default wiring, mainly for tests.
type Option func(*options)

type options struct {
	deps  *stage.Deps
	store store.Store
}

// WithDeps replaces the feed/oracle dependency set.
func WithDeps(deps stage.Deps) Option {
	return func(o *options) { o.deps = &deps }
}

// WithStore replaces the persistence backend.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// New assembles the service from configuration.
func New(outW io.Writer, cfg *config.Config, logLevel, logFormat string, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := newLogger(logLevel, logFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)

	metrics, err := metric.New()
	if err != nil {
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}

	a := &App{logger: logger, cfg: cfg, metrics: metrics}

	deps := o.deps
	if deps == nil {
		built, err := a.buildDeps(ctx, cfg)
		if err != nil {
			return nil, err
		}
		deps = &built
	}

	graph, err := stage.Graph(*deps)
	if err != nil {
		return nil, fmt.Errorf("compiling assessment graph: %w", err)
	}
	a.exec = pipeline.NewExecutor(graph, pipeline.WithWorkers(cfg.Pipeline.Workers))

	a.store = o.store
	if a.store == nil {
		st, err := a.buildStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.store = st
	}

	logger.Info("Service assembled.",
		"stages", graph.Len(),
		"workers", cfg.Pipeline.Workers,
		"store", cfg.Store.Backend,
		"oracle_enabled", cfg.Oracle.Model != "")
	return a, nil
}

// Logger returns the service logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Metrics returns the service metrics.
func (a *App) Metrics() *metric.Metrics { return a.metrics }

// Close releases long-lived connections.
func (a *App) Close() {
	if a.natsConn != nil {
		a.natsConn.Close()
	}
}

// buildDeps constructs the production dependency set from configuration.
func (a *App) buildDeps(ctx context.Context, cfg *config.Config) (stage.Deps, error) {
	httpClient := &http.Client{Timeout: cfg.Feeds.Timeout()}

	deps := stage.Deps{
		Geocoder: feeds.NewGeocoder(cfg.Feeds.GeocoderURL, httpClient),
		Planning: feeds.NewPlanningClient(cfg.Feeds.PlanningURL, cfg.Feeds.PlanningAPIKey, cfg.Feeds.PostcodesURL, httpClient),
		Flood:    feeds.NewFloodClient(cfg.Feeds.FloodZoneURL, cfg.Feeds.FloodWarningURL, httpClient),
		Energy:   feeds.NewEnergyClient(cfg.Feeds.EnergyURL, cfg.Feeds.EnergyAPIKey, httpClient),
		Crime:    feeds.NewCrimeClient(cfg.Feeds.CrimeURL, httpClient),
	}

	var embedder policystore.Embedder
	if cfg.Oracle.Model != "" {
		oc, err := oracle.New(oracle.Config{
			BaseURL: cfg.Oracle.BaseURL,
			APIKey:  cfg.Oracle.APIKey,
			Model:   cfg.Oracle.Model,
		})
		if err != nil {
			return stage.Deps{}, fmt.Errorf("initializing oracle: %w", err)
		}
		deps.Oracle = oc

		if cfg.Oracle.EmbeddingModel != "" {
			clientCfg := openai.DefaultConfig(cfg.Oracle.APIKey)
			if cfg.Oracle.BaseURL != "" {
				clientCfg.BaseURL = cfg.Oracle.BaseURL
			}
			embedder = openai.NewClientWithConfig(clientCfg)
		}
	}

	var psOpts []policystore.Option
	if embedder != nil {
		psOpts = append(psOpts, policystore.WithEmbedder(embedder, cfg.Oracle.EmbeddingModel))
	}
	policies, err := policystore.Load(cfg.Policies.CorpusPath, psOpts...)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Policy corpus unavailable, assessments will run without policy context.",
			"path", cfg.Policies.CorpusPath, "error", err)
	} else {
		deps.Policies = policies
	}

	return deps, nil
}

// buildStore constructs the persistence backend from configuration.
func (a *App) buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "nats":
		nc, err := nats.Connect(cfg.Store.NATSURL,
			nats.Timeout(10*time.Second),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.Store.NATSURL, err)
		}
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("initializing JetStream: %w", err)
		}
		kv, err := store.NewKV(ctx, js, cfg.Store.Bucket)
		if err != nil {
			nc.Close()
			return nil, err
		}
		a.natsConn = nc
		return kv, nil
	default:
		return store.NewMemory(), nil
	}
}
