package server

import (
	"context"
	"fmt"
	"log/slog"

	"swarmgate/internal/blob"
	"swarmgate/internal/config"
	"swarmgate/internal/dataapi"
	"swarmgate/internal/db"
	"swarmgate/internal/forms"
	"swarmgate/internal/inference"
	"swarmgate/internal/keymanager"
	"swarmgate/internal/medchat"
	"swarmgate/internal/notify"
	"swarmgate/internal/partition"
	"swarmgate/internal/payment"
	"swarmgate/internal/quota"
	"swarmgate/internal/registry"
	"swarmgate/internal/scheduler"

	"github.com/gin-gonic/gin"
)

// App is a fully wired gateway.
type App struct {
	Router     *gin.Engine
	Registry   registry.Store
	Keys       *keymanager.Manager
	Scheduler  *scheduler.Scheduler
	Dispatcher *notify.Dispatcher

	closers []func() error
	log     *slog.Logger
}

// OpenStores opens the data store, the ops store and every named bucket.
func OpenStores(ctx context.Context, cfg config.StorageConfig) (map[string]blob.Store, error) {
	stores := make(map[string]blob.Store)
	open := func(name string, bc config.BlobConfig) error {
		s, err := blob.Open(ctx, bc)
		if err != nil {
			return fmt.Errorf("failed to open %s store: %w", name, err)
		}
		stores[name] = s
		return nil
	}
	if err := open(partition.DefaultStore, cfg.Data); err != nil {
		return nil, err
	}
	if cfg.Ops == cfg.Data {
		stores["ops"] = stores[partition.DefaultStore]
	} else if err := open("ops", cfg.Ops); err != nil {
		return nil, err
	}
	for name, bc := range cfg.Buckets {
		if err := open(name, bc); err != nil {
			return nil, err
		}
	}
	return stores, nil
}

// OpenRegistry returns the configured key registry and a function releasing it.
func OpenRegistry(cfg *config.Config, ops blob.Store, log *slog.Logger) (registry.Store, func() error, error) {
	switch cfg.Registry.Driver {
	case "database":
		service, err := db.NewService(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return service, service.Close, nil
	case "document", "":
		return registry.NewDocumentStore(ops, cfg.Registry.Object, cfg.Registry.MaxRetries, log), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported registry driver: %s", cfg.Registry.Driver)
	}
}

// NewInferenceChain builds the backend chain in fallback order: the local
// model server, Together, then Gemini. Backends without credentials are skipped.
func NewInferenceChain(ctx context.Context, cfg config.InferenceConfig, log *slog.Logger) (*inference.Chain, []func() error, error) {
	var backends []inference.Backend
	var closers []func() error
	if cfg.LocalURL != "" {
		backends = append(backends, inference.NewOpenAIBackend("local", cfg.LocalURL, cfg.LocalKey, cfg.LocalModel, cfg.LocalTimeout))
	}
	if cfg.TogetherKey != "" {
		backends = append(backends, inference.NewOpenAIBackend("together", cfg.TogetherURL, cfg.TogetherKey, "", cfg.RemoteTimeout))
	}
	if cfg.GeminiKey != "" {
		gemini, err := inference.NewGeminiBackend(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gemini backend: %w", err)
		}
		backends = append(backends, gemini)
		closers = append(closers, gemini.Close)
	}
	if len(backends) == 0 {
		log.Warn("No inference backend configured, /api/ask-med will answer 502")
	}
	return inference.NewChain(backends, cfg.DisableThreshold, cfg.RevivalInterval, log), closers, nil
}

// Build wires every component from cfg.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	app := &App{log: log}

	stores, err := OpenStores(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := OpenRegistry(cfg, stores["ops"], log)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeStore)
	app.Registry = store

	dispatcher := notify.NewDispatcher(notify.SendersFromConfig(cfg.Notify), cfg.Notify.QueueSize, cfg.Notify.Timeout, log)
	app.Dispatcher = dispatcher

	reader := partition.NewReader(stores, cfg.Data, log)
	app.Keys = keymanager.NewManager(store, cfg.Tiers, dispatcher, log)
	enforcer := quota.NewEnforcer(store, reader, cfg.Auth.APIKeys, dispatcher, log)

	var provider payment.Provider
	if p := payment.NewStripeProvider(cfg.Stripe, log); p != nil {
		provider = p
	}

	chain, closers, err := NewInferenceChain(ctx, cfg.Inference, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closers = append(app.closers, closers...)

	app.Scheduler = scheduler.NewScheduler(store, stores["ops"], dispatcher, cfg.Scheduler, log)

	app.Router = NewRouter(Deps{
		Config:  cfg,
		Logger:  log,
		Data:    dataapi.NewHandler(enforcer, reader, app.Keys, provider, cfg.Stripe, dispatcher, log),
		Forms:   forms.NewHandler(dispatcher, log),
		MedChat: medchat.NewHandler(chain, dispatcher, log),
		Admin:   app.Keys,
	})
	return app, nil
}

// Close flushes queued notifications and releases the stores.
func (a *App) Close() {
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.log.Error("Failed to release resource", "error", err)
		}
	}
}
