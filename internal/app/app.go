package app

import (
	"context"
	"fmt"

	"chat-keystore/config"
	"chat-keystore/internal/keys"
	"chat-keystore/internal/secrets"
	"chat-keystore/models"
	"chat-keystore/observability"
	"chat-keystore/repository"
	"chat-keystore/services"
)

// StoreInterface is the token store surface App and its callers need.
// *repository.Gateway satisfies it.
type StoreInterface interface {
	keys.Store
	Available() bool
	Backend() string
	ListTokens(ctx context.Context, userID string) ([]models.APIToken, error)
	Migrate(ctx context.Context, up bool) error
	Health(ctx context.Context) error
	Close(ctx context.Context) error
}

// App holds application dependencies using interfaces for testability
type App struct {
	cfg      *config.Config
	store    StoreInterface
	keys     *keys.Service
	breakers *services.CircuitBreakerRegistry
}

// New wires the token store gateway and key service from cfg
func New(cfg *config.Config) (*App, error) {
	sealer, err := secrets.NewSealer(cfg.Store.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret sealer: %w", err)
	}

	breakers := services.NewCircuitBreakerRegistry(services.DefaultCircuitBreakerConfig)
	retry := services.DefaultRetryConfig
	retry.MaxRetries = cfg.Store.ConnectRetries

	gateway, err := repository.NewGateway(cfg.Store.URL,
		repository.WithSealer(sealer),
		repository.WithBreakers(breakers),
		repository.WithRetry(retry),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token store gateway: %w", err)
	}

	return NewWithStore(cfg, gateway, breakers), nil
}

// NewWithStore builds an App over an existing store, mainly for tests
func NewWithStore(cfg *config.Config, store StoreInterface, breakers *services.CircuitBreakerRegistry) *App {
	if breakers == nil {
		breakers = services.NewCircuitBreakerRegistry(services.DefaultCircuitBreakerConfig)
	}
	return &App{
		cfg:      cfg,
		store:    store,
		keys:     keys.NewService(store, cfg),
		breakers: breakers,
	}
}

// Startup runs migrations when AUTO_MIGRATE is set. The store itself is
// connected lazily on first use.
func (a *App) Startup(ctx context.Context) error {
	if !a.store.Available() {
		observability.Warn("no token store configured, keys are kept in cookies only")
		return nil
	}

	observability.Info("token store configured",
		"backend", a.store.Backend(),
		"source", a.cfg.Store.URLSource,
	)

	if a.cfg.Store.AutoMigrate {
		if err := a.store.Migrate(ctx, true); err != nil {
			return fmt.Errorf("auto migration failed: %w", err)
		}
	}
	return nil
}

// Shutdown closes the store connection if one was opened
func (a *App) Shutdown(ctx context.Context) {
	if err := a.store.Close(ctx); err != nil {
		observability.Error("failed to close token store", "error", err)
	}
}

func (a *App) Config() *config.Config { return a.cfg }

func (a *App) Store() StoreInterface { return a.store }

func (a *App) Keys() *keys.Service { return a.keys }

func (a *App) Breakers() *services.CircuitBreakerRegistry { return a.breakers }

// StoreStatus is "not_configured", "connected" or "disconnected"
func (a *App) StoreStatus(ctx context.Context) string {
	if !a.store.Available() {
		return "not_configured"
	}
	if err := a.store.Health(ctx); err != nil {
		observability.WithContext(ctx).Warn("token store health check failed", "error", err)
		return "disconnected"
	}
	return "connected"
}

// AuditEntry is one stored record with its secret masked
type AuditEntry struct {
	models.APIToken
	KnownProvider bool `json:"knownProvider"`
}

// Audit lists every record, inactive included, for userID ("" for all)
func (a *App) Audit(ctx context.Context, userID string) ([]AuditEntry, error) {
	tokens, err := a.store.ListTokens(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]AuditEntry, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, AuditEntry{
			APIToken:      t.Masked(),
			KnownProvider: t.Provider.IsValid(),
		})
	}
	return out, nil
}
