package repository

import (
	"context"
	"errors"
	"sync"

	"chat-keystore/config"
	"chat-keystore/internal/secrets"
	"chat-keystore/models"
	"chat-keystore/observability"
	"chat-keystore/services"
)

// Gateway is the single entry point to the token store. It is built once at
// startup; the backend connection is opened on first use and kept for the
// life of the gateway. Without a configured connection string, a request may
// still name a store through its request-scoped environment; each such URL
// gets its own memoized connection.
type Gateway struct {
	primary  *endpoint
	dial     Dialer // overrides the scheme-selected dialer when set
	dialName string
	sealer   secrets.Sealer
	breakers *services.CircuitBreakerRegistry
	retry    services.RetryConfig

	mu     sync.Mutex
	scoped map[string]*endpoint
}

// endpoint is one connection string and its lazily opened backend
type endpoint struct {
	connString string
	backend    string
	dial       Dialer
	breaker    string

	mu   sync.Mutex
	conn Backend
}

// Option configures a Gateway
type Option func(*Gateway)

// WithDialer overrides the scheme-selected dialer
func WithDialer(name string, dial Dialer) Option {
	return func(g *Gateway) {
		g.dialName = name
		g.dial = dial
	}
}

// WithSealer encrypts secrets at rest
func WithSealer(s secrets.Sealer) Option {
	return func(g *Gateway) { g.sealer = s }
}

// WithBreakers shares a circuit breaker registry with the caller
func WithBreakers(r *services.CircuitBreakerRegistry) Option {
	return func(g *Gateway) { g.breakers = r }
}

// WithRetry sets the dial retry policy
func WithRetry(cfg services.RetryConfig) Option {
	return func(g *Gateway) { g.retry = cfg }
}

// NewGateway creates a gateway for connString. An empty connection string
// gives a gateway that is unavailable unless a request supplies one.
func NewGateway(connString string, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		sealer: secrets.Nop{},
		retry:  services.DefaultRetryConfig,
		scoped: make(map[string]*endpoint),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breakers == nil {
		g.breakers = services.NewCircuitBreakerRegistry(services.DefaultCircuitBreakerConfig)
	}
	if connString != "" {
		ep, err := g.newEndpoint(connString, services.BreakerTokenStore)
		if err != nil {
			return nil, err
		}
		g.primary = ep
	}
	return g, nil
}

func (g *Gateway) newEndpoint(connString, breaker string) (*endpoint, error) {
	name, dial, err := DialerFor(connString)
	if err != nil {
		return nil, err
	}
	if g.dial != nil {
		name, dial = g.dialName, g.dial
	}
	return &endpoint{connString: connString, backend: name, dial: dial, breaker: breaker}, nil
}

// Available reports whether a connection string was configured at startup.
// It does not touch the network.
func (g *Gateway) Available() bool {
	return g != nil && g.primary != nil
}

// AvailableFor is Available extended with the request-scoped environment
// carried by ctx.
func (g *Gateway) AvailableFor(ctx context.Context) bool {
	if g.Available() {
		return true
	}
	return g != nil && requestConnString(ctx) != ""
}

func requestConnString(ctx context.Context) string {
	src := config.RequestEnv(ctx)
	if src == nil {
		return ""
	}
	url, _, _ := config.ResolveAny(config.ConnectionStringKeys, src)
	return url
}

// Backend names the configured driver, or "" when unavailable
func (g *Gateway) Backend() string {
	if !g.Available() {
		return ""
	}
	return g.primary.backend
}

// Breakers exposes the registry for health reporting
func (g *Gateway) Breakers() *services.CircuitBreakerRegistry {
	return g.breakers
}

// endpointFor picks the configured store, falling back to the one named by
// the request.
func (g *Gateway) endpointFor(ctx context.Context) (*endpoint, error) {
	if g.Available() {
		return g.primary, nil
	}
	url := requestConnString(ctx)
	if url == "" {
		return nil, ErrStoreUnavailable
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if ep, ok := g.scoped[url]; ok {
		return ep, nil
	}
	ep, err := g.newEndpoint(url, services.BreakerRequestStore)
	if err != nil {
		return nil, &StoreError{Op: "connect", Backend: "request", Err: err}
	}
	g.scoped[url] = ep
	return ep, nil
}

// connect returns the memoized backend, dialing it on first use. Concurrent
// first callers wait on the same dial. Failed dials are not remembered.
func (g *Gateway) connect(ctx context.Context, ep *endpoint) (Backend, error) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.conn != nil {
		return ep.conn, nil
	}

	metrics := observability.GetMetrics()
	var conn Backend
	err := services.WithRetry(ctx, g.retry, func() error {
		b, err := ep.dial(ctx, ep.connString)
		if err != nil {
			metrics.RecordStoreConnect(ep.backend, "error")
			return err
		}
		conn = b
		return nil
	})
	if err != nil {
		return nil, &StoreError{Op: "connect", Backend: ep.backend, Err: err}
	}

	metrics.RecordStoreConnect(ep.backend, "ok")
	observability.WithBackend(ep.backend).Info("connected to token store", "breaker", ep.breaker)
	ep.conn = conn
	return conn, nil
}

// call executes fn against the request's backend through its breaker,
// timing it and wrapping failures in StoreError.
func call[T any](ctx context.Context, g *Gateway, op string, fn func(Backend) (T, error)) (T, error) {
	var zero T
	ep, err := g.endpointFor(ctx)
	if err != nil {
		return zero, err
	}

	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	// dialing happens inside the breaker so an unreachable store fails fast
	result, err := services.WithCircuitBreaker(ctx, g.breakers, ep.breaker, func() (T, error) {
		b, err := g.connect(ctx, ep)
		if err != nil {
			return zero, err
		}
		return fn(b)
	})
	timer.ObserveStore(ep.backend, op)

	if err == nil {
		return result, nil
	}

	var storeErr *StoreError
	if errors.As(err, &storeErr) && storeErr.Op == "connect" {
		metrics.RecordStoreError(ep.backend, "connect")
		return zero, err
	}
	metrics.RecordStoreError(ep.backend, op)
	return zero, &StoreError{Op: op, Backend: ep.backend, Err: err}
}

func (g *Gateway) open(token *models.APIToken) error {
	plain, err := g.sealer.Open(token.APIKey)
	if err != nil {
		return &StoreError{Op: "decrypt", Backend: g.Backend(), Err: err}
	}
	token.APIKey = plain
	return nil
}

// GetAPIKey returns the active secret for (userID, provider) or ErrNotFound
func (g *Gateway) GetAPIKey(ctx context.Context, userID string, provider models.Provider) (string, error) {
	token, err := call(ctx, g, "get", func(b Backend) (*models.APIToken, error) {
		return b.FindToken(ctx, userID, provider, true)
	})
	if err != nil {
		return "", err
	}
	if token == nil {
		return "", ErrNotFound
	}
	if err := g.open(token); err != nil {
		return "", err
	}
	return token.APIKey, nil
}

// GetAllAPIKeys returns provider to secret for every active record of userID
func (g *Gateway) GetAllAPIKeys(ctx context.Context, userID string) (map[string]string, error) {
	tokens, err := call(ctx, g, "get_all", func(b Backend) ([]models.APIToken, error) {
		return b.FindActiveTokens(ctx, userID)
	})
	if err != nil {
		return nil, err
	}

	keys := make(map[string]string, len(tokens))
	for i := range tokens {
		if err := g.open(&tokens[i]); err != nil {
			return nil, err
		}
		keys[string(tokens[i].Provider)] = tokens[i].APIKey
	}
	return keys, nil
}

// SaveAPIKey upserts the secret for (userID, provider) and reactivates it
func (g *Gateway) SaveAPIKey(ctx context.Context, userID string, provider models.Provider, apiKey string) (*models.APIToken, error) {
	if !g.AvailableFor(ctx) {
		return nil, ErrStoreUnavailable
	}

	sealed, err := g.sealer.Seal(apiKey)
	if err != nil {
		return nil, &StoreError{Op: "encrypt", Backend: g.Backend(), Err: err}
	}

	token := models.NewAPIToken(userID, provider, sealed)
	saved, err := call(ctx, g, "save", func(b Backend) (*models.APIToken, error) {
		return b.UpsertToken(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	saved.APIKey = apiKey
	return saved, nil
}

// DeleteAPIKey soft-deletes the record; false when none existed
func (g *Gateway) DeleteAPIKey(ctx context.Context, userID string, provider models.Provider) (bool, error) {
	return call(ctx, g, "delete", func(b Backend) (bool, error) {
		return b.DeactivateToken(ctx, userID, provider)
	})
}

// APIKeyExists reports whether an active record exists
func (g *Gateway) APIKeyExists(ctx context.Context, userID string, provider models.Provider) (bool, error) {
	token, err := call(ctx, g, "exists", func(b Backend) (*models.APIToken, error) {
		return b.FindToken(ctx, userID, provider, true)
	})
	return token != nil, err
}

// ListTokens returns every record for userID, inactive ones included, with
// secrets decrypted. An empty userID lists all users.
func (g *Gateway) ListTokens(ctx context.Context, userID string) ([]models.APIToken, error) {
	tokens, err := call(ctx, g, "list", func(b Backend) ([]models.APIToken, error) {
		return b.ListTokens(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	for i := range tokens {
		if err := g.open(&tokens[i]); err != nil {
			return nil, err
		}
	}
	return tokens, nil
}

// Migrate applies (or rolls back) the backend schema. It bypasses the
// breaker so the real dial error reaches the operator.
func (g *Gateway) Migrate(ctx context.Context, up bool) error {
	ep, err := g.endpointFor(ctx)
	if err != nil {
		return err
	}
	b, err := g.connect(ctx, ep)
	if err != nil {
		return err
	}
	if err := b.Migrate(ctx, up); err != nil {
		return &StoreError{Op: "migrate", Backend: ep.backend, Err: err}
	}
	return nil
}

// Health pings the backend, connecting if needed
func (g *Gateway) Health(ctx context.Context) error {
	_, err := call(ctx, g, "ping", func(b Backend) (struct{}, error) {
		return struct{}{}, b.Ping(ctx)
	})
	return err
}

// Close releases every backend connection that was opened
func (g *Gateway) Close(ctx context.Context) error {
	if g == nil {
		return nil
	}

	g.mu.Lock()
	endpoints := make([]*endpoint, 0, len(g.scoped)+1)
	if g.primary != nil {
		endpoints = append(endpoints, g.primary)
	}
	for _, ep := range g.scoped {
		endpoints = append(endpoints, ep)
	}
	g.mu.Unlock()

	var errs []error
	for _, ep := range endpoints {
		if err := ep.close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ep *endpoint) close(ctx context.Context) error {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.conn == nil {
		return nil
	}
	err := ep.conn.Close(ctx)
	ep.conn = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		return &StoreError{Op: "close", Backend: ep.backend, Err: err}
	}
	return nil
}
