// Package keys decides which API key a provider uses: the token store when
// it has one, the apiKeys cookie otherwise, and the environment for status.
package keys

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"chat-keystore/config"
	"chat-keystore/internal/cookies"
	"chat-keystore/models"
	"chat-keystore/observability"
	"chat-keystore/repository"
)

// Store is the part of the token store gateway the service uses
type Store interface {
	AvailableFor(ctx context.Context) bool
	GetAPIKey(ctx context.Context, userID string, provider models.Provider) (string, error)
	GetAllAPIKeys(ctx context.Context, userID string) (map[string]string, error)
	SaveAPIKey(ctx context.Context, userID string, provider models.Provider, apiKey string) (*models.APIToken, error)
	DeleteAPIKey(ctx context.Context, userID string, provider models.Provider) (bool, error)
	APIKeyExists(ctx context.Context, userID string, provider models.Provider) (bool, error)
}

// Where a resolved key map came from
const (
	SourceCookie   = "cookie"   // no store configured
	SourceMerged   = "merged"   // store answered, merged over the cookie
	SourceFallback = "fallback" // store failed, cookie only
)

// Resolution is a resolved provider→secret map. Degraded is set when the
// store is configured but could not be read.
type Resolution struct {
	Keys     map[string]string
	Degraded bool
	Source   string
}

// Service resolves, checks and saves provider keys
type Service struct {
	store      Store
	userID     string
	envSources func(ctx context.Context) []config.Source
	cookieOpts cookies.Options

	status   *StatusCache
	resolved *ResolutionCache
}

// NewService builds a Service over store using cfg for the user, caches,
// cookie attributes and env sources.
func NewService(store Store, cfg *config.Config) *Service {
	userID := cfg.Store.UserID
	if userID == "" {
		userID = models.DefaultUserID
	}
	return &Service{
		store:      store,
		userID:     userID,
		envSources: cfg.EnvSources,
		cookieOpts: cookies.Options{
			MaxAge: time.Duration(cfg.Cookie.MaxAgeSeconds) * time.Second,
			Secure: cfg.Cookie.Secure,
		},
		status:   NewStatusCache(cfg.Cache.StatusSize, cfg.StatusCacheTTL()),
		resolved: NewResolutionCache(cfg.Cache.ResolveSize, cfg.ResolveCacheTTL()),
	}
}

// StoreAvailable reports whether a token store is configured, at startup or
// in the request-scoped environment carried by ctx
func (s *Service) StoreAvailable(ctx context.Context) bool {
	return s.store != nil && s.store.AvailableFor(ctx)
}

// UserID is the implicit user every key belongs to
func (s *Service) UserID() string { return s.userID }

// cookieKeys reads the apiKeys cookie, treating a malformed value as empty
func cookieKeys(ctx context.Context, header string) map[string]string {
	keys, err := cookies.APIKeys(header)
	if err != nil {
		observability.WithContext(ctx).Warn("ignoring malformed apiKeys cookie", "error", err)
		return map[string]string{}
	}
	return keys
}

// ResolveAPIKeys returns the provider→secret map for a request. Store
// entries override cookie entries; store failures never surface.
func (s *Service) ResolveAPIKeys(ctx context.Context, cookieHeader string) map[string]string {
	return s.Resolve(ctx, cookieHeader).Keys
}

// Resolve is ResolveAPIKeys with the outcome attached
func (s *Service) Resolve(ctx context.Context, cookieHeader string) Resolution {
	metrics := observability.GetMetrics()
	fromCookie := cookieKeys(ctx, cookieHeader)

	if !s.StoreAvailable(ctx) {
		metrics.RecordResolution(SourceCookie)
		return Resolution{Keys: fromCookie, Source: SourceCookie}
	}

	// request-scoped env may name a different store
	cacheable := config.RequestEnv(ctx) == nil
	if cacheable {
		if keys, ok := s.resolved.Get(fromCookie); ok {
			metrics.RecordResolution(SourceMerged)
			return Resolution{Keys: keys, Source: SourceMerged}
		}
	}

	stored, err := s.store.GetAllAPIKeys(ctx, s.userID)
	if err != nil {
		observability.WithContext(ctx).Error("failed to load api keys from token store, using cookie", "error", err)
		metrics.RecordResolution(SourceFallback)
		return Resolution{Keys: fromCookie, Degraded: true, Source: SourceFallback}
	}

	merged := make(map[string]string, len(fromCookie)+len(stored))
	maps.Copy(merged, fromCookie)
	maps.Copy(merged, stored)

	if cacheable {
		s.resolved.Set(fromCookie, merged)
	}
	metrics.RecordResolution(SourceMerged)
	return Resolution{Keys: merged, Source: SourceMerged}
}

// CheckStatus reports whether provider has a key and where it lives: an
// active store record first, then the provider's env var in any configured
// source.
func (s *Service) CheckStatus(ctx context.Context, provider string) models.ProviderStatus {
	info, ok := models.LookupProvider(provider)
	if !ok {
		return models.ProviderStatus{}
	}

	// request-scoped values differ per call and must not be shared
	cacheable := config.RequestEnv(ctx) == nil
	if cacheable {
		if status, ok := s.status.Get(info.Name); ok {
			return status
		}
	}

	status, degraded := s.checkStatus(ctx, info)
	observability.GetMetrics().RecordStatusCheck(provider, string(status.SourceName()))
	if cacheable && !degraded {
		s.status.Set(info.Name, status)
	}
	return status
}

// checkStatus reports degraded when the store was configured but failed,
// in which case the answer must not be cached.
func (s *Service) checkStatus(ctx context.Context, info models.ProviderInfo) (models.ProviderStatus, bool) {
	degraded := false
	if s.StoreAvailable(ctx) {
		exists, err := s.store.APIKeyExists(ctx, s.userID, info.Name)
		switch {
		case err != nil:
			degraded = true
			observability.WithContext(ctx).Warn("token store check failed, falling back to environment",
				"provider", info.Name, "error", err)
		case exists:
			return models.NewProviderStatus(models.KeySourceDatabase), false
		}
	}

	if s.envKeySet(ctx, info) {
		return models.NewProviderStatus(models.KeySourceEnvironment), degraded
	}
	return models.ProviderStatus{}, degraded
}

func (s *Service) envKeySet(ctx context.Context, info models.ProviderInfo) bool {
	if info.APIKeyEnv == "" {
		return false
	}
	_, _, ok := config.Resolve(info.APIKeyEnv, s.envSources(ctx)...)
	return ok
}

// invalidate drops cached state a write to provider could change
func (s *Service) invalidate(provider models.Provider) {
	s.status.Invalidate(provider)
	s.resolved.Invalidate()
}

func validateProvider(provider string) (models.Provider, error) {
	info, ok := models.LookupProvider(provider)
	if !ok {
		return "", errInvalidProvider
	}
	return info.Name, nil
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsUnavailable reports whether err means no token store is configured
func IsUnavailable(err error) bool {
	return errors.Is(err, repository.ErrStoreUnavailable)
}

func normalizeSecret(secret string) string {
	return strings.TrimSpace(secret)
}

func logStoreReadError(ctx context.Context, op string, err error) {
	observability.WithContext(ctx).Error("token store read failed", "op", op, "error", err)
}
