package keys

import (
	"context"
	"errors"

	"chat-keystore/models"
	"chat-keystore/repository"
)

// Store-direct operations behind the /tokens endpoints. Unlike the save
// path they do not fall back to cookies; callers map ErrStoreUnavailable
// and StoreError to responses.

// StoreAPIKey validates and upserts a key in the token store
func (s *Service) StoreAPIKey(ctx context.Context, provider, secret string) (*models.APIToken, error) {
	secret = normalizeSecret(secret)
	if provider == "" || secret == "" {
		return nil, errProviderAndKeyRequired
	}
	p, err := validateProvider(provider)
	if err != nil {
		return nil, err
	}
	if !s.StoreAvailable(ctx) {
		return nil, repository.ErrStoreUnavailable
	}

	token, err := s.store.SaveAPIKey(ctx, s.userID, p, secret)
	if err != nil {
		return nil, err
	}
	s.invalidate(p)
	return token, nil
}

// RemoveAPIKey soft-deletes a key. It reports false when nothing matched.
func (s *Service) RemoveAPIKey(ctx context.Context, provider string) (bool, error) {
	if provider == "" {
		return false, errProviderRequired
	}
	if !s.StoreAvailable(ctx) {
		return false, repository.ErrStoreUnavailable
	}

	p := models.Provider(provider)
	deleted, err := s.store.DeleteAPIKey(ctx, s.userID, p)
	if err != nil {
		return false, err
	}
	s.invalidate(p)
	return deleted, nil
}

// LookupAPIKey returns the stored key for provider. Missing keys, an
// unconfigured store and store failures all yield "", false.
func (s *Service) LookupAPIKey(ctx context.Context, provider string) (string, bool) {
	if !s.StoreAvailable(ctx) || provider == "" {
		return "", false
	}
	key, err := s.store.GetAPIKey(ctx, s.userID, models.Provider(provider))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logStoreReadError(ctx, "get", err)
		}
		return "", false
	}
	return key, true
}

// LookupAllAPIKeys returns every stored key, or an empty map on any failure
func (s *Service) LookupAllAPIKeys(ctx context.Context) map[string]string {
	if !s.StoreAvailable(ctx) {
		return map[string]string{}
	}
	keys, err := s.store.GetAllAPIKeys(ctx, s.userID)
	if err != nil {
		logStoreReadError(ctx, "get_all", err)
		return map[string]string{}
	}
	return keys
}
