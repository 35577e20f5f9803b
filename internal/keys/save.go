package keys

import (
	"context"
	"fmt"
	"net/http"

	"chat-keystore/internal/cookies"
	"chat-keystore/models"
	"chat-keystore/observability"
)

// Save destinations recorded in metrics
const (
	destinationDatabase = "database"
	destinationCookie   = "cookie"
)

// SaveOutcome is the result of the settings save path. Cookie must be sent
// back to the client whatever StoredInDatabase says.
type SaveOutcome struct {
	Success          bool
	Message          string
	Token            *models.APIToken
	CookieKeys       map[string]string
	Cookie           *http.Cookie
	StoredInDatabase bool
}

// SaveAPIKey writes secret for provider to the apiKeys cookie map and, when
// a store is configured, to the store. A store failure still succeeds with
// the cookie as the only copy.
func (s *Service) SaveAPIKey(ctx context.Context, cookieHeader, provider, secret string) (*SaveOutcome, error) {
	secret = normalizeSecret(secret)
	if provider == "" || secret == "" {
		return nil, errProviderAndKeyRequired
	}
	p, err := validateProvider(provider)
	if err != nil {
		return nil, err
	}

	keys := cookies.Merge(cookieKeys(ctx, cookieHeader), string(p), secret)
	cookie, err := cookies.EncodeAPIKeys(keys, s.cookieOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode apiKeys cookie: %w", err)
	}

	out := &SaveOutcome{
		Success:    true,
		CookieKeys: keys,
		Cookie:     cookie,
	}

	log := observability.WithContext(ctx).With("provider", p)
	metrics := observability.GetMetrics()

	switch {
	case !s.StoreAvailable(ctx):
		out.Message = fmt.Sprintf("%s API key saved to cookies", p)
		metrics.RecordKeySave(string(p), destinationCookie)
	default:
		token, err := s.store.SaveAPIKey(ctx, s.userID, p, secret)
		if err != nil {
			log.Error("failed to save api key to token store", "error", err)
			out.Message = fmt.Sprintf("%s API key saved to local fallback storage only", p)
			metrics.RecordKeySave(string(p), destinationCookie)
			break
		}
		masked := token.Masked()
		out.Token = &masked
		out.StoredInDatabase = true
		out.Message = fmt.Sprintf("%s API key saved successfully", p)
		metrics.RecordKeySave(string(p), destinationDatabase)
	}

	s.invalidate(p)
	log.Info("api key saved", "stored_in_database", out.StoredInDatabase)
	return out, nil
}
