// Package cookies parses raw Cookie headers and encodes the apiKeys fallback
// cookie. Parsing is deliberately lenient: items without "=" are dropped and
// undecodable percent escapes are kept verbatim.
package cookies

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// APIKeysCookie holds a JSON object of provider name to secret
	APIKeysCookie = "apiKeys"
	// ProvidersCookie holds a JSON object of provider name to ProviderSetting
	ProvidersCookie = "providers"
)

// ErrMalformedCookie wraps JSON decode failures of a known cookie
var ErrMalformedCookie = errors.New("malformed cookie")

// ProviderSetting is the per-provider settings-tab state stored client side
type ProviderSetting struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// Parse splits a Cookie header into name/value pairs. Later duplicates win.
func Parse(header string) map[string]string {
	out := make(map[string]string)
	if header == "" {
		return out
	}

	for _, item := range strings.Split(header, ";") {
		item = strings.TrimSpace(item)
		name, value, found := strings.Cut(item, "=")
		if !found || name == "" {
			continue
		}
		out[decode(strings.TrimSpace(name))] = decode(strings.TrimSpace(value))
	}

	return out
}

func decode(s string) string {
	if decoded, err := url.PathUnescape(s); err == nil {
		return decoded
	}
	return s
}

// APIKeys extracts the apiKeys cookie from header. A missing cookie yields an
// empty map; invalid JSON yields ErrMalformedCookie.
func APIKeys(header string) (map[string]string, error) {
	keys := make(map[string]string)
	if err := decodeJSONCookie(header, APIKeysCookie, &keys); err != nil {
		return map[string]string{}, err
	}
	if keys == nil {
		// a literal null
		keys = map[string]string{}
	}
	return keys, nil
}

// ProviderSettings extracts the providers cookie from header
func ProviderSettings(header string) (map[string]ProviderSetting, error) {
	settings := make(map[string]ProviderSetting)
	if err := decodeJSONCookie(header, ProvidersCookie, &settings); err != nil {
		return map[string]ProviderSetting{}, err
	}
	if settings == nil {
		settings = map[string]ProviderSetting{}
	}
	return settings, nil
}

func decodeJSONCookie(header, name string, dst any) error {
	raw, ok := Parse(header)[name]
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("%w %q: %v", ErrMalformedCookie, name, err)
	}
	return nil
}

// Options controls attributes of encoded cookies
type Options struct {
	MaxAge time.Duration // zero leaves a session cookie
	Secure bool
}

// EncodeAPIKeys builds the apiKeys cookie for keys. The whole map is written;
// callers merge with the current cookie first.
func EncodeAPIKeys(keys map[string]string, opts Options) (*http.Cookie, error) {
	if keys == nil {
		keys = map[string]string{}
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal api keys: %w", err)
	}

	c := &http.Cookie{
		Name:     APIKeysCookie,
		Value:    url.PathEscape(string(data)),
		Path:     "/",
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if opts.MaxAge > 0 {
		c.MaxAge = int(opts.MaxAge.Seconds())
		c.Expires = time.Now().Add(opts.MaxAge)
	}
	return c, nil
}

// Merge returns a copy of current with provider set to secret
func Merge(current map[string]string, provider, secret string) map[string]string {
	out := make(map[string]string, len(current)+1)
	for k, v := range current {
		out[k] = v
	}
	out[provider] = secret
	return out
}
