package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"chat-keystore/config"
	"chat-keystore/internal/app"
	"chat-keystore/internal/cookies"
	"chat-keystore/models"
	"chat-keystore/repository"
)

// memStore is an in-memory app.StoreInterface
type memStore struct {
	mu        sync.Mutex
	available bool
	keys      map[models.Provider]string
	err       error
}

func newMemStore(available bool) *memStore {
	return &memStore{available: available, keys: map[models.Provider]string{}}
}

func (m *memStore) Available() bool { return m.available }

func (m *memStore) AvailableFor(ctx context.Context) bool { return m.available }
func (m *memStore) Backend() string { return "memory" }

func (m *memStore) check() error {
	if !m.available {
		return repository.ErrStoreUnavailable
	}
	if m.err != nil {
		return &repository.StoreError{Op: "test", Backend: "memory", Err: m.err}
	}
	return nil
}

func (m *memStore) GetAPIKey(ctx context.Context, userID string, provider models.Provider) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return "", err
	}
	k, ok := m.keys[provider]
	if !ok {
		return "", repository.ErrNotFound
	}
	return k, nil
}

func (m *memStore) GetAllAPIKeys(ctx context.Context, userID string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	out := map[string]string{}
	for p, k := range m.keys {
		out[string(p)] = k
	}
	return out, nil
}

func (m *memStore) SaveAPIKey(ctx context.Context, userID string, provider models.Provider, apiKey string) (*models.APIToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	m.keys[provider] = apiKey
	return models.NewAPIToken(userID, provider, apiKey), nil
}

func (m *memStore) DeleteAPIKey(ctx context.Context, userID string, provider models.Provider) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return false, err
	}
	_, ok := m.keys[provider]
	delete(m.keys, provider)
	return ok, nil
}

func (m *memStore) APIKeyExists(ctx context.Context, userID string, provider models.Provider) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return false, err
	}
	_, ok := m.keys[provider]
	return ok, nil
}

func (m *memStore) ListTokens(ctx context.Context, userID string) ([]models.APIToken, error) {
	return nil, m.check()
}

func (m *memStore) Migrate(ctx context.Context, up bool) error { return m.check() }
func (m *memStore) Health(ctx context.Context) error           { return m.check() }
func (m *memStore) Close(ctx context.Context) error            { return nil }

// testConfig returns a test configuration
func testConfig(env map[string]string) *config.Config {
	return config.NewTestConfig().WithSources(config.NewMapSource("test", env))
}

// testRouter creates a Chi router over store for testing
func testRouter(store *memStore, env map[string]string) http.Handler {
	cfg := testConfig(env)
	a := app.NewWithStore(cfg, store, nil)
	return NewRouter(NewHandler(a, cfg), cfg)
}

func doRequest(t *testing.T, router http.Handler, method, target, body string, cookieHeader string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if cookieHeader != "" {
		req.Header.Set("Cookie", cookieHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestHandler_GetTokens(t *testing.T) {
	t.Run("single provider", func(t *testing.T) {
		store := newMemStore(true)
		store.keys[models.ProviderOpenRouter] = "sk-or"
		w := doRequest(t, testRouter(store, nil), http.MethodGet, "/api/tokens?provider=OpenRouter", "", "")

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		body := decodeBody(t, w)
		if body["provider"] != "OpenRouter" || body["hasToken"] != true || body["apiKey"] != "sk-or" {
			t.Errorf("unexpected body: %v", body)
		}
	})

	t.Run("missing provider key", func(t *testing.T) {
		w := doRequest(t, testRouter(newMemStore(true), nil), http.MethodGet, "/api/tokens?provider=HuggingFace", "", "")
		body := decodeBody(t, w)
		if body["hasToken"] != false || body["apiKey"] != nil {
			t.Errorf("unexpected body: %v", body)
		}
	})

	t.Run("all keys", func(t *testing.T) {
		store := newMemStore(true)
		store.keys[models.ProviderOpenRouter] = "sk-or"
		store.keys[models.ProviderLMStudio] = "lm"
		w := doRequest(t, testRouter(store, nil), http.MethodGet, "/api/tokens", "", "")

		keys, ok := decodeBody(t, w)["apiKeys"].(map[string]interface{})
		if !ok || len(keys) != 2 || keys["LMStudio"] != "lm" {
			t.Errorf("unexpected apiKeys: %v", keys)
		}
	})

	for _, tc := range []struct {
		name  string
		store *memStore
	}{
		{"store unavailable", newMemStore(false)},
		{"store failing", &memStore{available: true, keys: map[models.Provider]string{}, err: errors.New("down")}},
	} {
		t.Run(tc.name+" gives empty shapes", func(t *testing.T) {
			router := testRouter(tc.store, nil)

			w := doRequest(t, router, http.MethodGet, "/api/tokens?provider=OpenRouter", "", "")
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}
			body := decodeBody(t, w)
			if body["hasToken"] != false || body["apiKey"] != nil {
				t.Errorf("unexpected body: %v", body)
			}

			w = doRequest(t, router, http.MethodGet, "/api/tokens", "", "")
			if keys := decodeBody(t, w)["apiKeys"].(map[string]interface{}); len(keys) != 0 {
				t.Errorf("expected empty apiKeys, got %v", keys)
			}
		})
	}
}

func TestHandler_SaveToken(t *testing.T) {
	tests := []struct {
		name       string
		store      *memStore
		body       string
		wantStatus int
		wantError  string
	}{
		{"saved", newMemStore(true), `{"provider":"OpenRouter","apiKey":"sk-new"}`, http.StatusOK, ""},
		{"missing key", newMemStore(true), `{"provider":"OpenRouter"}`, http.StatusBadRequest, "Provider and apiKey are required"},
		{"missing provider", newMemStore(true), `{"apiKey":"sk"}`, http.StatusBadRequest, "Provider and apiKey are required"},
		{"invalid provider", newMemStore(true), `{"provider":"Anthropic","apiKey":"sk"}`, http.StatusBadRequest, "Invalid provider"},
		{"invalid json", newMemStore(true), `{`, http.StatusBadRequest, "Invalid JSON request"},
		{"store unavailable", newMemStore(false), `{"provider":"OpenRouter","apiKey":"sk"}`, http.StatusServiceUnavailable, "Database not available. Please use cookies fallback."},
		{
			"store failure",
			&memStore{available: true, keys: map[models.Provider]string{}, err: errors.New("write failed")},
			`{"provider":"OpenRouter","apiKey":"sk"}`,
			http.StatusInternalServerError,
			"Database error. Please use cookies fallback.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, testRouter(tt.store, nil), http.MethodPost, "/api/tokens", tt.body, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			body := decodeBody(t, w)
			if tt.wantError != "" {
				if body["error"] != tt.wantError {
					t.Errorf("error = %v, want %q", body["error"], tt.wantError)
				}
				return
			}
			if body["success"] != true || body["message"] != "OpenRouter API key saved successfully" {
				t.Errorf("unexpected body: %v", body)
			}
			if tt.store.keys[models.ProviderOpenRouter] != "sk-new" {
				t.Errorf("store holds %q", tt.store.keys[models.ProviderOpenRouter])
			}
		})
	}
}

func TestHandler_DeleteToken(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		store := newMemStore(true)
		store.keys[models.ProviderHuggingFace] = "hf"
		w := doRequest(t, testRouter(store, nil), http.MethodDelete, "/api/tokens", `{"provider":"HuggingFace"}`, "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if body := decodeBody(t, w); body["message"] != "HuggingFace API key deleted successfully" {
			t.Errorf("unexpected body: %v", body)
		}
	})

	tests := []struct {
		name       string
		store      *memStore
		body       string
		wantStatus int
		wantError  string
	}{
		{"nothing to delete", newMemStore(true), `{"provider":"HuggingFace"}`, http.StatusInternalServerError, "Failed to delete API key"},
		{"missing provider", newMemStore(true), `{}`, http.StatusBadRequest, "Provider is required"},
		{"store unavailable", newMemStore(false), `{"provider":"HuggingFace"}`, http.StatusServiceUnavailable, "Database not available. Please use cookies fallback."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, testRouter(tt.store, nil), http.MethodDelete, "/api/tokens", tt.body, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if body := decodeBody(t, w); body["error"] != tt.wantError {
				t.Errorf("error = %v, want %q", body["error"], tt.wantError)
			}
		})
	}
}

func TestHandler_TokensMethodNotAllowed(t *testing.T) {
	w := doRequest(t, testRouter(newMemStore(true), nil), http.MethodPut, "/api/tokens", `{}`, "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "Method not allowed" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHandler_CheckEnvKey(t *testing.T) {
	tests := []struct {
		name       string
		store      *memStore
		env        map[string]string
		query      string
		wantSet    bool
		wantSource interface{}
	}{
		{"no provider", newMemStore(true), nil, "", false, nil},
		{"database", func() *memStore {
			s := newMemStore(true)
			s.keys[models.ProviderOpenRouter] = "sk"
			return s
		}(), map[string]string{"OPEN_ROUTER_API_KEY": "env"}, "?provider=OpenRouter", true, "database"},
		{"environment", newMemStore(false), map[string]string{"OPEN_ROUTER_API_KEY": "env"}, "?provider=OpenRouter", true, "environment"},
		{"nothing", newMemStore(false), nil, "?provider=HuggingFace", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, testRouter(tt.store, tt.env), http.MethodGet, "/api/check-env-key"+tt.query, "", "")
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}
			body := decodeBody(t, w)
			if body["isSet"] != tt.wantSet || body["source"] != tt.wantSource {
				t.Errorf("body = %v, want isSet=%v source=%v", body, tt.wantSet, tt.wantSource)
			}
			if _, ok := body["source"]; !ok {
				t.Error("source must be present even when null")
			}
		})
	}
}

func apiKeysCookie(t *testing.T, keys map[string]string) string {
	t.Helper()
	data, _ := json.Marshal(keys)
	return cookies.APIKeysCookie + "=" + url.PathEscape(string(data))
}

func TestHandler_ResolveKeys(t *testing.T) {
	store := newMemStore(true)
	store.keys[models.ProviderOpenRouter] = "db"
	cookie := apiKeysCookie(t, map[string]string{"OpenRouter": "cookie", "HuggingFace": "hf"})

	w := doRequest(t, testRouter(store, nil), http.MethodGet, "/api/keys", "", cookie)
	body := decodeBody(t, w)
	keys := body["apiKeys"].(map[string]interface{})
	if keys["OpenRouter"] != "db" || keys["HuggingFace"] != "hf" || body["degraded"] != false {
		t.Errorf("unexpected body: %v", body)
	}

	failing := &memStore{available: true, keys: map[models.Provider]string{}, err: errors.New("down")}
	w = doRequest(t, testRouter(failing, nil), http.MethodGet, "/api/keys", "", cookie)
	body = decodeBody(t, w)
	if body["degraded"] != true || body["apiKeys"].(map[string]interface{})["OpenRouter"] != "cookie" {
		t.Errorf("unexpected degraded body: %v", body)
	}
}

func TestHandler_SaveKey(t *testing.T) {
	t.Run("sets cookie and stores", func(t *testing.T) {
		store := newMemStore(true)
		existing := apiKeysCookie(t, map[string]string{"HuggingFace": "hf"})
		w := doRequest(t, testRouter(store, nil), http.MethodPost, "/api/keys",
			`{"provider":"OpenRouter","apiKey":"sk-or"}`, existing)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		if body["success"] != true || body["storedInDatabase"] != true {
			t.Errorf("unexpected body: %v", body)
		}

		setCookie := w.Result().Cookies()
		if len(setCookie) != 1 || setCookie[0].Name != cookies.APIKeysCookie {
			t.Fatalf("Set-Cookie = %v", setCookie)
		}
		got, err := cookies.APIKeys(setCookie[0].Name + "=" + setCookie[0].Value)
		if err != nil {
			t.Fatalf("APIKeys() error = %v", err)
		}
		if got["OpenRouter"] != "sk-or" || got["HuggingFace"] != "hf" {
			t.Errorf("cookie keys = %v", got)
		}
	})

	t.Run("cookie only without store", func(t *testing.T) {
		w := doRequest(t, testRouter(newMemStore(false), nil), http.MethodPost, "/api/keys",
			`{"provider":"LMStudio","apiKey":"lm"}`, "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if body := decodeBody(t, w); body["storedInDatabase"] != false {
			t.Errorf("unexpected body: %v", body)
		}
		if len(w.Result().Cookies()) != 1 {
			t.Error("expected apiKeys cookie")
		}
	})

	t.Run("validation", func(t *testing.T) {
		w := doRequest(t, testRouter(newMemStore(true), nil), http.MethodPost, "/api/keys",
			`{"provider":"OpenRouter","apiKey":"  "}`, "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
		if len(w.Result().Cookies()) != 0 {
			t.Error("cookie written on validation failure")
		}
	})
}

func TestHandler_GetProviders(t *testing.T) {
	settings, _ := json.Marshal(map[string]cookies.ProviderSetting{
		"LMStudio":    {Enabled: true, BaseURL: "http://gpu-box:1234"},
		"HuggingFace": {Enabled: false},
	})
	cookie := cookies.ProvidersCookie + "=" + url.PathEscape(string(settings))

	w := doRequest(t, testRouter(newMemStore(false), map[string]string{"OPEN_ROUTER_API_KEY": "env"}),
		http.MethodGet, "/api/providers", "", cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var views []ProviderView
	if err := json.NewDecoder(w.Body).Decode(&views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	byName := map[models.Provider]ProviderView{}
	for _, v := range views {
		byName[v.Name] = v
	}

	if len(byName) != 3 {
		t.Fatalf("expected 3 providers, got %d", len(byName))
	}
	if !byName[models.ProviderOpenRouter].Status.IsSet {
		t.Error("OpenRouter env key not reported")
	}
	if byName[models.ProviderHuggingFace].Enabled {
		t.Error("HuggingFace should be disabled by cookie")
	}
	if byName[models.ProviderLMStudio].BaseURL != "http://gpu-box:1234" {
		t.Errorf("LMStudio base URL = %q", byName[models.ProviderLMStudio].BaseURL)
	}
}

func TestHandler_Health(t *testing.T) {
	tests := []struct {
		name        string
		store       *memStore
		wantStatus  string
		wantService string
	}{
		{"not configured", newMemStore(false), "ok", "not_configured"},
		{"connected", newMemStore(true), "ok", "connected"},
		{"disconnected", &memStore{available: true, err: errors.New("refused")}, "degraded", "disconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, testRouter(tt.store, nil), http.MethodGet, "/api/health", "", "")
			body := decodeBody(t, w)
			if body["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %q", body["status"], tt.wantStatus)
			}
			svc := body["services"].(map[string]interface{})
			if svc["token_store"] != tt.wantService {
				t.Errorf("token_store = %v, want %q", svc["token_store"], tt.wantService)
			}
		})
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	w := doRequest(t, testRouter(newMemStore(false), nil), http.MethodOptions, "/api/tokens", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Allow-Origin = %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRouter_NotFound(t *testing.T) {
	w := doRequest(t, testRouter(newMemStore(false), nil), http.MethodGet, "/api/nope", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}
