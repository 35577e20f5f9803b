package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"chat-keystore/config"
	"chat-keystore/internal/app"
	"chat-keystore/internal/cookies"
	"chat-keystore/internal/keys"
	"chat-keystore/models"
	"chat-keystore/observability"
)

// Error bodies the settings UI matches on
const (
	msgStoreUnavailable = "Database not available. Please use cookies fallback."
	msgStoreError       = "Database error. Please use cookies fallback."
	msgDeleteFailed     = "Failed to delete API key"
	msgInvalidJSON      = "Invalid JSON request"
)

// Handler handles HTTP API requests
type Handler struct {
	app *app.App
	cfg *config.Config
}

// NewHandler creates a new Handler
func NewHandler(application *app.App, cfg *config.Config) *Handler {
	return &Handler{app: application, cfg: cfg}
}

// TokenRequest is the body of POST and DELETE on /api/tokens and POST /api/keys
type TokenRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey"`
}

// TokenResponse answers GET /api/tokens?provider=
type TokenResponse struct {
	Provider string  `json:"provider"`
	HasToken bool    `json:"hasToken"`
	APIKey   *string `json:"apiKey"`
}

// ProviderView is a catalog entry merged with the caller's settings cookie
type ProviderView struct {
	models.ProviderInfo
	Enabled bool                  `json:"enabled"`
	Status  models.ProviderStatus `json:"status"`
}

// HandleHealth returns the health status of the application
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	store := h.app.StoreStatus(r.Context())
	status := map[string]interface{}{
		"status": "ok",
		"services": map[string]string{
			"token_store": store,
		},
	}
	if store == "disconnected" {
		status["status"] = "degraded"
	}

	cbStatus := h.app.Breakers().Status()
	status["circuit_breakers"] = cbStatus
	for _, cb := range cbStatus {
		if cb.State == "open" {
			status["status"] = "degraded"
			break
		}
	}

	h.jsonResponse(w, status)
}

// HandleGetTokens returns one stored key (?provider=) or all of them. Store
// problems produce empty answers rather than errors.
func (h *Handler) HandleGetTokens(w http.ResponseWriter, r *http.Request) {
	svc := h.app.Keys()
	provider := r.URL.Query().Get("provider")

	if provider == "" {
		h.jsonResponse(w, map[string]interface{}{
			"apiKeys": svc.LookupAllAPIKeys(r.Context()),
		})
		return
	}

	resp := TokenResponse{Provider: provider}
	if key, ok := svc.LookupAPIKey(r.Context(), provider); ok {
		resp.HasToken = true
		resp.APIKey = &key
	}
	h.jsonResponse(w, resp)
}

// HandleSaveToken stores a key in the token store only
func (h *Handler) HandleSaveToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, msgInvalidJSON, http.StatusBadRequest)
		return
	}

	token, err := h.app.Keys().StoreAPIKey(r.Context(), req.Provider, req.APIKey)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	h.jsonResponse(w, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("%s API key saved successfully", token.Provider),
		"token":   token,
	})
}

// HandleDeleteToken soft-deletes a stored key
func (h *Handler) HandleDeleteToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, msgInvalidJSON, http.StatusBadRequest)
		return
	}

	deleted, err := h.app.Keys().RemoveAPIKey(r.Context(), req.Provider)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	if !deleted {
		h.jsonError(w, msgDeleteFailed, http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("%s API key deleted successfully", req.Provider),
	})
}

// storeError maps /tokens write failures to status codes
func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *keys.ValidationError
	switch {
	case errors.As(err, &vErr):
		h.jsonError(w, vErr.Message, http.StatusBadRequest)
	case keys.IsUnavailable(err):
		h.jsonError(w, msgStoreUnavailable, http.StatusServiceUnavailable)
	default:
		observability.WithContext(r.Context()).Error("token store write failed", "error", err)
		h.jsonError(w, msgStoreError, http.StatusInternalServerError)
	}
}

// HandleCheckEnvKey reports whether a provider has a key and where it is
func (h *Handler) HandleCheckEnvKey(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	h.jsonResponse(w, h.app.Keys().CheckStatus(r.Context(), provider))
}

// HandleResolveKeys returns the keys the chat path would use for this
// request's cookies
func (h *Handler) HandleResolveKeys(w http.ResponseWriter, r *http.Request) {
	res := h.app.Keys().Resolve(r.Context(), r.Header.Get("Cookie"))
	h.jsonResponse(w, map[string]interface{}{
		"apiKeys":  res.Keys,
		"degraded": res.Degraded,
	})
}

// HandleSaveKey runs the settings save path: cookie always, store when
// configured
func (h *Handler) HandleSaveKey(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, msgInvalidJSON, http.StatusBadRequest)
		return
	}

	out, err := h.app.Keys().SaveAPIKey(r.Context(), r.Header.Get("Cookie"), req.Provider, req.APIKey)
	if err != nil {
		var vErr *keys.ValidationError
		if errors.As(err, &vErr) {
			h.jsonError(w, vErr.Message, http.StatusBadRequest)
			return
		}
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, out.Cookie)
	h.jsonResponse(w, map[string]interface{}{
		"success":          out.Success,
		"message":          out.Message,
		"storedInDatabase": out.StoredInDatabase,
	})
}

// HandleGetProviders lists the provider catalog with the caller's enabled
// flags and base URL overrides from the providers cookie
func (h *Handler) HandleGetProviders(w http.ResponseWriter, r *http.Request) {
	settings, err := cookies.ProviderSettings(r.Header.Get("Cookie"))
	if err != nil {
		observability.WithContext(r.Context()).Warn("ignoring malformed providers cookie", "error", err)
	}

	catalog := models.Providers()
	views := make([]ProviderView, 0, len(catalog))
	for _, info := range catalog {
		view := ProviderView{ProviderInfo: info, Enabled: true}
		if s, ok := settings[string(info.Name)]; ok {
			view.Enabled = s.Enabled
			if s.BaseURL != "" {
				view.BaseURL = s.BaseURL
			}
		}
		view.Status = h.app.Keys().CheckStatus(r.Context(), string(info.Name))
		views = append(views, view)
	}

	h.jsonResponse(w, views)
}

func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.jsonError(w, "Not found", http.StatusNotFound)
}

func (h *Handler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
