package models

// Provider identifies an upstream model-serving integration.
type Provider string

const (
	ProviderOpenRouter  Provider = "OpenRouter"
	ProviderHuggingFace Provider = "HuggingFace"
	ProviderLMStudio    Provider = "LMStudio"
)

// ProviderInfo describes a provider for settings screens and status checks
type ProviderInfo struct {
	Name        Provider `json:"name"`
	DisplayName string   `json:"displayName"`
	Description string   `json:"description"`
	APIKeyEnv   string   `json:"apiKeyEnv,omitempty"`  // env var holding a server-side key
	BaseURLEnv  string   `json:"baseUrlEnv,omitempty"` // env var overriding the base URL
	BaseURL     string   `json:"baseUrl,omitempty"`
}

var providerCatalog = []ProviderInfo{
	{
		Name:        ProviderOpenRouter,
		DisplayName: "OpenRouter",
		Description: "Unified API for hosted models from many vendors",
		APIKeyEnv:   "OPEN_ROUTER_API_KEY",
		BaseURL:     "https://openrouter.ai/api/v1",
	},
	{
		Name:        ProviderHuggingFace,
		DisplayName: "HuggingFace",
		Description: "Inference API for models hosted on the HuggingFace Hub",
		APIKeyEnv:   "HuggingFace_API_KEY",
		BaseURL:     "https://api-inference.huggingface.co/v1",
	},
	{
		Name:        ProviderLMStudio,
		DisplayName: "LM Studio",
		Description: "Locally served models through the LM Studio server",
		BaseURLEnv:  "LMSTUDIO_API_BASE_URL",
		BaseURL:     "http://localhost:1234",
	},
}

// Providers returns the fixed provider catalog in display order
func Providers() []ProviderInfo {
	out := make([]ProviderInfo, len(providerCatalog))
	copy(out, providerCatalog)
	return out
}

// LookupProvider returns the catalog entry for name. Matching is exact.
func LookupProvider(name string) (ProviderInfo, bool) {
	for _, p := range providerCatalog {
		if string(p.Name) == name {
			return p, true
		}
	}
	return ProviderInfo{}, false
}

// IsValid reports whether p belongs to the provider catalog
func (p Provider) IsValid() bool {
	_, ok := LookupProvider(string(p))
	return ok
}

func (p Provider) String() string {
	return string(p)
}
