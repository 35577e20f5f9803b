package models

import (
	"encoding/json"
	"testing"
)

func TestLookupProvider(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"OpenRouter", true},
		{"HuggingFace", true},
		{"LMStudio", true},
		{"openrouter", false},
		{"OpenAI", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := LookupProvider(tt.name)
			if ok != tt.want {
				t.Errorf("LookupProvider(%q) ok = %v, want %v", tt.name, ok, tt.want)
			}
			if Provider(tt.name).IsValid() != tt.want {
				t.Errorf("Provider(%q).IsValid() = %v, want %v", tt.name, !tt.want, tt.want)
			}
		})
	}
}

func TestProviders_ReturnsCopy(t *testing.T) {
	list := Providers()
	if len(list) != 3 {
		t.Fatalf("Providers() len = %d, want 3", len(list))
	}
	list[0].DisplayName = "changed"

	if Providers()[0].DisplayName == "changed" {
		t.Error("Providers() should return a copy of the catalog")
	}
}

func TestLMStudioHasNoKeyEnv(t *testing.T) {
	info, _ := LookupProvider("LMStudio")
	if info.APIKeyEnv != "" {
		t.Errorf("LMStudio APIKeyEnv = %q, want empty", info.APIKeyEnv)
	}
	if info.BaseURLEnv == "" {
		t.Error("LMStudio should expose a base URL env var")
	}
}

func TestNewAPIToken(t *testing.T) {
	token := NewAPIToken("", ProviderOpenRouter, "sk-123")

	if token.UserID != DefaultUserID {
		t.Errorf("UserID = %v, want %v", token.UserID, DefaultUserID)
	}
	if !token.IsActive {
		t.Error("new token should be active")
	}
	if token.ID == [16]byte{} {
		t.Error("ID should not be zero UUID")
	}
	if token.CreatedAt.IsZero() || !token.CreatedAt.Equal(token.UpdatedAt) {
		t.Error("CreatedAt and UpdatedAt should be set to the same instant")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"abc", "****"},
		{"abcd", "****"},
		{"sk-or-123456", "****3456"},
	}
	for _, tt := range tests {
		if got := MaskSecret(tt.in); got != tt.want {
			t.Errorf("MaskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	token := NewAPIToken("u", ProviderHuggingFace, "hf_abcdefgh")
	masked := token.Masked()
	if masked.APIKey != "****efgh" {
		t.Errorf("Masked().APIKey = %q", masked.APIKey)
	}
	if token.APIKey != "hf_abcdefgh" {
		t.Error("Masked() must not modify the receiver")
	}
}

func TestProviderStatus_JSON(t *testing.T) {
	tests := []struct {
		name   string
		status ProviderStatus
		want   string
	}{
		{"not set", NewProviderStatus(KeySourceNone), `{"isSet":false,"source":null}`},
		{"database", NewProviderStatus(KeySourceDatabase), `{"isSet":true,"source":"database"}`},
		{"environment", NewProviderStatus(KeySourceEnvironment), `{"isSet":true,"source":"environment"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.status)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal() = %s, want %s", data, tt.want)
			}
		})
	}
}
