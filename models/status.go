package models

// KeySource says where a provider's key was found
type KeySource string

const (
	KeySourceNone        KeySource = ""
	KeySourceDatabase    KeySource = "database"
	KeySourceEnvironment KeySource = "environment"
)

// ProviderStatus is the derived "is a key configured" view of a provider.
// Source marshals to null when no key is set.
type ProviderStatus struct {
	IsSet  bool       `json:"isSet"`
	Source *KeySource `json:"source"`
}

func NewProviderStatus(source KeySource) ProviderStatus {
	if source == KeySourceNone {
		return ProviderStatus{}
	}
	s := source
	return ProviderStatus{IsSet: true, Source: &s}
}

// SourceName returns the source as a plain string, "" when unset
func (s ProviderStatus) SourceName() KeySource {
	if s.Source == nil {
		return KeySourceNone
	}
	return *s.Source
}
