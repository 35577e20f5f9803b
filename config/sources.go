package config

import (
	"context"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

// Source is a named place configuration values are read from
type Source interface {
	Name() string
	Lookup(key string) (string, bool)
}

// Resolve returns the first non-empty value for key, probing sources in
// order. The name of the source that supplied the value is returned with it.
func Resolve(key string, sources ...Source) (value string, from string, ok bool) {
	for _, src := range sources {
		if src == nil {
			continue
		}
		if v, found := src.Lookup(key); found && v != "" {
			return v, src.Name(), true
		}
	}
	return "", "", false
}

// ResolveAny is Resolve over several alias keys. Keys are tried in order,
// each across all sources, before moving to the next key.
func ResolveAny(keys []string, sources ...Source) (value string, from string, ok bool) {
	for _, key := range keys {
		if v, src, found := Resolve(key, sources...); found {
			return v, src, true
		}
	}
	return "", "", false
}

type envSource struct{}

// ProcessEnv reads from the process environment (including anything
// loaded from .env at startup).
func ProcessEnv() Source { return envSource{} }

func (envSource) Name() string { return "process" }

func (envSource) Lookup(key string) (string, bool) { return os.LookupEnv(key) }

// MapSource is a fixed set of values
type MapSource struct {
	name   string
	values map[string]string
}

func NewMapSource(name string, values map[string]string) *MapSource {
	if values == nil {
		values = map[string]string{}
	}
	return &MapSource{name: name, values: values}
}

func (m *MapSource) Name() string { return m.name }

func (m *MapSource) Lookup(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// BuildEnv holds dotenv-formatted values baked in at link time:
//
//	go build -ldflags "-X 'chat-keystore/config.BuildEnv=MONGODB_URI=mongodb://db:27017/chat'"
var BuildEnv string

var (
	buildOnce   sync.Once
	buildSource *MapSource
)

// BuildTime returns the link-time environment. A malformed BuildEnv yields
// an empty source.
func BuildTime() Source {
	buildOnce.Do(func() {
		values, err := godotenv.Unmarshal(BuildEnv)
		if err != nil {
			values = nil
		}
		buildSource = NewMapSource("build", values)
	})
	return buildSource
}

type requestEnvKey struct{}

// WithRequestEnv attaches request-scoped configuration to ctx. Hosts that
// embed the HTTP handler use it to pass per-request bindings.
func WithRequestEnv(ctx context.Context, values map[string]string) context.Context {
	return context.WithValue(ctx, requestEnvKey{}, NewMapSource("request", values))
}

// RequestEnv returns the request-scoped source carried by ctx, or nil
func RequestEnv(ctx context.Context) Source {
	if src, ok := ctx.Value(requestEnvKey{}).(*MapSource); ok {
		return src
	}
	return nil
}
