package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chat-keystore/models"
)

var (
	// ErrStoreUnavailable means no connection string is configured, neither
	// at startup nor in the request's environment.
	ErrStoreUnavailable = errors.New("token store not configured")

	// ErrNotFound means no active record exists for the (user, provider) pair
	ErrNotFound = errors.New("api token not found")

	// ErrUnsupportedScheme is returned for connection strings no backend handles
	ErrUnsupportedScheme = errors.New("unsupported token store scheme")
)

// StoreError is a failed connect, query or write against a configured store
type StoreError struct {
	Op      string
	Backend string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("token store %s (%s): %v", e.Op, e.Backend, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Backend is one database driver's view of the api token records. Lookups
// that find nothing return (nil, nil).
type Backend interface {
	FindToken(ctx context.Context, userID string, provider models.Provider, activeOnly bool) (*models.APIToken, error)
	FindActiveTokens(ctx context.Context, userID string) ([]models.APIToken, error)
	// ListTokens includes inactive records; an empty userID lists every user
	ListTokens(ctx context.Context, userID string) ([]models.APIToken, error)
	// UpsertToken stores APIKey for (UserID, Provider), reactivating an
	// existing record, and returns the stored row.
	UpsertToken(ctx context.Context, token *models.APIToken) (*models.APIToken, error)
	// DeactivateToken clears the active flag; false when no record exists
	DeactivateToken(ctx context.Context, userID string, provider models.Provider) (bool, error)
	Migrate(ctx context.Context, up bool) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Dialer opens a Backend for a connection string
type Dialer func(ctx context.Context, connString string) (Backend, error)

const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongodb"
	BackendRedis    = "redis"
)

// DialerFor picks the backend implied by the connection string's scheme
func DialerFor(connString string) (string, Dialer, error) {
	scheme, _, _ := strings.Cut(connString, "://")
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return BackendPostgres, dialPostgres, nil
	case "mongodb", "mongodb+srv":
		return BackendMongo, dialMongo, nil
	case "redis", "rediss":
		return BackendRedis, dialRedis, nil
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}
