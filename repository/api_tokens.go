package repository

import (
	"context"
	"errors"
	"fmt"

	"chat-keystore/models"

	"github.com/jackc/pgx/v5"
)

const tokenColumns = `id, user_id, provider, api_key, is_active, created_at, updated_at`

func scanToken(row pgx.Row) (*models.APIToken, error) {
	var t models.APIToken
	var provider string
	err := row.Scan(&t.ID, &t.UserID, &provider, &t.APIKey, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Provider = models.Provider(provider)
	return &t, nil
}

func collectTokens(rows pgx.Rows) ([]models.APIToken, error) {
	defer rows.Close()

	var tokens []models.APIToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api token: %w", err)
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating api tokens: %w", err)
	}
	return tokens, nil
}

// FindToken retrieves the token for (userID, provider)
func (p *Postgres) FindToken(ctx context.Context, userID string, provider models.Provider, activeOnly bool) (*models.APIToken, error) {
	query := `SELECT ` + tokenColumns + `
		FROM api_tokens
		WHERE user_id = $1 AND provider = $2 AND (is_active OR NOT $3)`

	t, err := scanToken(p.pool.QueryRow(ctx, query, userID, string(provider), activeOnly))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api token: %w", err)
	}
	return t, nil
}

// FindActiveTokens retrieves every active token for userID
func (p *Postgres) FindActiveTokens(ctx context.Context, userID string) ([]models.APIToken, error) {
	query := `SELECT ` + tokenColumns + `
		FROM api_tokens
		WHERE user_id = $1 AND is_active
		ORDER BY provider`

	rows, err := p.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query api tokens: %w", err)
	}
	return collectTokens(rows)
}

// ListTokens retrieves all tokens, active or not
func (p *Postgres) ListTokens(ctx context.Context, userID string) ([]models.APIToken, error) {
	query := `SELECT ` + tokenColumns + `
		FROM api_tokens
		WHERE $1 = '' OR user_id = $1
		ORDER BY user_id, provider`

	rows, err := p.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query api tokens: %w", err)
	}
	return collectTokens(rows)
}

// UpsertToken inserts the token or replaces the key of the existing
// (user_id, provider) row, reactivating it
func (p *Postgres) UpsertToken(ctx context.Context, token *models.APIToken) (*models.APIToken, error) {
	query := `
		INSERT INTO api_tokens (id, user_id, provider, api_key, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			api_key = EXCLUDED.api_key,
			is_active = TRUE,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + tokenColumns

	t, err := scanToken(p.pool.QueryRow(ctx, query,
		token.ID,
		token.UserID,
		string(token.Provider),
		token.APIKey,
		token.CreatedAt,
		token.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert api token: %w", err)
	}
	return t, nil
}

// DeactivateToken marks the token inactive, keeping the row
func (p *Postgres) DeactivateToken(ctx context.Context, userID string, provider models.Provider) (bool, error) {
	query := `
		UPDATE api_tokens
		SET is_active = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND provider = $2`

	result, err := p.pool.Exec(ctx, query, userID, string(provider))
	if err != nil {
		return false, fmt.Errorf("failed to deactivate api token: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
