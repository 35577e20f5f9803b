package repository

import (
	"context"
	"fmt"
	"time"

	"chat-keystore/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisUsersKey = "apitokens:users"
)

func redisTokenKey(userID string, provider models.Provider) string {
	return fmt.Sprintf("apitoken:%s:%s", userID, provider)
}

// redisUserKey never equals redisUsersKey: the ":user:" segment differs from
// "users" at its last byte
func redisUserKey(userID string) string {
	return "apitokens:user:" + userID
}

// Redis stores each api token as a hash, indexed by a per-user provider set
type Redis struct {
	client *redis.Client
}

// NewRedis connects to Redis from a redis:// or rediss:// URL
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	opt.ReadTimeout = 5 * time.Second
	opt.WriteTimeout = 5 * time.Second

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Redis{client: client}, nil
}

func dialRedis(ctx context.Context, url string) (Backend, error) {
	return NewRedis(ctx, url)
}

func parseRedisToken(fields map[string]string) (*models.APIToken, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	id, err := uuid.Parse(fields["id"])
	if err != nil {
		return nil, fmt.Errorf("invalid token id %q: %w", fields["id"], err)
	}
	created, err := time.Parse(time.RFC3339Nano, fields["createdAt"])
	if err != nil {
		return nil, fmt.Errorf("invalid createdAt: %w", err)
	}
	updated, err := time.Parse(time.RFC3339Nano, fields["updatedAt"])
	if err != nil {
		return nil, fmt.Errorf("invalid updatedAt: %w", err)
	}
	return &models.APIToken{
		ID:        id,
		UserID:    fields["userId"],
		Provider:  models.Provider(fields["provider"]),
		APIKey:    fields["apiKey"],
		IsActive:  fields["isActive"] == "1",
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

func (r *Redis) FindToken(ctx context.Context, userID string, provider models.Provider, activeOnly bool) (*models.APIToken, error) {
	fields, err := r.client.HGetAll(ctx, redisTokenKey(userID, provider)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	t, err := parseRedisToken(fields)
	if err != nil || t == nil {
		return nil, err
	}
	if activeOnly && !t.IsActive {
		return nil, nil
	}
	return t, nil
}

func (r *Redis) userTokens(ctx context.Context, userID string) ([]models.APIToken, error) {
	providers, err := r.client.SMembers(ctx, redisUserKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis members error: %w", err)
	}

	cmds, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range providers {
			pipe.HGetAll(ctx, redisTokenKey(userID, models.Provider(p)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis pipeline error: %w", err)
	}

	var tokens []models.APIToken
	for _, cmd := range cmds {
		t, err := parseRedisToken(cmd.(*redis.MapStringStringCmd).Val())
		if err != nil {
			return nil, err
		}
		if t != nil {
			tokens = append(tokens, *t)
		}
	}
	return tokens, nil
}

func (r *Redis) FindActiveTokens(ctx context.Context, userID string) ([]models.APIToken, error) {
	all, err := r.userTokens(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, t := range all {
		if t.IsActive {
			active = append(active, t)
		}
	}
	return active, nil
}

func (r *Redis) ListTokens(ctx context.Context, userID string) ([]models.APIToken, error) {
	if userID != "" {
		return r.userTokens(ctx, userID)
	}
	users, err := r.client.SMembers(ctx, redisUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis members error: %w", err)
	}
	var tokens []models.APIToken
	for _, u := range users {
		ts, err := r.userTokens(ctx, u)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, ts...)
	}
	return tokens, nil
}

func (r *Redis) UpsertToken(ctx context.Context, token *models.APIToken) (*models.APIToken, error) {
	key := redisTokenKey(token.UserID, token.Provider)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "id", token.ID.String())
		pipe.HSetNX(ctx, key, "createdAt", token.CreatedAt.Format(time.RFC3339Nano))
		pipe.HSet(ctx, key,
			"userId", token.UserID,
			"provider", string(token.Provider),
			"apiKey", token.APIKey,
			"isActive", "1",
			"updatedAt", token.UpdatedAt.Format(time.RFC3339Nano),
		)
		pipe.SAdd(ctx, redisUserKey(token.UserID), string(token.Provider))
		pipe.SAdd(ctx, redisUsersKey, token.UserID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis set error: %w", err)
	}
	return r.FindToken(ctx, token.UserID, token.Provider, false)
}

func (r *Redis) DeactivateToken(ctx context.Context, userID string, provider models.Provider) (bool, error) {
	key := redisTokenKey(userID, provider)
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists error: %w", err)
	}
	if exists == 0 {
		return false, nil
	}
	err = r.client.HSet(ctx, key,
		"isActive", "0",
		"updatedAt", time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return false, fmt.Errorf("redis set error: %w", err)
	}
	return true, nil
}

// Migrate is a no-op on up; down removes every token key
func (r *Redis) Migrate(ctx context.Context, up bool) error {
	if up {
		return nil
	}
	users, err := r.client.SMembers(ctx, redisUsersKey).Result()
	if err != nil {
		return fmt.Errorf("redis members error: %w", err)
	}
	for _, u := range users {
		providers, err := r.client.SMembers(ctx, redisUserKey(u)).Result()
		if err != nil {
			return fmt.Errorf("redis members error: %w", err)
		}
		keys := []string{redisUserKey(u)}
		for _, p := range providers {
			keys = append(keys, redisTokenKey(u, models.Provider(p)))
		}
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis del error: %w", err)
		}
	}
	return r.client.Del(ctx, redisUsersKey).Err()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close(ctx context.Context) error {
	return r.client.Close()
}
