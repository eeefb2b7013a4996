// Copyright (c) 2026 Ecodam. All rights reserved.

package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ecodam/ecodam-api/internal/platform/apperr"
	"github.com/ecodam/ecodam-api/internal/platform/constants"
	"github.com/ecodam/ecodam-api/internal/platform/sec"
)

// # Token Repositories
//
// Reset and verification tokens live in Redis with a TTL. Keys are the
// SHA-256 digest of the token so a Redis dump cannot be replayed; values
// are the subject uid.

// ResetTokenRepository stores pending password-reset tokens.
type ResetTokenRepository interface {
	Set(ctx context.Context, token, userID string, ttl time.Duration) error
	Get(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

// VerificationTokenRepository stores pending email-verification tokens.
type VerificationTokenRepository interface {
	Set(ctx context.Context, token, userID string, ttl time.Duration) error
	Get(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

// RedisResetTokenRepository implements [ResetTokenRepository] using Redis.
type RedisResetTokenRepository struct {
	client *redis.Client
}

// NewResetTokenRepository creates a new Redis-backed [ResetTokenRepository].
func NewResetTokenRepository(client *redis.Client) *RedisResetTokenRepository {
	return &RedisResetTokenRepository{client: client}
}

// Set stores a reset token with its associated userID and TTL.
func (repository *RedisResetTokenRepository) Set(ctx context.Context, token, userID string, ttl time.Duration) error {
	key := constants.RedisPrefixResetToken + sec.HashToken(token)
	if err := repository.client.Set(ctx, key, userID, ttl).Err(); err != nil {
		return fmt.Errorf("redis_reset_token_set_failed: %w", err)
	}
	return nil
}

// Get retrieves the userID for a given token. Returns apperr.NotFound if
// the token is absent or expired.
func (repository *RedisResetTokenRepository) Get(ctx context.Context, token string) (string, error) {
	key := constants.RedisPrefixResetToken + sec.HashToken(token)
	userID, err := repository.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperr.NotFound("Reset token is invalid or expired")
		}
		return "", fmt.Errorf("redis_reset_token_get_failed: %w", err)
	}
	return userID, nil
}

// Delete removes the token from Redis.
func (repository *RedisResetTokenRepository) Delete(ctx context.Context, token string) error {
	key := constants.RedisPrefixResetToken + sec.HashToken(token)
	if err := repository.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis_reset_token_delete_failed: %w", err)
	}
	return nil
}

// RedisVerificationTokenRepository implements [VerificationTokenRepository] using Redis.
type RedisVerificationTokenRepository struct {
	client *redis.Client
}

// NewVerificationTokenRepository creates a new Redis-backed [VerificationTokenRepository].
func NewVerificationTokenRepository(client *redis.Client) *RedisVerificationTokenRepository {
	return &RedisVerificationTokenRepository{client: client}
}

// Set stores a verification token with its associated userID and TTL.
func (repository *RedisVerificationTokenRepository) Set(ctx context.Context, token, userID string, ttl time.Duration) error {
	key := constants.RedisPrefixVerifyToken + sec.HashToken(token)
	if err := repository.client.Set(ctx, key, userID, ttl).Err(); err != nil {
		return fmt.Errorf("redis_verify_token_set_failed: %w", err)
	}
	return nil
}

// Get retrieves the userID for a given token. Returns apperr.NotFound if
// the token is absent or expired.
func (repository *RedisVerificationTokenRepository) Get(ctx context.Context, token string) (string, error) {
	key := constants.RedisPrefixVerifyToken + sec.HashToken(token)
	userID, err := repository.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperr.NotFound("Verification token is invalid or expired")
		}
		return "", fmt.Errorf("redis_verify_token_get_failed: %w", err)
	}
	return userID, nil
}

// Delete removes the token from Redis.
func (repository *RedisVerificationTokenRepository) Delete(ctx context.Context, token string) error {
	key := constants.RedisPrefixVerifyToken + sec.HashToken(token)
	if err := repository.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis_verify_token_delete_failed: %w", err)
	}
	return nil
}
