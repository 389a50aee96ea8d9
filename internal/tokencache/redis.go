package tokencache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ueebee/stockura-scheduler/internal/crypto"
	"github.com/ueebee/stockura-scheduler/internal/model"
)

// RedisStore is a Redis-backed Store, selected by the "redis://"
// token_cache_url scheme. refresh_token is encrypted at rest with
// internal/crypto when an encryption key is configured; id_token is
// stored alongside in the clear since it is already short-lived.
type RedisStore struct {
	client        *redis.Client
	keyPrefix     string
	encryptionKey string
}

func NewRedisStore(client *redis.Client, keyPrefix, encryptionKey string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "stockura:tokencache"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, encryptionKey: encryptionKey}
}

type storedRecord struct {
	Key              string    `json:"key"`
	EncRefreshToken  string    `json:"refresh_token"`
	IDToken          string    `json:"id_token"`
	IDTokenExpiry    time.Time `json:"id_token_expiry"`
}

func (s *RedisStore) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, key)
}

func (s *RedisStore) Get(ctx context.Context, key string) (*model.TokenRecord, error) {
	raw, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tokencache: redis get: %w", err)
	}

	var stored storedRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("tokencache: decode record: %w", err)
	}
	refreshToken, err := crypto.Decrypt(stored.EncRefreshToken, s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("tokencache: decrypt refresh token: %w", err)
	}
	return &model.TokenRecord{
		Key:           stored.Key,
		RefreshToken:  refreshToken,
		IDToken:       stored.IDToken,
		IDTokenExpiry: stored.IDTokenExpiry,
	}, nil
}

func (s *RedisStore) Put(ctx context.Context, rec model.TokenRecord) error {
	encRefresh, err := crypto.Encrypt(rec.RefreshToken, s.encryptionKey)
	if err != nil {
		return fmt.Errorf("tokencache: encrypt refresh token: %w", err)
	}
	stored := storedRecord{
		Key:             rec.Key,
		EncRefreshToken: encRefresh,
		IDToken:         rec.IDToken,
		IDTokenExpiry:   rec.IDTokenExpiry,
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("tokencache: encode record: %w", err)
	}

	ttl := time.Until(rec.IDTokenExpiry)
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := s.client.Set(ctx, s.redisKey(rec.Key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("tokencache: redis set: %w", err)
	}
	return nil
}
