// Package tokencache implements spec §4.9's Token Cache: get_id_token
// returns a valid bearer token for a key, transparently refreshing from a
// stored refresh_token (or exchanging credentials for a fresh one) when
// the cached id_token is within its safety margin of expiry. Concurrent
// callers for the same key coalesce onto a single in-flight refresh,
// grounded on the teacher's mutex-guarded state machines (e.g.
// cron.Service) rather than golang.org/x/sync/singleflight, which the
// teacher never imports.
package tokencache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ueebee/stockura-scheduler/internal/model"
)

// SafetyMargin is subtracted from a cached id_token's expiry: a token is
// treated as needing refresh this long before it actually expires.
const SafetyMargin = 60 * time.Second

// Store is the pluggable backing store for TokenRecord, keyed by an
// arbitrary caller-chosen string (typically the external API identity).
type Store interface {
	Get(ctx context.Context, key string) (*model.TokenRecord, error)
	Put(ctx context.Context, rec model.TokenRecord) error
}

// ErrNotFound is returned by Store.Get when no record exists for key.
var ErrNotFound = fmt.Errorf("tokencache: not found")

// Exchanger performs the out-of-band calls needed to populate a
// TokenRecord: refreshing an id_token from a refresh_token, and exchanging
// long-lived credentials for a fresh refresh_token when none is cached.
type Exchanger interface {
	RefreshIDToken(ctx context.Context, refreshToken string) (idToken string, expiry time.Time, err error)
	ExchangeCredentials(ctx context.Context) (refreshToken string, err error)
}

// Cache is the concurrency-safe facade: GetIDToken coalesces concurrent
// refreshes for the same key through a mutex-guarded map of in-flight
// refresh calls, one per key, rather than letting every caller hit the
// Exchanger independently.
type Cache struct {
	store         Store
	exchanger     Exchanger
	encryptionKey string

	mu      sync.Mutex
	inFlight map[string]*refreshCall
}

type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

func New(store Store, exchanger Exchanger, encryptionKey string) *Cache {
	return &Cache{
		store:         store,
		exchanger:     exchanger,
		encryptionKey: encryptionKey,
		inFlight:      make(map[string]*refreshCall),
	}
}

// GetIDToken returns a valid bearer token for key, refreshing or exchanging
// as needed. Concurrent calls for the same key share one refresh.
func (c *Cache) GetIDToken(ctx context.Context, key string) (string, error) {
	rec, err := c.store.Get(ctx, key)
	if err != nil && err != ErrNotFound {
		return "", fmt.Errorf("tokencache: get %q: %w", key, err)
	}
	if rec != nil && rec.IDToken != "" && time.Now().Add(SafetyMargin).Before(rec.IDTokenExpiry) {
		return rec.IDToken, nil
	}

	return c.coalescedRefresh(ctx, key, rec)
}

// coalescedRefresh ensures at most one refresh per key is in flight;
// latecomers wait on the same call's result instead of duplicating work.
func (c *Cache) coalescedRefresh(ctx context.Context, key string, rec *model.TokenRecord) (string, error) {
	c.mu.Lock()
	if call, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.token, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	c.inFlight[key] = call
	c.mu.Unlock()

	call.token, call.err = c.refresh(ctx, key, rec)
	close(call.done)

	c.mu.Lock()
	delete(c.inFlight, key)
	c.mu.Unlock()

	return call.token, call.err
}

func (c *Cache) refresh(ctx context.Context, key string, rec *model.TokenRecord) (string, error) {
	refreshToken := ""
	if rec != nil {
		refreshToken = rec.RefreshToken
	}
	if refreshToken == "" {
		token, err := c.exchanger.ExchangeCredentials(ctx)
		if err != nil {
			return "", fmt.Errorf("tokencache: exchange credentials for %q: %w", key, err)
		}
		refreshToken = token
	}

	idToken, expiry, err := c.exchanger.RefreshIDToken(ctx, refreshToken)
	if err != nil {
		return "", fmt.Errorf("tokencache: refresh id token for %q: %w", key, err)
	}

	newRec := model.TokenRecord{
		Key:           key,
		RefreshToken:  refreshToken,
		IDToken:       idToken,
		IDTokenExpiry: expiry,
	}
	if err := c.store.Put(ctx, newRec); err != nil {
		return "", fmt.Errorf("tokencache: put %q: %w", key, err)
	}
	return idToken, nil
}
