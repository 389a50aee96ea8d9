package tokencache

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// OpenStore selects a Store implementation from token_cache_url's scheme:
// "memory://" (default, in-process LRU) or "redis://...".
func OpenStore(url, encryptionKey string) (Store, error) {
	switch {
	case url == "" || strings.HasPrefix(url, "memory://"):
		return NewMemoryStore(256)
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("tokencache: parse redis url: %w", err)
		}
		return NewRedisStore(redis.NewClient(opts), "stockura:tokencache", encryptionKey), nil
	default:
		return nil, fmt.Errorf("tokencache: unsupported token_cache_url scheme: %q", url)
	}
}
