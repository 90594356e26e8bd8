package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seu-repo/energy-core/internal/ports"
)

// ErrMiss is returned by Get when the key is absent or expired
var ErrMiss = errors.New("cache miss")

// Keys shared by the services
const (
	KeySettings       = "settings:all"
	KeyPriceWindows   = "pricing:windows"
	KeyDispatchStatus = "dispatch:status"
)

func encode(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal value: %w", err)
		}
		return string(data), nil
	}
}

// GetJSON decodes a cached JSON document into v. It reports false on a miss,
// on a cache error or when the cached value no longer decodes.
func GetJSON(ctx context.Context, c ports.Cache, key string, v interface{}) bool {
	if c == nil {
		return false
	}
	raw, err := c.Get(ctx, key)
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(raw), v) == nil
}

// SetJSON stores v as JSON. A nil cache is a no-op.
func SetJSON(ctx context.Context, c ports.Cache, key string, v interface{}, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	return c.Set(ctx, key, v, ttl)
}
