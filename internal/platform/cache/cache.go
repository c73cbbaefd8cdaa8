// Package cache connects the Dragonfly/Redis instance that holds persisted
// sessions and summary token budgets.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout = 5 * time.Second
	ioTimeout   = 3 * time.Second
)

// Cache is a Redis client whose keys share a namespace.
type Cache struct {
	Client *redis.Client
	prefix string
}

// Options parses a Redis connection URL and applies the client timeouts.
func Options(url string) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = ioTimeout
	opts.WriteTimeout = ioTimeout
	return opts, nil
}

// Open connects to url and checks the connection. Keys built with Key start
// with prefix.
func Open(ctx context.Context, url, prefix string) (*Cache, error) {
	opts, err := Options(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}
	return newCache(client, prefix), nil
}

func newCache(client *redis.Client, prefix string) *Cache {
	return &Cache{Client: client, prefix: strings.TrimSuffix(prefix, ":")}
}

// Key joins parts under the cache's namespace with colons.
func (c *Cache) Key(parts ...string) string {
	if c.prefix == "" {
		return strings.Join(parts, ":")
	}
	return c.prefix + ":" + strings.Join(parts, ":")
}

// Close shuts down the client.
func (c *Cache) Close() error {
	return c.Client.Close()
}

// HealthCheck pings the server.
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
