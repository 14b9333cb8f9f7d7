// Package cache opens the redis connection that carries the notification
// stream between the webhook relay and the stream consumers.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"thumbnailer/internal/config"
)

var ErrStreamConfig = errors.New("redis stream, group and consumer are required")

const pingTimeout = 5 * time.Second

// NewStreamClient connects to redis for the stream named in cfg. The
// connection is labelled with the consumer name so CLIENT LIST shows which
// worker holds it.
func NewStreamClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if err := checkStream(cfg); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: clientName(cfg.Consumer),
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func checkStream(cfg config.RedisConfig) error {
	var missing []string
	for name, value := range map[string]string{"stream": cfg.Stream, "group": cfg.Group, "consumer": cfg.Consumer} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrStreamConfig, strings.Join(missing, ", "))
	}
	return nil
}

// clientName turns a consumer name into a valid CLIENT SETNAME argument,
// which may not contain spaces.
func clientName(consumer string) string {
	return "thumbnailer-" + strings.Join(strings.Fields(consumer), "_")
}
