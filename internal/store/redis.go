package store

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"staffattend/internal/logger"
)

// Redis holds the client shared by the job queue and health checks.
type Redis struct {
	Client *redis.Client
}

// NewRedis accepts either host:port or a redis:// URL carrying credentials
// and a database number. An unparsable URL is used as a plain address.
func NewRedis(addr string) *Redis {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			logger.Warn().Err(err).Msg("invalid redis url, using it as an address")
		} else {
			opts = parsed
		}
	}
	opts.DialTimeout = 2 * time.Second
	// BRPOP sets its own deadline; this bounds every other command.
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second
	return &Redis{Client: redis.NewClient(opts)}
}

// Healthy reports whether redis answers a PING within two seconds.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.Client.Ping(ctx).Err() == nil
}

func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
