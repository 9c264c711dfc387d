package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisOptions configures the Redis connection used by RedisBackend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// ConnectTimeout is the total time allowed for connection attempts.
	ConnectTimeout time.Duration
	// RetryInterval is the initial wait between attempts; it doubles up to MaxWait.
	RetryInterval time.Duration
	MaxWait       time.Duration
	PingTimeout   time.Duration
}

func (o *RedisOptions) withDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = time.Second
	}
	if o.MaxWait <= 0 {
		o.MaxWait = 10 * time.Second
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 2 * time.Second
	}
}

// ConnectRedis pings Redis until it answers or ConnectTimeout elapses,
// backing off exponentially between attempts.
func ConnectRedis(ctx context.Context, opts RedisOptions, logger logrus.FieldLogger) (*redis.Client, error) {
	opts.withDefaults()
	log := logger.WithFields(logrus.Fields{"component": "redis", "addr": opts.Addr})

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	log.WithField("timeout", opts.ConnectTimeout.String()).Info("Connecting to redis")
	start := time.Now()
	wait := opts.RetryInterval

	for attempt := 1; ; attempt++ {
		pingCtx, pingCancel := context.WithTimeout(ctx, opts.PingTimeout)
		err := client.Ping(pingCtx).Err()
		pingCancel()

		if err == nil {
			entry := log.WithField("attempts", attempt)
			if attempt > 1 {
				entry.WithField("elapsed", time.Since(start).String()).Warn("Connected to redis after retry")
			} else {
				entry.Info("Connected to redis")
			}
			return client, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = client.Close()
			log.WithError(err).WithField("attempts", attempt).Error("Redis unavailable, giving up")
			return nil, fmt.Errorf("redis unavailable at %s after %d attempts: %w", opts.Addr, attempt, err)
		case <-timer.C:
			log.WithError(err).WithFields(logrus.Fields{
				"attempt":       attempt,
				"next_retry_in": wait.String(),
			}).Warn("Redis connection failed, retrying")
			wait = min(wait*2, opts.MaxWait)
		}
	}
}
