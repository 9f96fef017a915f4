// Package redis provides Redis client initialization and health checking for
// the streaming subsystem's distributed broker.
//
// It wraps the go-redis client with URL validation, exponential backoff retry
// logic and a ping-based connectivity check, so a returned client is known to
// be usable. Both redis:// and rediss:// (TLS) URL schemes are supported.
//
// Configuration is handled through the Config struct with environment variable
// mapping:
//
//	type Config struct {
//		ConnectionURL  string        `env:"REDIS_URL,required" envDefault:"redis://localhost:6379/0"`
//		RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
//		RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
//		ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
//	}
//
// Usage:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal("failed to connect to redis:", err)
//	}
//	defer client.Close()
//
//	broker := sse.NewRedisBroker(client)
//
// The Healthcheck function returns a probe suitable for HTTP health endpoints:
//
//	check := redis.Healthcheck(client)
//	if err := check(ctx); err != nil {
//		// backend unreachable
//	}
//
// Errors are exposed as sentinel values (ErrEmptyConnectionURL,
// ErrFailedToParseRedisConnString, ErrRedisNotReady, ErrHealthcheckFailed)
// and can be checked with errors.Is.
package redis
