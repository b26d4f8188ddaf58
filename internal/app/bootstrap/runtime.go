package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/salon-scheduler/internal/config"
	"github.com/wolfman30/salon-scheduler/internal/phorest"
	"github.com/wolfman30/salon-scheduler/internal/possync"
	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPOSClient returns the Phorest adapter, or nil when the POS is not
// configured and every tenant stays local-only.
func BuildPOSClient(cfg *appconfig.Config, logger *logging.Logger) possync.POSClient {
	if cfg == nil || !cfg.POSConfigured() {
		return nil
	}
	client := phorest.NewClient(cfg.PhorestBaseURL, cfg.PhorestBusinessID, cfg.PhorestUsername, cfg.PhorestPassword, logger)
	return phorest.NewAdapter(client)
}

// BuildGate wires the sync gate around the tenant settings in Redis.
// Without Redis the gate has no settings source and keeps everything local.
func BuildGate(cfg *appconfig.Config, redisClient *redis.Client, stores *Stores, logger *logging.Logger) *possync.Gate {
	var settings possync.SettingsSource
	if redisClient != nil {
		settings = possync.NewSettingsStore(redisClient)
	}
	gate := possync.NewGate(settings, BuildPOSClient(cfg, logger), logger).
		WithTimeout(cfg.SyncTimeout).
		WithRateLimit(cfg.SyncRatePerSecond, cfg.SyncRateBurst)
	if redisClient != nil {
		gate.WithStaffMapper(possync.NewStaffMap(redisClient))
	}
	if stores != nil {
		gate.WithExternalIDWriter(stores.ExternalIDs)
		if stores.Outbox != nil {
			gate.WithFailureRecorder(possync.NewOutboxRecorder(stores.Outbox))
		}
		if stores.Audit != nil {
			gate.WithFailureRecorder(stores.Audit)
		}
	}
	return gate
}
