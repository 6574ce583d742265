// cmd/crowd-monitor/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	awsnotify "crowd-monitor/internal/common/aws"
	"crowd-monitor/internal/common/config"
	"crowd-monitor/internal/common/database"
	"crowd-monitor/internal/common/logger"
	"crowd-monitor/internal/common/observability"
	"crowd-monitor/internal/common/scheduler"
	"crowd-monitor/internal/registry"
	"crowd-monitor/internal/server"

	querystore "crowd-monitor/internal/workers/data-access/query-store"
	searchposts "crowd-monitor/internal/workers/data-access/search-posts"
	fetchposts "crowd-monitor/internal/workers/posts/fetch-posts"
	scorepost "crowd-monitor/internal/workers/posts/score-post"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	bootLog := logger.New("info", "console", "stdout")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting crowd monitor...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Query store (PostgreSQL or SQLite) ---
	var sqlClient *database.SQLClient
	err = retryWithBackoff(func() error {
		var err error
		sqlClient, err = database.Open(cfg.Database)
		if err != nil {
			return err
		}
		return sqlClient.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "SQL database connection")
	if err != nil {
		zapLog.Fatal("database failed after retries", zap.Error(err))
	}
	defer sqlClient.Close()
	zapLog.Info("SQL database connected", zap.String("driver", sqlClient.Driver))

	sqlStore, err := querystore.NewSQLStore(querystore.ConfigFrom(cfg.Database), sqlClient.DB, log)
	if err != nil {
		zapLog.Fatal("query store init failed", zap.Error(err))
	}
	if err := sqlStore.Migrate(ctx); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}
	var store querystore.Store = sqlStore

	// --- Redis post cache (optional) ---
	if cfg.Database.Redis.Enabled {
		var redis *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		store = querystore.NewCachedStore(sqlStore, redis.Client, redis.TTL, log)
		zapLog.Info("Redis cache enabled", zap.Duration("ttl", redis.TTL))
	}

	// --- Elasticsearch content source ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch, nil)
		if err != nil {
			return err
		}
		return esClient.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	source := searchposts.NewSource(searchposts.ConfigFrom(cfg.Database.Elasticsearch), esClient.Client, log)
	if err := source.EnsureIndex(ctx); err != nil {
		zapLog.Fatal("post index unavailable", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected", zap.String("index", esClient.Index))

	// --- Lifecycle notifications ---
	var notifier registry.Notifier = awsnotify.NopNotifier{}
	if sns := cfg.Notifications.SNS; sns.Enabled {
		client, err := awsnotify.NewSNSClient(ctx, sns.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		notifier = awsnotify.NewSNSNotifier(client, sns.TopicARN)
		zapLog.Info("SNS lifecycle notifications enabled", zap.String("topicArn", sns.TopicARN))
	}

	// --- Pipeline, scheduler, registry ---
	scorer := scorepost.NewHandler(scorepost.ConfigFrom(cfg.Scoring))
	pipeline := fetchposts.NewHandler(fetchposts.LoadConfig(), source, scorer, store, obs, log)

	location, err := cfg.Scheduler.Location()
	if err != nil {
		zapLog.Fatal("invalid scheduler timezone", zap.Error(err))
	}
	sched := scheduler.New(pipeline.Execute, log, scheduler.Options{
		TimeoutQueries: cfg.Scheduler.TimeoutQueries,
		TickTimeout:    config.GetDuration(cfg.Scheduler.TickTimeout),
		Location:       location,
	})

	reg := registry.New(store, sched, notifier, location, log)
	sched.SetExpiryHandler(reg.RemoveExpired)

	if err := reg.Load(ctx); err != nil {
		zapLog.Fatal("initial query load failed", zap.Error(err))
	}
	sched.Start()

	// --- HTTP surface ---
	srv := server.New(&server.Config{
		Address:      cfg.Server.Address,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
		AppName:      cfg.App.Name,
		AppVersion:   cfg.App.Version,
	}, reg, store, log)

	go func() {
		if err := srv.Start(); err != nil {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping http server", zap.Error(err))
	}
	sched.Stop(shutdownCtx)

	zapLog.Info("Crowd monitor stopped gracefully")
}
