package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tender-alerts/internal/config"
	"tender-alerts/internal/logger"
	"tender-alerts/internal/matcher"
	"tender-alerts/internal/notify"
	"tender-alerts/internal/processor"
	"tender-alerts/internal/scheduler"
	"tender-alerts/internal/storage/postgres"
	"tender-alerts/internal/storage/redis"
	"tender-alerts/internal/watcher"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting tender alert engine",
		zap.String("log_level", cfg.LogLevel),
		zap.String("timezone", cfg.Timezone),
		zap.Strings("daily_buckets", cfg.DailyTimeBuckets),
	)

	log.Info("connecting to PostgreSQL...")
	store, err := postgres.New(cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer store.Close()

	log.Info("connecting to Redis...")
	cache, err := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	if err != nil {
		log.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer cache.Close()

	sender, err := notify.NewSender(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize mail transport", zap.Error(err))
	}

	engine := matcher.NewEngine(log)
	renderer := notify.NewRenderer(cfg.BaseURL)

	proc := processor.New(
		store,
		store,
		store,
		engine,
		renderer,
		sender,
		cache,
		processor.Options{
			DispatchDelay:   cfg.DispatchDelay,
			RunWarnDuration: cfg.RunWarnDuration,
			RetentionDays:   cfg.RetentionDays,
			MaxSendsPerMin:  cfg.MaxSendsPerMin,
		},
		log,
	)

	sched := scheduler.New(cfg.Location(), log)
	if err := registerJobs(sched, proc, cfg, log); err != nil {
		log.Fatal("failed to register scheduled jobs", zap.Error(err))
	}
	sched.StartAll()
	defer sched.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("starting tender watcher...")
	watch := watcher.New(store, proc, cache, cfg.WatchInterval, log)

	log.Info("engine is running...")
	log.Info("press Ctrl+C to stop")

	watch.Start(ctx)

	log.Info("shutting down gracefully...")
	sched.StopAll()

	log.Info("engine stopped")
}

func registerJobs(sched *scheduler.Scheduler, proc *processor.Processor, cfg *config.Config, log *zap.Logger) error {
	for _, bucket := range cfg.DailyTimeBuckets {
		bucket := bucket

		spec, err := bucketCronSpec(bucket)
		if err != nil {
			return err
		}

		err = sched.Register("daily-"+bucket, spec, func(ctx context.Context) {
			if _, err := proc.RunDaily(ctx, bucket); err != nil {
				log.Error("daily run failed",
					zap.String("bucket", bucket),
					zap.Error(err),
				)
			}
		})
		if err != nil {
			return err
		}
	}

	err := sched.Register("weekly", cfg.WeeklySpec, func(ctx context.Context) {
		if _, err := proc.RunWeekly(ctx); err != nil {
			log.Error("weekly run failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	return sched.Register("retention-cleanup", cfg.RetentionSpec, func(ctx context.Context) {
		if err := proc.RunRetention(ctx); err != nil {
			log.Error("retention cleanup failed", zap.Error(err))
		}
	})
}

// bucketCronSpec turns a "HH:MM" wall-clock bucket into a daily cron spec.
func bucketCronSpec(bucket string) (string, error) {
	t, err := time.Parse("15:04", bucket)
	if err != nil {
		return "", fmt.Errorf("invalid time bucket %q: %w", bucket, err)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}
