package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Database
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Mail transport
	SendGridAPIKey string
	EmailFrom      string
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPassword   string

	// Notification content
	BaseURL string

	// Scheduling
	Timezone         string
	DailyTimeBuckets []string
	WeeklySpec       string
	RetentionSpec    string

	// Engine settings
	WatchInterval   time.Duration
	DispatchDelay   time.Duration
	RunWarnDuration time.Duration
	RetentionDays   int
	MaxSendsPerMin  int64

	// Logging
	LogLevel string
}

func Load() (*Config, error) {
	cfg := &Config{
		// Defaults
		RedisDB:          0,
		SMTPPort:         587,
		BaseURL:          "https://tenders.example.com",
		Timezone:         "UTC",
		DailyTimeBuckets: []string{"09:00", "13:00", "17:00"},
		WeeklySpec:       "0 8 * * 1",
		RetentionSpec:    "30 3 * * *",
		WatchInterval:    5 * time.Minute,
		DispatchDelay:    500 * time.Millisecond,
		RunWarnDuration:  10 * time.Minute,
		RetentionDays:    90,
		MaxSendsPerMin:   60,
		LogLevel:         "info",
	}

	cfg.PostgresDSN = os.Getenv("POSTGRES_DSN")
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}

	cfg.EmailFrom = os.Getenv("EMAIL_FROM")
	if cfg.EmailFrom == "" {
		return nil, fmt.Errorf("EMAIL_FROM is required")
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	} else {
		cfg.RedisAddr = "localhost:6379"
	}

	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if redisDB := os.Getenv("REDIS_DB"); redisDB != "" {
		db, err := strconv.Atoi(redisDB)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = db
	}

	cfg.SendGridAPIKey = os.Getenv("SENDGRID_API_KEY")
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")

	if port := os.Getenv("SMTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
		}
		cfg.SMTPPort = p
	}

	if baseURL := os.Getenv("BASE_URL"); baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}

	if tz := os.Getenv("TIMEZONE"); tz != "" {
		cfg.Timezone = tz
	}

	if buckets := os.Getenv("DAILY_TIME_BUCKETS"); buckets != "" {
		cfg.DailyTimeBuckets = strings.Split(buckets, ",")
		for i := range cfg.DailyTimeBuckets {
			cfg.DailyTimeBuckets[i] = strings.TrimSpace(cfg.DailyTimeBuckets[i])
		}
	}

	if spec := os.Getenv("WEEKLY_CRON"); spec != "" {
		cfg.WeeklySpec = spec
	}

	if spec := os.Getenv("RETENTION_CRON"); spec != "" {
		cfg.RetentionSpec = spec
	}

	if interval := os.Getenv("WATCH_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid WATCH_INTERVAL: %w", err)
		}
		cfg.WatchInterval = d
	}

	if delay := os.Getenv("DISPATCH_DELAY"); delay != "" {
		d, err := time.ParseDuration(delay)
		if err != nil {
			return nil, fmt.Errorf("invalid DISPATCH_DELAY: %w", err)
		}
		cfg.DispatchDelay = d
	}

	if warn := os.Getenv("RUN_WARN_DURATION"); warn != "" {
		d, err := time.ParseDuration(warn)
		if err != nil {
			return nil, fmt.Errorf("invalid RUN_WARN_DURATION: %w", err)
		}
		cfg.RunWarnDuration = d
	}

	if days := os.Getenv("RETENTION_DAYS"); days != "" {
		n, err := strconv.Atoi(days)
		if err != nil {
			return nil, fmt.Errorf("invalid RETENTION_DAYS: %w", err)
		}
		cfg.RetentionDays = n
	}

	if max := os.Getenv("MAX_SENDS_PER_MINUTE"); max != "" {
		n, err := strconv.ParseInt(max, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_SENDS_PER_MINUTE: %w", err)
		}
		cfg.MaxSendsPerMin = n
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("postgres DSN is empty")
	}

	if c.EmailFrom == "" {
		return fmt.Errorf("sender address is empty")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	if len(c.DailyTimeBuckets) == 0 {
		return fmt.Errorf("at least one daily time bucket is required")
	}

	for _, bucket := range c.DailyTimeBuckets {
		if _, err := time.Parse("15:04", bucket); err != nil {
			return fmt.Errorf("invalid daily time bucket %q: %w", bucket, err)
		}
	}

	if c.WatchInterval < 10*time.Second {
		return fmt.Errorf("watch interval too small: %v", c.WatchInterval)
	}

	if c.DispatchDelay < 0 {
		return fmt.Errorf("dispatch delay must not be negative: %v", c.DispatchDelay)
	}

	if c.RetentionDays < 1 {
		return fmt.Errorf("retention days must be at least 1")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	return nil
}

// Location resolves the configured timezone. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
