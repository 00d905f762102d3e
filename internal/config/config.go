package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Storage backend for queue, backlog and counters: redis or postgres
	StoreBackend string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Engine
	AccountID          string
	VideoSupported     bool
	ExcludedActivities []string
	BackgroundWorkers  int
	SurfaceAutoDismiss time.Duration

	// Media fetching
	FetchTimeout           time.Duration
	FetchCacheSize         int
	BreakerMaxFailures     int
	BreakerRecoveryTimeout time.Duration

	// Global frequency caps, 0 means unlimited
	MaxPerSession int
	MaxPerDay     int

	// Analytics: log, sqs, sns or webhook
	AnalyticsSink  string
	WebhookURL     string
	WebhookTimeout int // Timeout for webhook requests in seconds

	// AWS Services
	AWSRegion            string
	AWSEndpoint          string // LocalStack
	SQSRegion            string
	SQSAnalyticsQueueURL string
	SQSInAppFeedURL      string
	SNSRegion            string
	SNSTopicARN          string
	FeedPollInterval     time.Duration

	// Debug API requests per minute per account
	APIRateLimit int
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		StoreBackend: "redis",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "beacon",
		DBPassword: "",
		DBName:     "beacon",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		AccountID:         "sandbox",
		VideoSupported:    true,
		BackgroundWorkers: 4,

		FetchTimeout:           10 * time.Second,
		FetchCacheSize:         64,
		BreakerMaxFailures:     5,
		BreakerRecoveryTimeout: 30 * time.Second,

		AnalyticsSink:  "log",
		WebhookTimeout: 30,

		AWSRegion:        "us-east-1",
		FeedPollInterval: 5 * time.Second,

		APIRateLimit: 100,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	if backend := os.Getenv("STORE_BACKEND"); backend != "" {
		if backend != "redis" && backend != "postgres" {
			return nil, fmt.Errorf("invalid STORE_BACKEND %q: must be redis or postgres", backend)
		}
		cfg.StoreBackend = backend
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// Engine config
	if id := os.Getenv("ACCOUNT_ID"); id != "" {
		cfg.AccountID = id
	}

	if video := os.Getenv("VIDEO_SUPPORTED"); video != "" {
		v, err := strconv.ParseBool(video)
		if err != nil {
			return nil, fmt.Errorf("invalid VIDEO_SUPPORTED: %w", err)
		}
		cfg.VideoSupported = v
	}

	if excluded := os.Getenv("EXCLUDED_ACTIVITIES"); excluded != "" {
		for _, name := range strings.Split(excluded, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.ExcludedActivities = append(cfg.ExcludedActivities, name)
			}
		}
	}

	var err error
	if cfg.BackgroundWorkers, err = intEnv("BACKGROUND_WORKERS", cfg.BackgroundWorkers); err != nil {
		return nil, err
	}
	if cfg.SurfaceAutoDismiss, err = durationEnv("SURFACE_AUTO_DISMISS", cfg.SurfaceAutoDismiss); err != nil {
		return nil, err
	}

	// Media fetching
	if cfg.FetchTimeout, err = durationEnv("FETCH_TIMEOUT", cfg.FetchTimeout); err != nil {
		return nil, err
	}
	if cfg.FetchCacheSize, err = intEnv("FETCH_CACHE_SIZE", cfg.FetchCacheSize); err != nil {
		return nil, err
	}
	if cfg.BreakerMaxFailures, err = intEnv("BREAKER_MAX_FAILURES", cfg.BreakerMaxFailures); err != nil {
		return nil, err
	}
	if cfg.BreakerRecoveryTimeout, err = durationEnv("BREAKER_RECOVERY_TIMEOUT", cfg.BreakerRecoveryTimeout); err != nil {
		return nil, err
	}

	// Caps
	if cfg.MaxPerSession, err = intEnv("MAX_PER_SESSION", cfg.MaxPerSession); err != nil {
		return nil, err
	}
	if cfg.MaxPerDay, err = intEnv("MAX_PER_DAY", cfg.MaxPerDay); err != nil {
		return nil, err
	}

	// Analytics
	if sink := os.Getenv("ANALYTICS_SINK"); sink != "" {
		switch sink {
		case "log", "sqs", "sns", "webhook":
			cfg.AnalyticsSink = sink
		default:
			return nil, fmt.Errorf("invalid ANALYTICS_SINK %q: must be log, sqs, sns, or webhook", sink)
		}
	}

	if url := os.Getenv("WEBHOOK_URL"); url != "" {
		cfg.WebhookURL = url
	}

	if cfg.WebhookTimeout, err = intEnv("WEBHOOK_TIMEOUT", cfg.WebhookTimeout); err != nil {
		return nil, err
	}

	// AWS config
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if endpoint := os.Getenv("AWS_ENDPOINT"); endpoint != "" {
		cfg.AWSEndpoint = endpoint
	}

	if region := os.Getenv("SQS_REGION"); region != "" {
		cfg.SQSRegion = region
	} else {
		cfg.SQSRegion = cfg.AWSRegion
	}

	if url := os.Getenv("SQS_ANALYTICS_QUEUE_URL"); url != "" {
		cfg.SQSAnalyticsQueueURL = url
	}

	if url := os.Getenv("SQS_INAPP_FEED_URL"); url != "" {
		cfg.SQSInAppFeedURL = url
	}

	if region := os.Getenv("SNS_REGION"); region != "" {
		cfg.SNSRegion = region
	} else {
		cfg.SNSRegion = cfg.AWSRegion
	}

	if arn := os.Getenv("SNS_TOPIC_ARN"); arn != "" {
		cfg.SNSTopicARN = arn
	}

	if cfg.FeedPollInterval, err = durationEnv("FEED_POLL_INTERVAL", cfg.FeedPollInterval); err != nil {
		return nil, err
	}

	if cfg.APIRateLimit, err = intEnv("API_RATE_LIMIT", cfg.APIRateLimit); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks that the chosen analytics sink has its destination.
func (c *Config) validate() error {
	switch c.AnalyticsSink {
	case "sqs":
		if c.SQSAnalyticsQueueURL == "" {
			return fmt.Errorf("ANALYTICS_SINK=sqs requires SQS_ANALYTICS_QUEUE_URL")
		}
	case "sns":
		if c.SNSTopicARN == "" {
			return fmt.Errorf("ANALYTICS_SINK=sns requires SNS_TOPIC_ARN")
		}
	case "webhook":
		if c.WebhookURL == "" {
			return fmt.Errorf("ANALYTICS_SINK=webhook requires WEBHOOK_URL")
		}
	}
	return nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// durationEnv accepts Go durations ("30s") or a plain number of seconds.
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
