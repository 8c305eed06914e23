package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type Facebook struct {
	AppID       string
	AppSecret   string
	RedirectURI string
	GraphURL    string
}

type Tiktok struct {
	ClientKey    string
	ClientSecret string
	RedirectURI  string
	APIURL       string
}

type Google struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

type Retry struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	InfraMaxAttempts int
}

type Config struct {
	Env               string
	HTTPAddr          string
	PostgresURI       string
	RedisURI          string
	NatsURL           string
	OtelEndpoint      string
	FrontendURL       string
	SecretKey         string
	CookieName        string
	QueueName         string
	WorkerConcurrency int
	PublishTimeout    time.Duration
	PublishDeadline   time.Duration
	Retry             Retry
	Facebook          Facebook
	Tiktok            Tiktok
	Google            Google
	R2                R2
}

func LoadConfig() *Config {
	return &Config{
		Env:               getEnv("APP_ENV", "local"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":3000"),
		PostgresURI:       getEnv("POSTGRES_URI", ""),
		RedisURI:          getEnv("REDIS_URI", "localhost:6379"),
		NatsURL:           getEnv("NATS_URL", ""),
		OtelEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		FrontendURL:       getEnv("FRONTEND_URL", "http://localhost:5173"),
		SecretKey:         getEnv("SECRET_KEY", ""),
		CookieName:        getEnv("COOKIE_NAME", "nextpost_session"),
		QueueName:         getEnv("QUEUE_NAME", "publish"),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 10),
		PublishTimeout:    getEnvDuration("PUBLISH_TIMEOUT", 20*time.Second),
		PublishDeadline:   getEnvDuration("PUBLISH_DEADLINE", 5*time.Minute),
		Retry: Retry{
			MaxAttempts:      getEnvInt("RETRY_MAX_ATTEMPTS", 5),
			BaseDelay:        getEnvDuration("RETRY_BASE_DELAY", time.Minute),
			InfraMaxAttempts: getEnvInt("RETRY_INFRA_MAX_ATTEMPTS", 3),
		},
		Facebook: Facebook{
			AppID:       getEnv("FACEBOOK_APP_ID", ""),
			AppSecret:   getEnv("FACEBOOK_APP_SECRET", ""),
			RedirectURI: getEnv("FACEBOOK_REDIRECT_URI", ""),
			GraphURL:    getEnv("FACEBOOK_GRAPH_URL", "https://graph.facebook.com/v18.0"),
		},
		Tiktok: Tiktok{
			ClientKey:    getEnv("TIKTOK_CLIENT_KEY", ""),
			ClientSecret: getEnv("TIKTOK_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("TIKTOK_REDIRECT_URI", ""),
			APIURL:       getEnv("TIKTOK_API_URL", "https://open.tiktokapis.com"),
		},
		Google: Google{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("GOOGLE_REDIRECT_URI", ""),
		},
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}
