package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrNoCredentials is returned when no bearer credential is configured
var ErrNoCredentials = errors.New("no bearer credential configured: set BEARER_TOKEN, TEMPORARY_TOKEN or BEARER_TOKENS")

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Firebase  FirebaseConfig
	Geo       GeoConfig
	Dispatch  DispatchConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Storage   StorageConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type AuthConfig struct {
	BearerToken    string
	TemporaryToken string
	ExtraTokens    []string
}

// Tokens returns every configured credential, without blanks
func (a AuthConfig) Tokens() []string {
	var out []string
	for _, t := range append([]string{a.BearerToken, a.TemporaryToken}, a.ExtraTokens...) {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

type FirebaseConfig struct {
	CredentialsFile string
	ProjectID       string
}

type GeoConfig struct {
	LookupURL         string
	LookupTimeout     time.Duration
	EdgeCountryHeader string
}

type DispatchConfig struct {
	Concurrency int
	SendTimeout time.Duration
	// RatePerSec paces gateway calls process-wide; 0 disables pacing.
	RatePerSec float64
}

type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type StorageConfig struct {
	Type            string // "none", "local" or "s3"
	ReportDir       string
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
}

type LogConfig struct {
	Level string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3000"),
			Env:  getEnv("ENV", "development"),
		},
		Auth: AuthConfig{
			BearerToken:    getEnv("BEARER_TOKEN", ""),
			TemporaryToken: getEnv("TEMPORARY_TOKEN", ""),
			ExtraTokens:    parseCSV(getEnv("BEARER_TOKENS", "")),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		},
		Geo: GeoConfig{
			LookupURL:         getEnv("GEO_LOOKUP_URL", "http://ip-api.com/json"),
			LookupTimeout:     getEnvDuration("GEO_LOOKUP_TIMEOUT", 3*time.Second),
			EdgeCountryHeader: getEnv("EDGE_COUNTRY_HEADER", "CF-IPCountry"),
		},
		Dispatch: DispatchConfig{
			Concurrency: getEnvInt("DISPATCH_CONCURRENCY", 8),
			SendTimeout: getEnvDuration("FCM_SEND_TIMEOUT", 10*time.Second),
			RatePerSec:  getEnvFloat("DISPATCH_RATE_PER_SEC", 0),
		},
		RateLimit: RateLimitConfig{
			PerSecond: getEnvFloat("RATE_LIMIT_PER_SEC", 10),
			Burst:     getEnvInt("RATE_LIMIT_BURST", 20),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseCSV(getEnv("ALLOWED_ORIGINS", "*")),
		},
		Storage: StorageConfig{
			Type:            strings.ToLower(getEnv("STORAGE_TYPE", "none")),
			ReportDir:       getEnv("REPORT_DIR", "./data"),
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "auto"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			PublicURL:       getEnv("S3_PUBLIC_URL", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", ""),
		},
	}

	if len(cfg.Auth.Tokens()) == 0 {
		return nil, ErrNoCredentials
	}
	return cfg, nil
}

// getEnv gets an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// parseCSV parses a comma-separated string into a slice of strings
func parseCSV(value string) []string {
	if value == "" {
		return []string{}
	}
	var result []string
	parts := strings.Split(value, ",")
	for _, s := range parts {
		trimmed := strings.TrimSpace(s)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}
