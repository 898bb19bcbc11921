package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	SupabaseJWTSecret  string
	UseSupabase        bool

	// Realtime
	RealtimeHeartbeat time.Duration

	// Local client state (onboarding flag)
	LocalStatePath string

	// Dev mode: in-memory backend users, "email:password" pairs separated by commas
	DevUsers []string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_TIMEOUT", 10*time.Second)
	v.SetDefault("MAX_RETRIES", 5)
	v.SetDefault("INITIAL_BACKOFF", 250*time.Millisecond)
	v.SetDefault("MAX_BACKOFF", 30*time.Second)
	v.SetDefault("MAX_CONCURRENCY", 16)
	v.SetDefault("CACHE_TTL", 5*time.Minute)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("SUPABASE_URL", "")
	v.SetDefault("SUPABASE_ANON_KEY", "")
	v.SetDefault("SUPABASE_SERVICE_ROLE_KEY", "")
	v.SetDefault("SUPABASE_JWT_SECRET", "payping-default-dev-secret-change-me")
	v.SetDefault("USE_SUPABASE", true)
	v.SetDefault("REALTIME_HEARTBEAT", 25*time.Second)
	v.SetDefault("LOCAL_STATE_PATH", ".payping/state.json")
	v.SetDefault("DEV_USERS", "demo@payping.com:demo1234")

	return &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: v.GetString("LOG_LEVEL"),

		HTTPTimeout: v.GetDuration("HTTP_TIMEOUT"),

		MaxRetries:     v.GetInt("MAX_RETRIES"),
		InitialBackoff: v.GetDuration("INITIAL_BACKOFF"),
		MaxBackoff:     v.GetDuration("MAX_BACKOFF"),
		MaxConcurrency: v.GetInt("MAX_CONCURRENCY"),

		CacheTTL: v.GetDuration("CACHE_TTL"),

		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),

		SupabaseURL:        v.GetString("SUPABASE_URL"),
		SupabaseAnonKey:    v.GetString("SUPABASE_ANON_KEY"),
		SupabaseServiceKey: v.GetString("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseJWTSecret:  v.GetString("SUPABASE_JWT_SECRET"),
		UseSupabase:        v.GetBool("USE_SUPABASE"),

		RealtimeHeartbeat: v.GetDuration("REALTIME_HEARTBEAT"),

		LocalStatePath: v.GetString("LOCAL_STATE_PATH"),

		DevUsers: splitList(v.GetString("DEV_USERS")),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
