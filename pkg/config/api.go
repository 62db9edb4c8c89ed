package config

import "time"

// APIConfig holds runtime configuration for the analytics API service.
type APIConfig struct {
	Environment   string
	Addr          string
	DatabaseURL   string
	MigrationsDir string

	AdminToken string

	MaxEventSize           int
	MaxCustomParams        int
	MaxParamNameLength     int
	MaxParamValueLength    int
	ThrottleWindow         time.Duration
	AllowLocalhost         bool
	AllowFileProtocol      bool
	AllowIframes           bool
	BotDetection           bool
	RequireRegisteredSites bool

	ActiveWindow time.Duration

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:   GetString("APP_ENV", "development"),
		Addr:          GetString("API_ADDR", ":3000"),
		DatabaseURL:   GetString("DATABASE_URL", "postgres://analytics:analytics@db:5432/analytics?sslmode=disable"),
		MigrationsDir: GetString("DB_MIGRATIONS_DIR", "./db/migrations"),

		AdminToken: GetString("ADMIN_TOKEN", ""),

		MaxEventSize:           GetInt("MAX_EVENT_SIZE_BYTES", 100*1024),
		MaxCustomParams:        GetInt("MAX_CUSTOM_PARAMS", 10),
		MaxParamNameLength:     GetInt("MAX_PARAM_NAME_LENGTH", 100),
		MaxParamValueLength:    GetInt("MAX_PARAM_VALUE_LENGTH", 1000),
		ThrottleWindow:         time.Duration(GetInt("PAGEVIEW_THROTTLE_SECONDS", 60)) * time.Second,
		AllowLocalhost:         GetBool("ALLOW_LOCALHOST", false),
		AllowFileProtocol:      GetBool("ALLOW_FILE_PROTOCOL", false),
		AllowIframes:           GetBool("ALLOW_IFRAMES", false),
		BotDetection:           GetBool("BOT_DETECTION_ENABLED", true),
		RequireRegisteredSites: GetBool("REQUIRE_REGISTERED_SITES", false),

		ActiveWindow: time.Duration(GetInt("ACTIVE_WINDOW_MINUTES", 5)) * time.Minute,

		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
