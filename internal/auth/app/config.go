package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Issuer string // Issuer name shown in authenticator apps and flow tokens

	DatabaseFile  string // Path to SQLite database file (default: ./auth.db)
	PepperFile    string // Path to password hashing pepper file (default: ./pepper)
	MasterKeyPath string // Optional: path to master encryption key file for challenge payloads
	FlowSecret    string // HMAC secret for flow continuation tokens (generated when empty)

	AbuseThreshold int64         // Failed attempts before the login channel blocks (default: 10)
	AbuseWindow    time.Duration // Counter window (default: 1h)
	GuardBackend   string        // Counter backend: sqlite or redis (default: sqlite)
	RedisAddr      string        // Redis address when GuardBackend is redis

	StayTTL      time.Duration // Lifetime of "stay logged in" sessions (default: 60 days)
	ChallengeTTL time.Duration // Lifetime of pending login challenges (default: 5m)
	FlowTokenTTL time.Duration // Lifetime of flow continuation tokens (default: 5m)

	RPID          string   // WebAuthn relying party ID (default: localhost)
	RPOrigins     []string // WebAuthn allowed origins
	RPDisplayName string   // WebAuthn relying party display name

	DefaultView  string // Post-login landing path when no redirect is requested
	CookieName   string // Session cookie name (default: authcore_session)
	CookieSecure bool   // Secure flag on the session cookie (default: true outside dev)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:        getEnvOrDefault("AUTH_ISSUER", "authcore"),
		DatabaseFile:  getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:    getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		MasterKeyPath: os.Getenv("AUTH_MASTER_KEY_PATH"),
		FlowSecret:    os.Getenv("AUTH_FLOW_SECRET"),

		AbuseThreshold: int64(getEnvIntOrDefault("AUTH_ABUSE_THRESHOLD", 10)),
		AbuseWindow:    getEnvDurationOrDefault("AUTH_ABUSE_WINDOW", time.Hour),
		GuardBackend:   getEnvOrDefault("AUTH_GUARD_BACKEND", "sqlite"),
		RedisAddr:      getEnvOrDefault("AUTH_REDIS_ADDR", "localhost:6379"),

		StayTTL:      getEnvDurationOrDefault("AUTH_STAY_TTL", 60*24*time.Hour),
		ChallengeTTL: getEnvDurationOrDefault("AUTH_CHALLENGE_TTL", 5*time.Minute),
		FlowTokenTTL: getEnvDurationOrDefault("AUTH_FLOW_TOKEN_TTL", 5*time.Minute),

		RPID:          getEnvOrDefault("AUTH_RP_ID", "localhost"),
		RPDisplayName: getEnvOrDefault("AUTH_RP_DISPLAY_NAME", "Authcore"),

		DefaultView: getEnvOrDefault("AUTH_DEFAULT_VIEW", "/"),
		CookieName:  getEnvOrDefault("AUTH_COOKIE_NAME", "authcore_session"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	if origins := os.Getenv("AUTH_RP_ORIGINS"); origins != "" {
		cfg.RPOrigins = splitAndTrim(origins)
	} else {
		cfg.RPOrigins = []string{"http://localhost:" + strconv.Itoa(cfg.Port)}
	}

	// Secure cookies everywhere except local development.
	cfg.CookieSecure = getEnvBoolOrDefault("AUTH_COOKIE_SECURE", cfg.Env != "dev")

	return cfg
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
