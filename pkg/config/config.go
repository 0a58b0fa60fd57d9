package config

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	LogFormat   string
	ServiceName string

	GRPCPort int
	HTTPPort int

	Postgres       Postgres
	MigrateOnStart bool

	JWTSecret string
	Cookie    Cookie

	// TokenLifetime is how long an anonymous cart token stays valid.
	TokenLifetime time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	ConsulAddr string
}

type Postgres struct {
	Host     string
	Port     int
	User     string
	Pass     string
	DB       string
	SSLMode  string
	MaxConns int
}

type Cookie struct {
	Name     string
	MaxAge   int
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// Load reads the environment. A .env file in the working directory is loaded
// first when present; variables already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppEnv:      getEnv("APP_ENV", "dev"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		ServiceName: getEnv("SERVICE_NAME", "cart"),
		HTTPPort:    getEnvInt("HTTP_PORT", 8080),
		GRPCPort:    getEnvInt("GRPC_PORT", 8081),
		Postgres: Postgres{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "shopping"),
			Pass:     getEnv("POSTGRES_PASSWORD", "shoppingpassword"),
			DB:       getEnv("POSTGRES_DB", "shopping_db"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns: getEnvInt("POSTGRES_MAX_CONNS", 10),
		},
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", true),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		Cookie: Cookie{
			Name:     getEnv("CART_COOKIE_NAME", "cart_token"),
			MaxAge:   getEnvInt("CART_COOKIE_AGE", 14*24*60*60),
			Secure:   getEnvBool("CART_COOKIE_SECURE", false),
			HTTPOnly: getEnvBool("CART_COOKIE_HTTPONLY", true),
			SameSite: parseSameSite(getEnv("CART_COOKIE_SAMESITE", "lax")),
		},
		TokenLifetime: getEnvDuration("CART_TOKEN_LIFETIME", 14*24*time.Hour),
		KafkaBrokers:  getEnvList("KAFKA_BROKERS"),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "cart-service.cart-changed"),
		ConsulAddr:    getEnv("CONSUL_ADDR", ""),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)

	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}

	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}
