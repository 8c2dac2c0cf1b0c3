package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
)

// Config is the process configuration, loaded from the environment with
// optional .env bootstrap.
type Config struct {
	HTTPPort  string
	HTTPSPort string
	Domain    string
	HTTPOnly  bool

	DBPath    string
	JWTSecret string

	TURNPort  int
	TURNRealm string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	ReaperInterval time.Duration
	RoomRetention  time.Duration

	CORSOrigins []string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first if present; explicit env wins.
func Load(httpOnly bool) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:        envOr("HTTP_PORT", "8080"),
		HTTPSPort:       envOr("HTTPS_PORT", "443"),
		Domain:          os.Getenv("DOMAIN"),
		HTTPOnly:        httpOnly || envBool("HTTP_ONLY"),
		DBPath:          envOr("DB_PATH", "calls.db"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		TURNPort:        envInt("TURN_PORT", 3478),
		TURNRealm:       envOr("TURN_REALM", "calls"),
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubject:    envOr("VAPID_SUBJECT", "mailto:admin@localhost"),
		ReaperInterval:  envDuration("REAPER_INTERVAL", 5*time.Minute),
		RoomRetention:   envDuration("ROOM_RETENTION", time.Hour),
	}

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if !cfg.HTTPOnly && cfg.Domain == "" {
		return nil, fmt.Errorf("DOMAIN is required unless running http-only")
	}

	return cfg, nil
}

// EnsureVAPIDKeys generates a keypair when none is configured so push
// notifications work out of the box. Generated keys are process-local;
// set VAPID_PUBLIC_KEY/VAPID_PRIVATE_KEY to keep subscriptions valid
// across restarts.
func (c *Config) EnsureVAPIDKeys(logger *slog.Logger) error {
	if c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != "" {
		return nil
	}

	private, public, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return fmt.Errorf("generate VAPID keys: %w", err)
	}
	c.VAPIDPrivateKey = private
	c.VAPIDPublicKey = public
	logger.Warn("generated ephemeral VAPID keys; push subscriptions will not survive a restart")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
