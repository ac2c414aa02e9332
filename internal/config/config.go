package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port             string
	BaseURL          string
	DatabaseURL      string
	RedisURL         string
	LogFile          string
	HydraAdminURL    string
	TOTPIssuer       string
	EncryptionKey    string
	PasswordResetURL string
	PasswordResetTTL time.Duration
	TokenSweepPeriod time.Duration
	Email            EmailConfig
	TrustedProxies   []string
	OAuth            OAuthConfig
}

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Secure   bool
}

func (e EmailConfig) Enabled() bool {
	return e.Host != "" && e.Port != 0 && e.From != ""
}

type OAuthProvider struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func (p OAuthProvider) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type OAuthConfig struct {
	Google OAuthProvider
	GitHub OAuthProvider
}

func Load() (Config, error) {
	clean := func(val string) string {
		return strings.Trim(val, "\"' \t\r\n")
	}

	rawPort := strings.Trim(getenvDefault("EMAIL_SERVER_PORT", "587"), "\"' ")
	emailPort, err := strconv.Atoi(rawPort)
	if err != nil {
		emailPort = 587
	}

	cfg := Config{
		Port:             getenvDefault("PORT", "8080"),
		BaseURL:          getenvDefault("APP_BASE_URL", "http://localhost:3000"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         getenvDefault("REDIS_URL", "redis://localhost:6379"),
		LogFile:          getenvDefault("LOG_FILE", "logs/server.log"),
		HydraAdminURL:    strings.TrimRight(os.Getenv("HYDRA_ADMIN_URL"), "/"),
		TOTPIssuer:       getenvDefault("TOTP_ISSUER", "AuthGate"),
		EncryptionKey:    os.Getenv("ENCRYPTION_KEY"),
		PasswordResetURL: getenvDefault("PASSWORD_RESET_URL", "http://localhost:3000/reset-password"),
		PasswordResetTTL: parseDuration(os.Getenv("PASSWORD_RESET_TTL"), time.Hour),
		TokenSweepPeriod: parseDuration(os.Getenv("TOKEN_SWEEP_PERIOD"), time.Hour),
		TrustedProxies:   parseList(os.Getenv("TRUSTED_PROXIES")),
	}

	cfg.Email = EmailConfig{
		Host:     clean(os.Getenv("EMAIL_SERVER_HOST")),
		Port:     emailPort,
		Username: clean(os.Getenv("EMAIL_SERVER_USER")),
		Password: clean(os.Getenv("EMAIL_SERVER_PASSWORD")),
		From:     clean(os.Getenv("EMAIL_FROM")),
		Secure:   parseBool(os.Getenv("EMAIL_SERVER_SECURE")),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.HydraAdminURL == "" {
		return Config{}, fmt.Errorf("HYDRA_ADMIN_URL is required")
	}
	if cfg.EncryptionKey == "" {
		return Config{}, fmt.Errorf("ENCRYPTION_KEY is required")
	}

	cfg.OAuth = OAuthConfig{
		Google: OAuthProvider{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  getenvDefault("GOOGLE_REDIRECT_URL", cfg.BaseURL+"/api/oauth/google/callback"),
		},
		GitHub: OAuthProvider{
			ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
			ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
			RedirectURL:  getenvDefault("GITHUB_REDIRECT_URL", cfg.BaseURL+"/api/oauth/github/callback"),
		},
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func parseBool(val string) bool {
	if val == "" {
		return false
	}
	val = strings.ToLower(strings.Trim(val, "\"' "))
	return val == "1" || val == "true" || val == "yes"
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func parseList(val string) []string {
	parts := strings.Split(val, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
