package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendWebRTC = "webrtc"
	BackendGo2RTC = "go2rtc"
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	// JWTSecret is required input. The process refuses to start without
	// it; sourcing it (encrypted env bootstrap) is external.
	JWTSecret        string
	UserTokenTTL     time.Duration
	AdminTokenTTL    time.Duration // 0 means admin tokens never expire
	AdminSeedPassG   string
	AdminSeedPassD   string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	UsersFile   string

	MediaBackend     string
	Go2RTCURL        string
	Go2RTCStream     string
	STUNServers      []string
	MaxMediaSessions int

	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),
		JWTSecret:               strings.TrimSpace(os.Getenv("JWT_SECRET")),
		UserTokenTTL:            time.Duration(getInt("JWT_EXPIRE_MINUTES", 120)) * time.Minute,
		AdminTokenTTL:           time.Duration(getInt("ADMIN_EXPIRE_MINUTES", 0)) * time.Minute,
		AdminSeedPassG:          strings.TrimSpace(os.Getenv("ADMIN_G_PASS")),
		AdminSeedPassD:          strings.TrimSpace(os.Getenv("ADMIN_D_PASS")),
		DatabaseURL:             strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:              int32(getInt("DB_MAX_CONNS", 4)),
		DBMinConns:              int32(getInt("DB_MIN_CONNS", 1)),
		UsersFile:               getEnv("USERS_FILE", "./state/users.json"),
		MediaBackend:            strings.ToLower(getEnv("MEDIA_BACKEND", BackendWebRTC)),
		Go2RTCURL:               getEnv("GO2RTC_URL", "http://127.0.0.1:1984"),
		Go2RTCStream:            getEnv("GO2RTC_STREAM", "camera1"),
		STUNServers:             splitCSV(getEnv("STUN_SERVERS", "stun:stun.l.google.com:19302")),
		MaxMediaSessions:        getInt("MAX_MEDIA_SESSIONS", 4),
		CORSOrigins:             splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:            getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM:        getInt("AUTH_RATE_LIMIT_RPM", 10),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.UserTokenTTL <= 0 {
		return fmt.Errorf("JWT_EXPIRE_MINUTES must be positive")
	}

	if c.AdminTokenTTL < 0 {
		return fmt.Errorf("ADMIN_EXPIRE_MINUTES cannot be negative")
	}

	if c.MediaBackend != BackendWebRTC && c.MediaBackend != BackendGo2RTC {
		return fmt.Errorf("MEDIA_BACKEND must be %q or %q", BackendWebRTC, BackendGo2RTC)
	}

	if c.MediaBackend == BackendGo2RTC && strings.TrimSpace(c.Go2RTCURL) == "" {
		return fmt.Errorf("GO2RTC_URL cannot be empty when MEDIA_BACKEND=go2rtc")
	}

	if c.DatabaseURL == "" && strings.TrimSpace(c.UsersFile) == "" {
		return fmt.Errorf("USERS_FILE cannot be empty without DATABASE_URL")
	}

	if c.MaxMediaSessions <= 0 {
		return fmt.Errorf("MAX_MEDIA_SESSIONS must be positive")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
