package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Addr            string
	DatabaseURL     string
	KafkaBrokers    []string
	AuditTopic      string
	ArchiveBucket   string
	ArchivePrefix   string
	JWTSecret       string
	AllowDebugToken bool
	DebugToken      string
}

const (
	defaultAddr       = ":8072"
	defaultAuditTopic = "review.audit.events"
)

func Load() (Config, error) {
	cfg := Config{
		Addr:            getEnv("REVIEW_ADDR", defaultAddr),
		DatabaseURL:     firstNonEmpty(os.Getenv("REVIEW_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		KafkaBrokers:    splitList(os.Getenv("REVIEW_KAFKA_BROKERS")),
		AuditTopic:      getEnv("REVIEW_AUDIT_TOPIC", defaultAuditTopic),
		ArchiveBucket:   os.Getenv("REVIEW_ARCHIVE_BUCKET"),
		ArchivePrefix:   os.Getenv("REVIEW_ARCHIVE_PREFIX"),
		JWTSecret:       os.Getenv("REVIEW_JWT_SECRET"),
		AllowDebugToken: getBool("REVIEW_ALLOW_DEBUG_TOKEN", false),
		DebugToken:      os.Getenv("REVIEW_DEBUG_TOKEN"),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or REVIEW_DATABASE_URL required")
	}
	if cfg.JWTSecret == "" && !cfg.AllowDebugToken {
		return Config{}, fmt.Errorf("REVIEW_JWT_SECRET required when REVIEW_ALLOW_DEBUG_TOKEN unset")
	}
	if os.Getenv("NODE_ENV") == "production" && cfg.AllowDebugToken {
		return Config{}, fmt.Errorf("REVIEW_ALLOW_DEBUG_TOKEN=true is forbidden in production")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
