// Package config loads service configuration from SFS_* environment
// variables and validates it before anything is started.
package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "SFS"

	KeyAddr           = "addr"
	KeyDatabaseURL    = "database_url"
	KeySessionSecret  = "session_secret"
	KeySessionTTL     = "session_ttl"
	KeyCookieName     = "cookie_name"
	KeyCookieSecure   = "cookie_secure"
	KeyMaxUploadBytes = "max_upload_bytes"
	KeyContentBackend = "content_backend"
	KeyContentDir     = "content_dir"
	KeyS3Endpoint     = "s3_endpoint"
	KeyS3AccessKey    = "s3_access_key"
	KeyS3SecretKey    = "s3_secret_key"
	KeyBucket         = "bucket"
	KeyClientDir      = "client_dir"
	KeyLogLevel       = "log_level"
	KeyLogFormat      = "log_format"
	KeyEnv            = "env"
	KeyVersion        = "version"
	KeyCommit         = "commit"
	KeyAuthRate       = "auth_rate"
	KeyAuthWindow     = "auth_window"
	KeyTrustedProxies = "trusted_proxies"
)

const (
	BackendDir   = "dir"
	BackendMinio = "minio"
)

// Config is the fully resolved service configuration.
type Config struct {
	Addr           string
	DatabaseURL    string
	SessionSecret  string
	SessionTTL     time.Duration
	CookieName     string
	CookieSecure   bool
	MaxUploadBytes int64

	ContentBackend string
	ContentDir     string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	Bucket         string

	ClientDir string

	LogLevel  string
	LogFormat string
	Env       string
	Version   string
	Commit    string

	// AuthRate requests per AuthWindow are allowed per client IP on the
	// login and registration endpoints.
	AuthRate   int
	AuthWindow time.Duration

	// TrustedProxies lists the peers (IPs or CIDRs) whose forwarding headers
	// are believed. Empty means the TCP peer is always the client.
	TrustedProxies []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyAddr, ":8080")
	v.SetDefault(KeySessionTTL, 12*time.Hour)
	v.SetDefault(KeyCookieName, "sfs_session")
	v.SetDefault(KeyCookieSecure, true)
	v.SetDefault(KeyMaxUploadBytes, int64(16*1024*1024))
	v.SetDefault(KeyContentBackend, BackendDir)
	v.SetDefault(KeyContentDir, "uploads")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyEnv, "development")
	v.SetDefault(KeyVersion, "dev")
	v.SetDefault(KeyCommit, "unknown")
	v.SetDefault(KeyAuthRate, 20)
	v.SetDefault(KeyAuthWindow, time.Minute)
	v.SetDefault(KeyTrustedProxies, "")
}

// Load reads the configuration from the environment.
func Load() Config {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) Config {
	return Config{
		Addr:           v.GetString(KeyAddr),
		DatabaseURL:    v.GetString(KeyDatabaseURL),
		SessionSecret:  v.GetString(KeySessionSecret),
		SessionTTL:     v.GetDuration(KeySessionTTL),
		CookieName:     v.GetString(KeyCookieName),
		CookieSecure:   v.GetBool(KeyCookieSecure),
		MaxUploadBytes: v.GetInt64(KeyMaxUploadBytes),
		ContentBackend: strings.ToLower(v.GetString(KeyContentBackend)),
		ContentDir:     v.GetString(KeyContentDir),
		S3Endpoint:     v.GetString(KeyS3Endpoint),
		S3AccessKey:    v.GetString(KeyS3AccessKey),
		S3SecretKey:    v.GetString(KeyS3SecretKey),
		Bucket:         v.GetString(KeyBucket),
		ClientDir:      v.GetString(KeyClientDir),
		LogLevel:       strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:      strings.ToLower(v.GetString(KeyLogFormat)),
		Env:            strings.ToLower(v.GetString(KeyEnv)),
		Version:        v.GetString(KeyVersion),
		Commit:         v.GetString(KeyCommit),
		AuthRate:       v.GetInt(KeyAuthRate),
		AuthWindow:     v.GetDuration(KeyAuthWindow),
		TrustedProxies: splitList(v.GetString(KeyTrustedProxies)),
	}
}

// splitList reads a comma separated setting, dropping empty items.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// envName returns the environment variable that feeds key.
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

// ValidationError describes one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// validator collects every problem so a misconfigured deployment sees them all at once.
type validator struct {
	errors []ValidationError
}

func (v *validator) add(key, message string) {
	v.errors = append(v.errors, ValidationError{Field: envName(key), Message: message})
}

func (v *validator) required(key, value string) {
	if value == "" {
		v.add(key, "required environment variable not set")
	}
}

func (v *validator) minLength(key, value string, n int) {
	if value != "" && len(value) < n {
		v.add(key, fmt.Sprintf("must be at least %d characters long (got %d)", n, len(value)))
	}
}

func (v *validator) enum(key, value string, allowed ...string) {
	for _, opt := range allowed {
		if value == opt {
			return
		}
	}
	v.add(key, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

func (v *validator) port(key, value string) {
	i := strings.LastIndex(value, ":")
	if i < 0 {
		v.add(key, "must be in host:port or :port form")
		return
	}
	port, err := strconv.Atoi(value[i+1:])
	if err != nil {
		v.add(key, "port must be a number")
		return
	}
	if port < 1 || port > 65535 {
		v.add(key, "port must be between 1 and 65535")
	}
}

func (v *validator) err() error {
	if len(v.errors) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d error(s):\n", len(v.errors)))
	for i, e := range v.errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, e.Error()))
	}
	return fmt.Errorf("%s", sb.String())
}

// Validate checks the configuration and reports every problem found.
func (c Config) Validate() error {
	v := &validator{}

	v.required(KeyDatabaseURL, c.DatabaseURL)
	if c.DatabaseURL != "" {
		if !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
			v.add(KeyDatabaseURL, "must be a valid PostgreSQL connection string")
		}
	}

	v.required(KeySessionSecret, c.SessionSecret)
	v.minLength(KeySessionSecret, c.SessionSecret, 32)

	v.port(KeyAddr, c.Addr)

	if c.MaxUploadBytes <= 0 {
		v.add(KeyMaxUploadBytes, "must be a positive integer")
	}
	if c.SessionTTL <= 0 {
		v.add(KeySessionTTL, "must be a positive duration")
	}
	if c.AuthRate <= 0 {
		v.add(KeyAuthRate, "must be a positive integer")
	}
	if c.AuthWindow <= 0 {
		v.add(KeyAuthWindow, "must be a positive duration")
	}

	v.enum(KeyContentBackend, c.ContentBackend, BackendDir, BackendMinio)
	switch c.ContentBackend {
	case BackendDir:
		v.required(KeyContentDir, c.ContentDir)
	case BackendMinio:
		v.required(KeyS3Endpoint, c.S3Endpoint)
		v.required(KeyS3AccessKey, c.S3AccessKey)
		v.required(KeyS3SecretKey, c.S3SecretKey)
		v.required(KeyBucket, c.Bucket)
		if strings.Contains(c.S3Endpoint, "://") {
			if u, err := url.Parse(c.S3Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				v.add(KeyS3Endpoint, "URL must use http or https scheme")
			}
		}
	}

	v.enum(KeyLogFormat, c.LogFormat, "json", "text")
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		v.add(KeyLogLevel, fmt.Sprintf("not a valid log level (got: %s)", c.LogLevel))
	}
	for _, p := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			v.add(KeyTrustedProxies, fmt.Sprintf("%q is neither an IP nor a CIDR", p))
		}
	}
	v.enum(KeyEnv, c.Env, "development", "staging", "production")

	return v.err()
}
