package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure-file-share/internal/config"
	"secure-file-share/internal/content"
)

func TestServerConfig(t *testing.T) {
	cfg := config.Config{
		Addr:           ":9090",
		SessionSecret:  "0123456789abcdef0123456789abcdef",
		SessionTTL:     time.Hour,
		CookieName:     "sid",
		CookieSecure:   true,
		MaxUploadBytes: 1 << 20,
		ClientDir:      "client",
		Version:        "1.2.3",
		AuthRate:       7,
		AuthWindow:     time.Minute,
		TrustedProxies: []string{"10.0.0.0/8"},
	}

	got := serverConfig(cfg)
	assert.Equal(t, ":9090", got.Addr)
	assert.Equal(t, cfg.SessionSecret, got.Auth.SessionSecret)
	assert.Equal(t, time.Hour, got.Auth.SessionTTL)
	assert.Equal(t, "sid", got.Auth.CookieName)
	assert.True(t, got.Auth.CookieSecure)
	assert.Equal(t, int64(1<<20), got.MaxUploadBytes)
	assert.Equal(t, "client", got.ClientDir)
	assert.Equal(t, "1.2.3", got.Version)
	assert.Equal(t, 7, got.AuthRate)
	assert.Equal(t, time.Minute, got.AuthWindow)
	assert.Equal(t, []string{"10.0.0.0/8"}, got.TrustedProxies)
}

func TestOpenContent(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{
			name: "directory backend",
			cfg:  config.Config{ContentBackend: config.BackendDir, ContentDir: filepath.Join(t.TempDir(), "uploads")},
		},
		{
			name:    "incomplete minio backend",
			cfg:     config.Config{ContentBackend: config.BackendMinio},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			cfg:     config.Config{ContentBackend: "tape"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openContent(context.Background(), tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, &content.Dir{}, store)
			assert.NoError(t, store.Check(context.Background()))
		})
	}
}
