package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSON(t *testing.T) {
	var buf bytes.Buffer
	Setup("backend", "debug", "json", "development", &buf)
	t.Cleanup(func() { Setup("backend", "info", "text", "development", nil) })

	log.WithField("file_id", 7).Debug("file registered")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "file registered", entry["msg"])
	assert.Equal(t, "backend", entry["service"])
	assert.Equal(t, float64(7), entry["file_id"])
	assert.Contains(t, entry, "epochTimeMillis")
}

func TestSetup_ProductionForcesJSON(t *testing.T) {
	var buf bytes.Buffer
	Setup("backend", "info", "text", "production", &buf)
	t.Cleanup(func() { Setup("backend", "info", "text", "development", nil) })

	log.Info("hello")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"trace", log.TraceLevel},
		{"debug", log.DebugLevel},
		{"info", log.InfoLevel},
		{"warn", log.WarnLevel},
		{"warning", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"fatal", log.FatalLevel},
		{"PANIC", log.PanicLevel},
		{"", log.InfoLevel},
		{"chatty", log.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}
