package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StorageType)
	assert.Equal(t, "./data", cfg.LocalStoragePath)
	assert.Equal(t, 168*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.RefreshWindow)
	assert.Equal(t, int64(20<<20), cfg.MaxUploadBytes)
	assert.Equal(t, []string{"#007cba"}, cfg.PrintZoneStrokes)
	assert.Equal(t, []string{"https://*", "http://*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.TemplateSourceURL)
	assert.False(t, cfg.OIDCConfigured())
	assert.False(t, cfg.GitHubConfigured())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "sqlite")
	t.Setenv("DATA_SOURCE_NAME", "/tmp/x.db")
	t.Setenv("TOKEN_TTL", "15m")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("PRINT_ZONE_STROKES", "#007cba,#ff00ff")
	t.Setenv("OIDC_ISSUER_URL", "https://issuer.example")
	t.Setenv("OIDC_CLIENT_ID", "client")
	t.Setenv("TEMPLATE_SOURCE_URL", "https://templates.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.StorageType)
	assert.Equal(t, "/tmp/x.db", cfg.DataSourceName)
	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.Equal(t, []string{"#007cba", "#ff00ff"}, cfg.PrintZoneStrokes)
	assert.True(t, cfg.OIDCConfigured())
	assert.Equal(t, "https://templates.example", cfg.TemplateSourceURL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown storage", "STORAGE_TYPE", "floppy"},
		{"s3 without bucket", "STORAGE_TYPE", "s3"},
		{"zero upload limit", "MAX_UPLOAD_BYTES", "0"},
		{"bad duration", "TOKEN_TTL", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
