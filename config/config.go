// Package config maps the server's environment variables into a typed struct.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime configuration of the print design server.
type Config struct {
	// Storage backend: memory, filesystem, sqlite or s3.
	StorageType      string `env:"STORAGE_TYPE"       envDefault:"memory"`
	LocalStoragePath string `env:"LOCAL_STORAGE_PATH" envDefault:"./data"`
	DataSourceName   string `env:"DATA_SOURCE_NAME"   envDefault:"printdesign.db"`
	S3BucketName     string `env:"S3_BUCKET_NAME"`

	// Access tokens
	JWTSecret     string        `env:"JWT_SECRET"`
	TokenTTL      time.Duration `env:"TOKEN_TTL"      envDefault:"168h"`
	RefreshWindow time.Duration `env:"REFRESH_WINDOW" envDefault:"24h"`

	// Designer login providers
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURL  string `env:"GITHUB_REDIRECT_URL"`
	OIDCIssuerURL      string `env:"OIDC_ISSUER_URL"`
	OIDCClientID       string `env:"OIDC_CLIENT_ID"`
	OIDCClientSecret   string `env:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL    string `env:"OIDC_REDIRECT_URL"`

	// Templates. TemplateSourceURL points exports at a remote template
	// metadata service instead of the local store.
	TemplatesFile     string        `env:"TEMPLATES_FILE"`
	TemplateSourceURL string        `env:"TEMPLATE_SOURCE_URL"`
	RedisURL          string        `env:"REDIS_URL"`
	TemplateCacheTTL  time.Duration `env:"TEMPLATE_CACHE_TTL" envDefault:"10m"`

	// Export and upload
	MaxUploadBytes   int64    `env:"MAX_UPLOAD_BYTES"   envDefault:"20971520"`
	PublicBaseURL    string   `env:"PUBLIC_BASE_URL"    envDefault:"http://localhost:3002"`
	ExportRateLimit  float64  `env:"EXPORT_RATE_LIMIT"  envDefault:"2"`
	ExportRateBurst  int      `env:"EXPORT_RATE_BURST"  envDefault:"5"`
	PrintZoneStrokes []string `env:"PRINT_ZONE_STROKES" envDefault:"#007cba" envSeparator:","`

	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"https://*,http://*" envSeparator:","`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageType {
	case "memory", "filesystem", "sqlite":
	case "s3":
		if c.S3BucketName == "" {
			return fmt.Errorf("S3_BUCKET_NAME must be set for s3 storage type")
		}
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.StorageType)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.RefreshWindow < 0 {
		return fmt.Errorf("REFRESH_WINDOW must not be negative")
	}
	return nil
}

// OIDCConfigured reports whether OIDC login takes precedence over GitHub.
func (c *Config) OIDCConfigured() bool {
	return c.OIDCIssuerURL != "" && c.OIDCClientID != ""
}

func (c *Config) GitHubConfigured() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}
