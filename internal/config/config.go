// Package config resolves runtime settings. Sources apply in order: built-in
// defaults, an optional TOML file, an optional .env file, then the process
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// FileEnv names the variable holding the TOML config path.
const FileEnv = "INVOICECRAFT_CONFIG"

// Config holds settings for storage, export, dispatch and the HTTP surface.
type Config struct {
	HTTPAddr  string `toml:"http_addr"`
	LogFormat string `toml:"log_format"`
	LogLevel  string `toml:"log_level"`

	Store      StoreConfig      `toml:"store"`
	Export     ExportConfig     `toml:"export"`
	Mail       MailConfig       `toml:"mail"`
	Logo       LogoConfig       `toml:"logo"`
	Validation ValidationConfig `toml:"validation"`
}

type StoreConfig struct {
	// Backend is one of memory, file, sqlite, postgres, s3.
	Backend     string   `toml:"backend"`
	Key         string   `toml:"key"`
	Dir         string   `toml:"dir"`
	PostgresURL string   `toml:"postgres_url"`
	S3          S3Config `toml:"s3"`
}

type S3Config struct {
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	AccessKeyID     string `toml:"access_key_id"`
	AccessKeySecret string `toml:"access_key_secret"`
}

type ExportConfig struct {
	ChromiumPath     string        `toml:"chromium_path"`
	CaptureTimeout   time.Duration `toml:"capture_timeout"`
	Scale            float64       `toml:"scale"`
	PageWidthMM      float64       `toml:"page_width_mm"`
	PageHeightMM     float64       `toml:"page_height_mm"`
	AllowCrossOrigin bool          `toml:"allow_cross_origin"`
	JobRetention     time.Duration `toml:"job_retention"`
	DownloadDir      string        `toml:"download_dir"`
}

type MailConfig struct {
	Endpoint       string        `toml:"endpoint"`
	ServiceID      string        `toml:"service_id"`
	TemplateID     string        `toml:"template_id"`
	PublicKey      string        `toml:"public_key"`
	FallbackDelay  time.Duration `toml:"fallback_delay"`
	Timeout        time.Duration `toml:"timeout"`
	// SendsPerMinute limits API sends per client. Zero disables the limit.
	SendsPerMinute int           `toml:"sends_per_minute"`
}

type LogoConfig struct {
	MaxDimension      int           `toml:"max_dimension"`
	RemoverURL        string        `toml:"remover_url"`
	RemoverAPIKey     string        `toml:"remover_api_key"`
	RemoverTimeout    time.Duration `toml:"remover_timeout"`
	ColorKeyTolerance int           `toml:"color_key_tolerance"`
}

type ValidationConfig struct {
	MaxItems       int `toml:"max_items"`
	MaxDescription int `toml:"max_description"`
}

func Default() Config {
	return Config{
		HTTPAddr:  ":8080",
		LogFormat: "json",
		LogLevel:  "info",
		Store: StoreConfig{
			Backend: "file",
			Key:     "invoice-craft-invoices",
			Dir:     "data",
			S3:      S3Config{Region: "us-east-1"},
		},
		Export: ExportConfig{
			Scale:            2,
			PageWidthMM:      210,
			PageHeightMM:     297,
			AllowCrossOrigin: true,
			JobRetention:     30 * time.Minute,
			DownloadDir:      ".",
		},
		Mail: MailConfig{
			Endpoint:       "https://api.emailjs.com/api/v1.0/email/send",
			FallbackDelay:  2 * time.Second,
			Timeout:        30 * time.Second,
			SendsPerMinute: 10,
		},
		Logo: LogoConfig{
			MaxDimension:      1024,
			RemoverTimeout:    60 * time.Second,
			ColorKeyTolerance: 12,
		},
		Validation: ValidationConfig{
			MaxItems:       500,
			MaxDescription: 1000,
		},
	}
}

// Load resolves the configuration. path overrides INVOICECRAFT_CONFIG; an
// empty path with the variable unset skips the file. A missing .env is fine.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = getenv("INVOICECRAFT_HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogFormat = getenv("INVOICECRAFT_LOG_FORMAT", cfg.LogFormat)
	cfg.LogLevel = getenv("INVOICECRAFT_LOG_LEVEL", cfg.LogLevel)

	cfg.Store.Backend = getenv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Key = getenv("STORE_KEY", cfg.Store.Key)
	cfg.Store.Dir = getenv("STORE_DIR", cfg.Store.Dir)
	cfg.Store.PostgresURL = getenv("DATABASE_URL", cfg.Store.PostgresURL)
	cfg.Store.S3.Endpoint = getenv("S3_ENDPOINT", cfg.Store.S3.Endpoint)
	cfg.Store.S3.Region = getenv("S3_REGION", cfg.Store.S3.Region)
	cfg.Store.S3.Bucket = getenv("S3_BUCKET", cfg.Store.S3.Bucket)
	cfg.Store.S3.Prefix = getenv("S3_PREFIX", cfg.Store.S3.Prefix)
	cfg.Store.S3.AccessKeyID = getenv("S3_ACCESS_KEY_ID", cfg.Store.S3.AccessKeyID)
	cfg.Store.S3.AccessKeySecret = getenv("S3_ACCESS_KEY_SECRET", cfg.Store.S3.AccessKeySecret)

	cfg.Export.ChromiumPath = getenv("PDF_CHROMIUM_PATH", cfg.Export.ChromiumPath)
	cfg.Export.CaptureTimeout = getDuration("PDF_TIMEOUT", cfg.Export.CaptureTimeout)
	cfg.Export.Scale = getFloat("PDF_SCALE", cfg.Export.Scale)
	cfg.Export.PageWidthMM = getFloat("PDF_PAGE_WIDTH_MM", cfg.Export.PageWidthMM)
	cfg.Export.PageHeightMM = getFloat("PDF_PAGE_HEIGHT_MM", cfg.Export.PageHeightMM)
	cfg.Export.AllowCrossOrigin = getBool("PDF_ALLOW_CROSS_ORIGIN", cfg.Export.AllowCrossOrigin)
	cfg.Export.JobRetention = getDuration("EXPORT_JOB_RETENTION", cfg.Export.JobRetention)
	cfg.Export.DownloadDir = getenv("DOWNLOAD_DIR", cfg.Export.DownloadDir)

	cfg.Mail.Endpoint = getenv("EMAILJS_ENDPOINT", cfg.Mail.Endpoint)
	cfg.Mail.ServiceID = getenv("EMAILJS_SERVICE_ID", cfg.Mail.ServiceID)
	cfg.Mail.TemplateID = getenv("EMAILJS_TEMPLATE_ID", cfg.Mail.TemplateID)
	cfg.Mail.PublicKey = getenv("EMAILJS_PUBLIC_KEY", cfg.Mail.PublicKey)
	cfg.Mail.FallbackDelay = getDuration("MAIL_FALLBACK_DELAY", cfg.Mail.FallbackDelay)
	cfg.Mail.Timeout = getDuration("MAIL_TIMEOUT", cfg.Mail.Timeout)
	cfg.Mail.SendsPerMinute = getInt("MAIL_SENDS_PER_MINUTE", cfg.Mail.SendsPerMinute)

	cfg.Logo.MaxDimension = getInt("LOGO_MAX_DIMENSION", cfg.Logo.MaxDimension)
	cfg.Logo.RemoverURL = getenv("BG_REMOVER_URL", cfg.Logo.RemoverURL)
	cfg.Logo.RemoverAPIKey = getenv("BG_REMOVER_API_KEY", cfg.Logo.RemoverAPIKey)
	cfg.Logo.RemoverTimeout = getDuration("BG_REMOVER_TIMEOUT", cfg.Logo.RemoverTimeout)
	cfg.Logo.ColorKeyTolerance = getInt("BG_COLOR_KEY_TOLERANCE", cfg.Logo.ColorKeyTolerance)

	cfg.Validation.MaxItems = getInt("MAX_INVOICE_LINES", cfg.Validation.MaxItems)
	cfg.Validation.MaxDescription = getInt("MAX_DESCRIPTION_LEN", cfg.Validation.MaxDescription)
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "file", "sqlite":
	case "postgres":
		if c.Store.PostgresURL == "" {
			return errors.New("store backend postgres needs DATABASE_URL")
		}
	case "s3":
		if c.Store.S3.Bucket == "" {
			return errors.New("store backend s3 needs S3_BUCKET")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.Export.Scale <= 0 {
		return fmt.Errorf("export scale must be positive, got %v", c.Export.Scale)
	}
	if c.Export.PageWidthMM <= 0 || c.Export.PageHeightMM <= 0 {
		return errors.New("export page size must be positive")
	}
	if c.Mail.SendsPerMinute < 0 {
		return fmt.Errorf("mail sends per minute must not be negative, got %d", c.Mail.SendsPerMinute)
	}
	if c.Logo.ColorKeyTolerance < 0 || c.Logo.ColorKeyTolerance > 255 {
		return fmt.Errorf("color key tolerance must be within 0-255, got %d", c.Logo.ColorKeyTolerance)
	}
	return nil
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
