package cli

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"strings"

	"github.com/invoicecraft/studio/internal/config"
	"github.com/invoicecraft/studio/internal/dispatch"
	"github.com/invoicecraft/studio/internal/export"
	"github.com/invoicecraft/studio/internal/invoice"
	"github.com/invoicecraft/studio/internal/logo"
	"github.com/invoicecraft/studio/internal/store"
)

// app holds the components every command works with.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *store.Store
	exporter   *export.Exporter
	dispatcher *dispatch.Dispatcher
	remover    logo.Remover
	validator  invoice.Validator
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func openBlobs(ctx context.Context, cfg config.StoreConfig) (store.BlobStore, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemoryBlobStore(), nil
	case "file":
		s, err := store.NewFileBlobStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := store.OpenSQLite(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := store.OpenPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "s3":
		s, err := store.NewS3BlobStore(store.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			AccessKeySecret: cfg.S3.AccessKeySecret,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func exportOptions(cfg config.ExportConfig) export.Options {
	return export.Options{
		Page:             export.PageGeometry{Width: cfg.PageWidthMM, Height: cfg.PageHeightMM},
		Scale:            cfg.Scale,
		Background:       color.White,
		AllowCrossOrigin: cfg.AllowCrossOrigin,
		Selector:         export.DefaultSelector,
	}
}

func newRemover(cfg config.LogoConfig) logo.Remover {
	if strings.TrimSpace(cfg.RemoverURL) != "" {
		return logo.NewHTTPRemover(cfg.RemoverURL, cfg.RemoverAPIKey, cfg.RemoverTimeout)
	}
	return logo.ColorKeyRemover{Tolerance: uint8(cfg.ColorKeyTolerance)}
}

// openApp loads configuration and opens the store. Callers must close it.
func openApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	blobs, err := openBlobs(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	st := store.NewStore(blobs, cfg.Store.Key, logger)
	if err := st.Open(ctx); err != nil {
		_ = blobs.Close()
		return nil, err
	}

	capturer := export.ChromeCapturer{ExecPath: cfg.Export.ChromiumPath, Timeout: cfg.Export.CaptureTimeout}
	exporter := export.NewExporter(capturer, exportOptions(cfg.Export), logger)
	dispatcher := dispatch.New(dispatch.Config{
		Remote: dispatch.RemoteConfig{
			Endpoint:   cfg.Mail.Endpoint,
			ServiceID:  cfg.Mail.ServiceID,
			TemplateID: cfg.Mail.TemplateID,
			PublicKey:  cfg.Mail.PublicKey,
		},
		DownloadDir:   cfg.Export.DownloadDir,
		FallbackDelay: cfg.Mail.FallbackDelay,
		Timeout:       cfg.Mail.Timeout,
	}, exporter, nil, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		exporter:   exporter,
		dispatcher: dispatcher,
		remover:    newRemover(cfg.Logo),
		validator: invoice.Validator{
			MaxItems:       cfg.Validation.MaxItems,
			MaxDescription: cfg.Validation.MaxDescription,
		},
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
