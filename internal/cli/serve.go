package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/invoicecraft/studio/internal/api"
	"github.com/invoicecraft/studio/internal/export"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides INVOICECRAFT_HTTP_ADDR)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			return serve(ctx, a, addr)
		})
	},
}

func serve(ctx context.Context, a *app, addr string) error {
	jobs := export.NewJobQueue(ctx, a.exporter, a.cfg.Export.JobRetention)
	srv := api.NewServer(api.Deps{
		Store:            a.store,
		Renderer:         a.exporter,
		Jobs:             jobs,
		Mailer:           a.dispatcher,
		Remover:          a.remover,
		Validator:        a.validator,
		LogoMaxDimension: a.cfg.Logo.MaxDimension,
		SendsPerMinute:   a.cfg.Mail.SendsPerMinute,
		Logger:           a.logger,
	})

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("invoicecraft api listening", "addr", addr, "store", a.cfg.Store.Backend)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server stopped", "error", err)
		return err
	}
	return nil
}
