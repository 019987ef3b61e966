// Package cli implements the invoicecraft command line: the HTTP server and
// one-shot commands over the same store, exporter and dispatcher.
package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "invoicecraft",
	Short:         "Build, store, export and send invoices",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file (default $INVOICECRAFT_CONFIG)")
}

// Execute runs the root command under ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
