package cli

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/invoicecraft/studio/internal/dispatch"
	"github.com/invoicecraft/studio/internal/export"
)

func init() {
	rootCmd.AddCommand(exportCmd, emailCmd, composeCmd)

	exportCmd.Flags().StringP("format", "f", "pdf", "Document format: pdf or ubl")
	exportCmd.Flags().StringP("out", "o", "", "Output directory (default DOWNLOAD_DIR)")

	for _, c := range []*cobra.Command{emailCmd, composeCmd} {
		c.Flags().StringSlice("to", nil, "Recipient address (repeatable)")
		c.Flags().String("subject", "", "Subject line")
		c.Flags().String("message", "", "Message body")
	}
	composeCmd.Flags().Bool("open", false, "Open the link in the default mail client")
}

var exportCmd = &cobra.Command{
	Use:   "export ID",
	Short: "Write an invoice document to disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			inv, err := a.store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("out")
			if dir == "" {
				dir = a.cfg.Export.DownloadDir
			}

			var art export.Artifact
			switch format, _ := cmd.Flags().GetString("format"); format {
			case "pdf":
				art, err = a.exporter.Export(ctx, inv)
			case "ubl", "xml":
				art, err = a.exporter.ExportUBL(inv)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			if err != nil {
				return err
			}
			path, err := export.SaveArtifact(art, dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		})
	},
}

func dispatchRequest(cmd *cobra.Command) dispatch.Request {
	to, _ := cmd.Flags().GetStringSlice("to")
	subject, _ := cmd.Flags().GetString("subject")
	message, _ := cmd.Flags().GetString("message")
	return dispatch.Request{Recipients: to, Subject: subject, Body: message}
}

var emailCmd = &cobra.Command{
	Use:   "email ID",
	Short: "Send an invoice PDF through the mail service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			inv, err := a.store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			res, err := a.dispatcher.Send(ctx, inv, dispatchRequest(cmd))
			if err != nil {
				return err
			}
			if res.Mode == dispatch.ModeFallback {
				fmt.Fprintf(cmd.ErrOrStderr(), "mail service not configured; PDF saved to %s\n", res.SavedPath)
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var composeCmd = &cobra.Command{
	Use:   "compose ID",
	Short: "Build a mailto link for an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			inv, err := a.store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			res, err := a.dispatcher.Compose(inv, dispatchRequest(cmd))
			if err != nil {
				return err
			}
			if open, _ := cmd.Flags().GetBool("open"); open {
				if err := (systemOpener{}).Open(res.URL); err != nil {
					a.logger.Warn("could not open mail client", "error", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.URL)
			return nil
		})
	},
}

// systemOpener hands a URL to the desktop's default handler.
type systemOpener struct{}

func (systemOpener) Open(url string) error {
	var c *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		c = exec.Command("open", url)
	case "windows":
		c = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		c = exec.Command("xdg-open", url)
	}
	return c.Start()
}
