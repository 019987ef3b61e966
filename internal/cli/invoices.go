package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/invoicecraft/studio/internal/invoice"
	"github.com/invoicecraft/studio/internal/logo"
)

func init() {
	rootCmd.AddCommand(newCmd, importCmd, listCmd, showCmd, deleteCmd)

	newCmd.Flags().String("number", "", "Invoice number (default INV-<unix millis>)")
	newCmd.Flags().String("company", "", "Company name")
	newCmd.Flags().String("bill-to", "", "Client name")
	newCmd.Flags().String("logo", "", "Path to a company logo image")
	newCmd.Flags().Bool("remove-background", false, "Make the logo background transparent")

	importCmd.Flags().Bool("validate", false, "Reject invoices that fail validation")

	listCmd.Flags().StringP("query", "q", "", "Filter by invoice number, client or company")
}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create and save a default invoice",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			inv := invoice.New(time.Now())
			if v, _ := cmd.Flags().GetString("number"); v != "" {
				inv.InvoiceNumber = v
			}
			if v, _ := cmd.Flags().GetString("company"); v != "" {
				inv.CompanyName = v
			}
			if v, _ := cmd.Flags().GetString("bill-to"); v != "" {
				inv.BillToName = v
			}
			if path, _ := cmd.Flags().GetString("logo"); path != "" {
				removeBG, _ := cmd.Flags().GetBool("remove-background")
				dataURL, err := loadLogo(ctx, a, path, removeBG)
				if err != nil {
					return err
				}
				inv.CompanyLogo = dataURL
			}
			if err := a.store.Upsert(ctx, inv); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), inv)
		})
	},
}

func loadLogo(ctx context.Context, a *app, path string, removeBG bool) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read logo: %w", err)
	}
	l, err := logo.Prepare(data, a.cfg.Logo.MaxDimension)
	if err != nil {
		return "", err
	}
	if !removeBG {
		return l.DataURL, nil
	}
	out, err := logo.RemoveFromDataURL(ctx, a.remover, l.DataURL)
	if err != nil {
		a.logger.Warn("background removal failed, keeping original logo", "error", err)
		return l.DataURL, nil
	}
	return out, nil
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Save an invoice from a JSON file, recomputing its totals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read invoice: %w", err)
			}
			var inv invoice.Invoice
			if err := json.Unmarshal(raw, &inv); err != nil {
				return fmt.Errorf("parse invoice: %w", err)
			}
			now := time.Now().UTC()
			if inv.ID == "" {
				inv.ID = uuid.NewString()
			}
			if inv.CreatedAt.IsZero() {
				inv.CreatedAt = now
			}
			inv.UpdatedAt = now
			inv = invoice.Recompute(inv)
			if strict, _ := cmd.Flags().GetBool("validate"); strict {
				if err := a.validator.Validate(inv); err != nil {
					return err
				}
			}
			if err := a.store.Upsert(ctx, inv); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", inv.InvoiceNumber, inv.ID)
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved invoices, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			res, err := a.store.Load(ctx)
			if err != nil {
				return err
			}
			if res.Warning != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", res.Warning)
			}
			q, _ := cmd.Flags().GetString("query")
			now := time.Now()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNUMBER\tCLIENT\tDATE\tTOTAL\tSTATUS")
			for _, inv := range invoice.SortByCreatedDesc(invoice.Search(res.Invoices, q)) {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t$%s\t%s\n", inv.ID, inv.InvoiceNumber, inv.BillToName,
					inv.Date.String(), invoice.FormatMoney(inv.Total), invoice.StatusAt(inv, now))
			}
			return tw.Flush()
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print a saved invoice as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			inv, err := a.store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), inv)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a saved invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.store.Delete(ctx, args[0])
		})
	},
}
