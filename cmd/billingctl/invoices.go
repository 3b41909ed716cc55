package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/digiurban/billing/internal/clock"
	"github.com/digiurban/billing/internal/console"
	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	"github.com/spf13/cobra"
)

type filterFlags struct {
	tenant    string
	status    string
	plan      string
	search    string
	effective bool
}

func (f *filterFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.tenant, "tenant", invoicedomain.FilterAll, "tenant id or \"all\"")
	flags.StringVar(&f.status, "status", invoicedomain.FilterAll, "PENDING, PAID, OVERDUE, CANCELLED or \"all\"")
	flags.StringVar(&f.plan, "plan", invoicedomain.FilterAll, "STARTER, PROFESSIONAL, ENTERPRISE or \"all\"")
	flags.StringVar(&f.search, "search", "", "match invoice number, tenant name or CNPJ")
	flags.BoolVar(&f.effective, "effective", false, "filter on the status projected today (past-due PENDING reads OVERDUE)")
}

func (f *filterFlags) filter() invoicedomain.Filter {
	out := invoicedomain.Filter{
		TenantID: f.tenant,
		Status:   f.status,
		Plan:     f.plan,
		Search:   f.search,
	}
	if f.effective {
		out.StatusMode = invoicedomain.StatusModeEffective
	}
	return out
}

// load refreshes the controller and warns on stderr when mock data is shown.
func load(ctx context.Context, cmd *cobra.Command, ctrl *console.Controller) {
	if ctrl.Refresh(ctx) == console.SourceMock {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: billing API unavailable, showing sample data")
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var filters filterFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices matching the filter",
		Example: `  billingctl list --status PENDING --plan PROFESSIONAL
  billingctl list --search campinas`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := opts.controller()
			if err := ctrl.SetFilter(filters.filter()); err != nil {
				return err
			}
			load(cmd.Context(), cmd, ctrl)
			return console.RenderTable(cmd.OutOrStdout(), ctrl.Visible(), nil, clock.SystemClock{}.Now())
		},
	}
	filters.register(cmd)
	return cmd
}

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show invoice counts and totals by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := opts.controller()
			load(cmd.Context(), cmd, ctrl)
			return console.RenderMetrics(cmd.OutOrStdout(), ctrl.Metrics())
		},
	}
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|number>",
		Short: "Show one invoice with its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := opts.controller()
			load(cmd.Context(), cmd, ctrl)
			inv, ok := ctrl.Find(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", console.ErrUnknownID, args[0])
			}
			return console.RenderDetail(cmd.OutOrStdout(), inv, clock.SystemClock{}.Now())
		},
	}
}

func newMarkPaidCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mark-paid <id|number>",
		Short: "Mark an invoice as paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := opts.controller()
			load(cmd.Context(), cmd, ctrl)
			if err := ctrl.MarkPaid(cmd.Context(), args[0]); err != nil {
				return actionError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invoice %s marked as paid\n", args[0])
			return nil
		},
	}
}

func newRemindCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remind <id|number>",
		Short: "Send a payment reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := opts.controller()
			load(cmd.Context(), cmd, ctrl)
			if err := ctrl.SendReminder(cmd.Context(), args[0]); err != nil {
				return actionError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reminder sent for invoice %s\n", args[0])
			return nil
		},
	}
}

func newCancelCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "cancel <id|number>",
		Short: "Cancel an invoice after confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := opts.controller()
			load(cmd.Context(), cmd, ctrl)

			var confirm console.Confirmer = promptConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr())
			if yes {
				confirm = console.ConfirmFunc(func(string) (bool, error) { return true, nil })
			}
			if err := ctrl.Cancel(cmd.Context(), args[0], confirm); err != nil {
				if errors.Is(err, console.ErrCancelAborted) {
					fmt.Fprintln(cmd.OutOrStdout(), "cancel aborted")
					return nil
				}
				return actionError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invoice %s cancelled\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newBulkCmd(opts *rootOptions) *cobra.Command {
	var (
		filters    filterFlags
		allVisible bool
	)
	cmd := &cobra.Command{
		Use:   "bulk <send-reminder|mark-paid|cancel> [id...]",
		Short: "Apply one action to several invoices",
		Example: `  billingctl bulk send-reminder 2 4
  billingctl bulk send-reminder --all-visible --status PENDING`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := opts.controller()
			if err := ctrl.SetFilter(filters.filter()); err != nil {
				return err
			}
			load(cmd.Context(), cmd, ctrl)

			for _, ref := range args[1:] {
				if inv, ok := ctrl.Find(ref); ok {
					ctrl.Select(inv.ID.String())
				} else {
					ctrl.Select(ref)
				}
			}
			if allVisible {
				ctrl.SelectAllVisible()
			}

			result, err := ctrl.DispatchBulk(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, invoicedomain.ErrEmptySelection) {
					return errors.New("select at least one invoice")
				}
				return actionError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s applied to %d invoice(s)\n", result.Action, len(result.Processed))
			if len(result.Skipped) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "skipped (reminder cooldown): %s\n", strings.Join(result.Skipped, ", "))
			}
			return nil
		},
	}
	filters.register(cmd)
	cmd.Flags().BoolVar(&allVisible, "all-visible", false, "select every invoice matching the filter")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		filters filterFlags
		format  string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the invoice export",
		Example: `  billingctl export --format csv --out ./exports
  billingctl export --format pdf --status OVERDUE`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := opts.controller()
			if err := ctrl.SetFilter(filters.filter()); err != nil {
				return err
			}
			path, err := ctrl.Export(cmd.Context(), format, out)
			if err != nil {
				return actionError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
			return nil
		},
	}
	filters.register(cmd)
	cmd.Flags().StringVar(&format, "format", string(invoicedomain.ExportFormatCSV), "csv, pdf or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", ".", "directory to save the export in")
	return cmd
}

func promptConfirmer(in io.Reader, out io.Writer) console.Confirmer {
	reader := bufio.NewReader(in)
	return console.ConfirmFunc(func(prompt string) (bool, error) {
		fmt.Fprintf(out, "%s [y/N] ", prompt)
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes", "s", "sim":
			return true, nil
		default:
			return false, nil
		}
	})
}

func actionError(err error) error {
	if errors.Is(err, console.ErrActionFailed) {
		return errors.New("the billing API rejected the request; run with --verbose for details")
	}
	return err
}
