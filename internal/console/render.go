package console

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"charm.land/lipgloss/v2"
	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	"github.com/digiurban/billing/internal/invoice/format"
)

var (
	badgeBase = lipgloss.NewStyle().Bold(true).Padding(0, 1)

	statusBadges = map[invoicedomain.InvoiceStatus]lipgloss.Style{
		invoicedomain.InvoiceStatusPaid:      badgeBase.Foreground(lipgloss.Color("2")),
		invoicedomain.InvoiceStatusPending:   badgeBase.Foreground(lipgloss.Color("3")),
		invoicedomain.InvoiceStatusOverdue:   badgeBase.Foreground(lipgloss.Color("1")),
		invoicedomain.InvoiceStatusCancelled: badgeBase.Foreground(lipgloss.Color("8")),
	}

	headingStyle = lipgloss.NewStyle().Bold(true)
)

// StatusBadge renders a status label coloured by status.
func StatusBadge(status invoicedomain.InvoiceStatus) string {
	style, ok := statusBadges[status]
	if !ok {
		style = badgeBase
	}
	return style.Render(format.StatusLabel(status))
}

// RenderTable writes invoices as an aligned table. The status badge sits in
// the last column so ANSI sequences do not skew alignment.
func RenderTable(w io.Writer, invoices []invoicedomain.Invoice, selected []string, now time.Time) error {
	marks := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		marks[id] = struct{}{}
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, " \tID\tNÚMERO\tPREFEITURA\tPLANO\tPERÍODO\tVENCIMENTO\tVALOR\tSTATUS")
	for _, inv := range invoices {
		mark := " "
		if _, ok := marks[inv.ID.String()]; ok {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			mark,
			inv.ID.String(),
			inv.Number,
			inv.Tenant.Name,
			inv.Plan,
			inv.Period,
			format.Date(inv.DueDate),
			format.BRL(inv.Amount),
			StatusBadge(inv.StatusAt(now)),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := lipgloss.Fprint(w, b.String())
	return err
}

// RenderMetrics writes the summary cards.
func RenderMetrics(w io.Writer, m invoicedomain.Metrics) error {
	var b strings.Builder
	b.WriteString(headingStyle.Render("Resumo de faturamento"))
	b.WriteString("\n")

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total\t%d\t%s\n", m.Total, format.BRL(m.TotalAmount))
	fmt.Fprintf(tw, "Pendentes\t%d\t%s\n", m.Pending, format.BRL(m.PendingAmount))
	fmt.Fprintf(tw, "Pagas\t%d\t%s\n", m.Paid, format.BRL(m.PaidAmount))
	fmt.Fprintf(tw, "Vencidas\t%d\t%s\n", m.Overdue, format.BRL(m.OverdueAmount))
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := lipgloss.Fprint(w, b.String())
	return err
}

// RenderDetail writes one invoice with its items and totals.
func RenderDetail(w io.Writer, inv invoicedomain.Invoice, now time.Time) error {
	var b strings.Builder
	b.WriteString(headingStyle.Render(inv.Number))
	b.WriteString(" ")
	b.WriteString(StatusBadge(inv.StatusAt(now)))
	b.WriteString("\n")

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Prefeitura\t%s\n", inv.Tenant.Name)
	fmt.Fprintf(tw, "CNPJ\t%s\n", inv.Tenant.TaxID)
	fmt.Fprintf(tw, "Plano\t%s\n", inv.Plan)
	fmt.Fprintf(tw, "Período\t%s\n", inv.Period)
	fmt.Fprintf(tw, "Emissão\t%s\n", format.Date(inv.CreatedAt))
	fmt.Fprintf(tw, "Vencimento\t%s\n", format.Date(inv.DueDate))
	if inv.PaidAt != nil {
		fmt.Fprintf(tw, "Pago em\t%s\n", format.Date(*inv.PaidAt))
	}
	if inv.CancelledAt != nil {
		fmt.Fprintf(tw, "Cancelado em\t%s\n", format.Date(*inv.CancelledAt))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "DESCRIÇÃO\tQTD\tUNITÁRIO\tTOTAL")
	for _, item := range inv.Items {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
			item.Description,
			item.Quantity,
			format.BRL(item.UnitPrice),
			format.BRL(item.LineTotal()),
		)
	}
	fmt.Fprintf(tw, "\t\tTotal\t%s\n", format.BRL(inv.Amount))
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := lipgloss.Fprint(w, b.String())
	return err
}
