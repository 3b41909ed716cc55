// Package console is the operator side of super-admin billing: it keeps the
// fetched invoice list, the filter and the selection, and dispatches actions
// to the billing API.
package console

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/digiurban/billing/internal/clock"
	"github.com/digiurban/billing/internal/config"
	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	"go.uber.org/zap"
)

var (
	ErrActionFailed  = errors.New("action_failed")
	ErrCancelAborted = errors.New("cancel_aborted")
	ErrUnknownID     = errors.New("unknown_invoice")
)

// Source tells where the current invoice list came from.
type Source string

const (
	SourceNone Source = ""
	SourceAPI  Source = "api"
	SourceMock Source = "mock"
)

// State is the operator view. Snapshot hands out copies.
type State struct {
	Invoices  []invoicedomain.Invoice
	Selection []string
	Filter    invoicedomain.Filter
	Source    Source
}

// Confirmer asks the operator before destructive actions.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) (bool, error)

func (f ConfirmFunc) Confirm(prompt string) (bool, error) { return f(prompt) }

type Params struct {
	Log        *zap.Logger
	Clock      clock.Clock
	Config     config.ConsoleConfig
	Tokens     TokenStore
	HTTPClient *http.Client
}

type Controller struct {
	log    *zap.Logger
	clock  clock.Clock
	client *Client

	mu        sync.RWMutex
	invoices  []invoicedomain.Invoice
	selection map[string]struct{}
	filter    invoicedomain.Filter
	source    Source
}

func New(p Params) *Controller {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	tokens := p.Tokens
	if tokens == nil {
		tokens = NewFileTokenStore(p.Config.TokenPath)
	}
	return &Controller{
		log:       log.Named("console"),
		clock:     clk,
		client:    NewClient(p.Config.BaseURL, p.Config.Timeout, tokens, p.HTTPClient),
		selection: map[string]struct{}{},
	}
}

func (c *Controller) Client() *Client {
	return c.client
}

// Refresh replaces the invoice list with a fresh fetch. Any failure swaps in
// the mock list instead of surfacing an error.
func (c *Controller) Refresh(ctx context.Context) Source {
	invoices, err := c.client.ListInvoices(ctx, invoicedomain.Filter{})
	source := SourceAPI
	if err != nil {
		c.log.Warn("invoice fetch failed, using mock data", zap.Error(err))
		invoices = invoicedomain.MockInvoices()
		source = SourceMock
	}
	for i := range invoices {
		if invoices[i].Amount == 0 && len(invoices[i].Items) > 0 {
			invoices[i].Recalculate()
		}
	}

	c.mu.Lock()
	c.invoices = invoices
	c.source = source
	c.mu.Unlock()
	return source
}

func (c *Controller) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	invoices := make([]invoicedomain.Invoice, len(c.invoices))
	copy(invoices, c.invoices)
	return State{
		Invoices:  invoices,
		Selection: c.selectedLocked(),
		Filter:    c.filter,
		Source:    c.source,
	}
}

func (c *Controller) SetFilter(f invoicedomain.Filter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
	return nil
}

// Visible is the filtered invoice list in fetch order.
func (c *Controller) Visible() []invoicedomain.Invoice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return invoicedomain.ApplyFilterAt(c.invoices, c.filter, c.clock.Now())
}

// Metrics aggregates the whole list, ignoring the filter.
func (c *Controller) Metrics() invoicedomain.Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return invoicedomain.ComputeMetrics(c.invoices, c.clock.Now())
}

func (c *Controller) Find(id string) (invoicedomain.Invoice, bool) {
	id = strings.TrimSpace(id)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, inv := range c.invoices {
		if inv.ID.String() == id || strings.EqualFold(inv.Number, id) {
			return inv, true
		}
	}
	return invoicedomain.Invoice{}, false
}

func (c *Controller) Select(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			c.selection[id] = struct{}{}
		}
	}
}

func (c *Controller) Deselect(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.selection, strings.TrimSpace(id))
	}
}

func (c *Controller) Toggle(id string) bool {
	id = strings.TrimSpace(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.selection[id]; ok {
		delete(c.selection, id)
		return false
	}
	c.selection[id] = struct{}{}
	return true
}

func (c *Controller) SelectAllVisible() {
	visible := c.Visible()
	ids := make([]string, 0, len(visible))
	for _, inv := range visible {
		ids = append(ids, inv.ID.String())
	}
	c.Select(ids...)
}

func (c *Controller) ClearSelection() {
	c.mu.Lock()
	c.selection = map[string]struct{}{}
	c.mu.Unlock()
}

func (c *Controller) Selected() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selectedLocked()
}

func (c *Controller) selectedLocked() []string {
	ids := make([]string, 0, len(c.selection))
	for id := range c.selection {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DispatchBulk applies action to the selection. Nothing is sent for an empty
// selection. On success the list is re-fetched once and the selection cleared.
func (c *Controller) DispatchBulk(ctx context.Context, action string) (invoicedomain.BulkActionResult, error) {
	parsed, err := invoicedomain.ParseAction(action)
	if err != nil {
		return invoicedomain.BulkActionResult{}, err
	}
	ids := c.Selected()
	if len(ids) == 0 {
		return invoicedomain.BulkActionResult{}, invoicedomain.ErrEmptySelection
	}

	result, err := c.client.BulkAction(ctx, parsed, ids)
	if err != nil {
		c.log.Error("bulk action failed",
			zap.String("action", string(parsed)),
			zap.Strings("invoice_ids", ids),
			zap.Error(err),
		)
		return invoicedomain.BulkActionResult{}, ErrActionFailed
	}

	c.ClearSelection()
	c.Refresh(ctx)
	return result, nil
}

func (c *Controller) MarkPaid(ctx context.Context, id string) error {
	return c.invoiceAction(ctx, id, invoicedomain.ActionMarkPaid)
}

func (c *Controller) SendReminder(ctx context.Context, id string) error {
	return c.invoiceAction(ctx, id, invoicedomain.ActionSendReminder)
}

// Cancel asks confirm first; a declined prompt sends nothing.
func (c *Controller) Cancel(ctx context.Context, id string, confirm Confirmer) error {
	if confirm == nil {
		return ErrCancelAborted
	}
	label := id
	if inv, ok := c.Find(id); ok {
		label = inv.Number
	}
	ok, err := confirm.Confirm(fmt.Sprintf("Cancel invoice %s?", label))
	if err != nil {
		return err
	}
	if !ok {
		return ErrCancelAborted
	}
	return c.invoiceAction(ctx, id, invoicedomain.ActionCancel)
}

func (c *Controller) invoiceAction(ctx context.Context, id string, action invoicedomain.Action) error {
	id = c.resolveID(id)
	if id == "" {
		return invoicedomain.ErrInvalidID
	}

	if err := c.client.InvoiceAction(ctx, id, action); err != nil {
		c.log.Error("invoice action failed",
			zap.String("action", string(action)),
			zap.String("invoice_id", id),
			zap.Error(err),
		)
		return ErrActionFailed
	}

	c.Refresh(ctx)
	return nil
}

// resolveID accepts an invoice number for convenience.
func (c *Controller) resolveID(id string) string {
	id = strings.TrimSpace(id)
	if inv, ok := c.Find(id); ok {
		return inv.ID.String()
	}
	return id
}

// Export downloads the current filter's export and writes it to
// dir/invoices_<date>.<format>, returning the written path.
func (c *Controller) Export(ctx context.Context, format string, dir string) (string, error) {
	exportFormat := invoicedomain.ExportFormat(strings.ToLower(strings.TrimSpace(format)))
	switch exportFormat {
	case invoicedomain.ExportFormatCSV, invoicedomain.ExportFormatPDF, invoicedomain.ExportFormatXLSX:
	default:
		return "", invoicedomain.ErrInvalidExportFormat
	}

	c.mu.RLock()
	filter := c.filter
	c.mu.RUnlock()

	body, err := c.client.Export(ctx, exportFormat, filter)
	if err != nil {
		c.log.Error("invoice export failed", zap.String("format", string(exportFormat)), zap.Error(err))
		return "", ErrActionFailed
	}

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, ExportFilename(exportFormat, c.clock))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	c.log.Info("invoice export saved", zap.String("path", path), zap.Int("bytes", len(body)))
	return path, nil
}

func ExportFilename(format invoicedomain.ExportFormat, clk clock.Clock) string {
	return fmt.Sprintf("invoices_%s.%s", clk.Now().Format("2006-01-02"), format)
}
