package console

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/digiurban/billing/internal/clock"
	"github.com/digiurban/billing/internal/config"
	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

type stubAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	invoices []invoicedomain.Invoice
	fail     map[string]int
}

func newStubAPI() *stubAPI {
	return &stubAPI{invoices: invoicedomain.MockInvoices(), fail: map[string]int{}}
}

func (s *stubAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Auth:   r.Header.Get("Authorization"),
		Body:   string(body),
	})
	status, failing := s.fail[r.URL.Path]
	s.mu.Unlock()

	if failing {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"type":"conflict","message":"conflict"}}`))
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == invoicesPath:
		s.mu.Lock()
		payload := map[string]any{"invoices": s.invoices}
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(payload)
	case r.Method == http.MethodPost && r.URL.Path == invoicesPath+"/2/mark-paid":
		s.mu.Lock()
		for i := range s.invoices {
			if s.invoices[i].ID.String() == "2" {
				s.invoices[i].Status = invoicedomain.InvoiceStatusPaid
			}
		}
		s.mu.Unlock()
		_, _ = w.Write([]byte(`{"data":{}}`))
	case r.Method == http.MethodPost && r.URL.Path == invoicesPath+"/bulk-action":
		_, _ = w.Write([]byte(`{"data":{"action":"send-reminder","processed":["2","4"]}}`))
	case r.Method == http.MethodPost:
		_, _ = w.Write([]byte(`{"data":{}}`))
	case r.Method == http.MethodGet && r.URL.Path == invoicesPath+"/export":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write([]byte("Número\nINV-2025-001\n"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *stubAPI) count(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (s *stubAPI) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubAPI) last() recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func newTestController(t *testing.T, baseURL string) *Controller {
	t.Helper()
	return New(Params{
		Log:    zaptest.NewLogger(t),
		Clock:  clock.NewFakeClock(time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)),
		Config: config.ConsoleConfig{BaseURL: baseURL, Timeout: 5 * time.Second},
		Tokens: StaticToken("operator-token"),
	})
}

func newStubController(t *testing.T) (*Controller, *stubAPI) {
	t.Helper()
	api := newStubAPI()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	ctrl := newTestController(t, srv.URL)
	require.Equal(t, SourceAPI, ctrl.Refresh(context.Background()))
	return ctrl, api
}

func TestRefreshUsesAPIWithBearerToken(t *testing.T) {
	ctrl, api := newStubController(t)

	state := ctrl.Snapshot()
	assert.Equal(t, SourceAPI, state.Source)
	assert.Len(t, state.Invoices, 5)
	assert.Equal(t, "Bearer operator-token", api.last().Auth)
	assert.Equal(t, int64(1_000_000), state.Invoices[0].Amount)
}

func TestRefreshFallsBackToMockData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	ctrl := newTestController(t, srv.URL)
	assert.Equal(t, SourceMock, ctrl.Refresh(context.Background()))

	state := ctrl.Snapshot()
	require.Len(t, state.Invoices, 5)
	assert.Equal(t, "INV-2025-001", state.Invoices[0].Number)
}

func TestRefreshFallsBackWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ctrl := newTestController(t, url)
	assert.Equal(t, SourceMock, ctrl.Refresh(context.Background()))
	assert.Len(t, ctrl.Snapshot().Invoices, 5)
}

func TestVisibleAppliesFilter(t *testing.T) {
	ctrl, _ := newStubController(t)

	require.NoError(t, ctrl.SetFilter(invoicedomain.Filter{Status: "PENDING", Plan: "PROFESSIONAL"}))
	visible := ctrl.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, "INV-2025-002", visible[0].Number)
	assert.Equal(t, "INV-2025-004", visible[1].Number)

	require.NoError(t, ctrl.SetFilter(invoicedomain.Filter{Status: "all", Plan: "all", TenantID: "all"}))
	assert.Equal(t, ctrl.Snapshot().Invoices, ctrl.Visible())

	assert.ErrorIs(t, ctrl.SetFilter(invoicedomain.Filter{Status: "late"}), invoicedomain.ErrInvalidStatusFilter)
}

func TestMetricsIgnoreFilter(t *testing.T) {
	ctrl, _ := newStubController(t)
	require.NoError(t, ctrl.SetFilter(invoicedomain.Filter{Status: "PAID"}))

	m := ctrl.Metrics()
	assert.Equal(t, 5, m.Total)
	assert.Equal(t, 1, m.Paid)
	assert.Equal(t, 2, m.Pending)
	assert.Equal(t, 1, m.Overdue)
	assert.Equal(t, int64(3_250_000), m.TotalAmount)
}

func TestSelection(t *testing.T) {
	ctrl, _ := newStubController(t)

	ctrl.Select("3", "1")
	assert.Equal(t, []string{"1", "3"}, ctrl.Selected())

	assert.False(t, ctrl.Toggle("1"))
	assert.True(t, ctrl.Toggle("5"))
	assert.Equal(t, []string{"3", "5"}, ctrl.Selected())

	ctrl.Deselect("3")
	assert.Equal(t, []string{"5"}, ctrl.Selected())

	require.NoError(t, ctrl.SetFilter(invoicedomain.Filter{Plan: "ENTERPRISE"}))
	ctrl.ClearSelection()
	ctrl.SelectAllVisible()
	assert.Equal(t, []string{"1", "5"}, ctrl.Selected())

	ctrl.ClearSelection()
	assert.Empty(t, ctrl.Selected())
}

func TestDispatchBulkEmptySelectionSendsNothing(t *testing.T) {
	ctrl, api := newStubController(t)
	before := api.total()

	_, err := ctrl.DispatchBulk(context.Background(), "mark-paid")
	assert.ErrorIs(t, err, invoicedomain.ErrEmptySelection)
	assert.Equal(t, before, api.total())
}

func TestDispatchBulkRejectsUnknownAction(t *testing.T) {
	ctrl, api := newStubController(t)
	ctrl.Select("2")
	before := api.total()

	_, err := ctrl.DispatchBulk(context.Background(), "refund")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAction)
	assert.Equal(t, before, api.total())
}

func TestDispatchBulkSuccessRefetchesAndClears(t *testing.T) {
	ctrl, api := newStubController(t)
	ctrl.Select("2", "4")

	result, err := ctrl.DispatchBulk(context.Background(), "send-reminder")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "4"}, result.Processed)

	assert.Empty(t, ctrl.Selected())
	assert.Equal(t, 2, api.count(http.MethodGet, invoicesPath))
	assert.Equal(t, 1, api.count(http.MethodPost, invoicesPath+"/bulk-action"))

	var body invoicedomain.BulkActionRequest
	for _, r := range api.requests {
		if r.Path == invoicesPath+"/bulk-action" {
			require.NoError(t, json.Unmarshal([]byte(r.Body), &body))
		}
	}
	assert.Equal(t, "send-reminder", body.Action)
	assert.Equal(t, []string{"2", "4"}, body.InvoiceIDs)
}

func TestDispatchBulkFailureIsGeneric(t *testing.T) {
	ctrl, api := newStubController(t)
	api.fail[invoicesPath+"/bulk-action"] = http.StatusConflict
	ctrl.Select("1", "2")

	_, err := ctrl.DispatchBulk(context.Background(), "mark-paid")
	assert.ErrorIs(t, err, ErrActionFailed)

	assert.Equal(t, []string{"1", "2"}, ctrl.Selected())
	assert.Equal(t, 1, api.count(http.MethodGet, invoicesPath))
	assert.Equal(t, 1, api.count(http.MethodPost, invoicesPath+"/bulk-action"))
}

func TestMarkPaidRefetchesOnce(t *testing.T) {
	ctrl, api := newStubController(t)

	require.NoError(t, ctrl.MarkPaid(context.Background(), "INV-2025-002"))
	assert.Equal(t, 1, api.count(http.MethodPost, invoicesPath+"/2/mark-paid"))
	assert.Equal(t, 2, api.count(http.MethodGet, invoicesPath))

	inv, ok := ctrl.Find("2")
	require.True(t, ok)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, inv.Status)
}

func TestSendReminder(t *testing.T) {
	ctrl, api := newStubController(t)

	require.NoError(t, ctrl.SendReminder(context.Background(), "3"))
	assert.Equal(t, 1, api.count(http.MethodPost, invoicesPath+"/3/send-reminder"))
}

func TestSingleActionFailure(t *testing.T) {
	ctrl, api := newStubController(t)
	api.fail[invoicesPath+"/1/mark-paid"] = http.StatusConflict

	assert.ErrorIs(t, ctrl.MarkPaid(context.Background(), "1"), ErrActionFailed)
	assert.Equal(t, 1, api.count(http.MethodGet, invoicesPath))
}

func TestCancelRequiresConfirmation(t *testing.T) {
	ctrl, api := newStubController(t)

	var prompt string
	declined := ConfirmFunc(func(p string) (bool, error) {
		prompt = p
		return false, nil
	})
	assert.ErrorIs(t, ctrl.Cancel(context.Background(), "4", declined), ErrCancelAborted)
	assert.Equal(t, "Cancel invoice INV-2025-004?", prompt)
	assert.Zero(t, api.count(http.MethodPost, invoicesPath+"/4/cancel"))

	assert.ErrorIs(t, ctrl.Cancel(context.Background(), "4", nil), ErrCancelAborted)

	accepted := ConfirmFunc(func(string) (bool, error) { return true, nil })
	require.NoError(t, ctrl.Cancel(context.Background(), "4", accepted))
	assert.Equal(t, 1, api.count(http.MethodPost, invoicesPath+"/4/cancel"))
}

func TestExportWritesDatedFile(t *testing.T) {
	ctrl, api := newStubController(t)
	require.NoError(t, ctrl.SetFilter(invoicedomain.Filter{Status: "PAID"}))
	dir := filepath.Join(t.TempDir(), "exports")

	path, err := ctrl.Export(context.Background(), "CSV", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "invoices_2025-01-20.csv"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "INV-2025-001")
	assert.Equal(t, "format=csv&status=PAID", api.last().Query)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	ctrl, api := newStubController(t)
	before := api.total()

	_, err := ctrl.Export(context.Background(), "docx", t.TempDir())
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidExportFormat)
	assert.Equal(t, before, api.total())
}

func TestFileTokenStoreReadOnEveryRequest(t *testing.T) {
	api := newStubAPI()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	store := NewFileTokenStore(filepath.Join(t.TempDir(), "digiurban", "token.json"))
	ctrl := New(Params{
		Log:    zaptest.NewLogger(t),
		Clock:  clock.NewFakeClock(time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)),
		Config: config.ConsoleConfig{BaseURL: srv.URL},
		Tokens: store,
	})

	ctrl.Refresh(context.Background())
	assert.Empty(t, api.last().Auth)

	require.NoError(t, store.SetToken("first"))
	ctrl.Refresh(context.Background())
	assert.Equal(t, "Bearer first", api.last().Auth)

	require.NoError(t, store.SetToken("second"))
	ctrl.Refresh(context.Background())
	assert.Equal(t, "Bearer second", api.last().Auth)

	value, err := store.Get(TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "second", value)
}
