package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const invoicesPath = "/api/super-admin/billing/invoices"

// fakeBillingAPI serves the mock invoice list and records every POST.
type fakeBillingAPI struct {
	mu    sync.Mutex
	posts map[string][]byte
}

func newFakeBillingAPI(t *testing.T) (*fakeBillingAPI, *httptest.Server) {
	t.Helper()
	api := &fakeBillingAPI{posts: map[string][]byte{}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeBillingAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet && r.URL.Path == invoicesPath {
		_ = json.NewEncoder(w).Encode(map[string]any{"invoices": invoicedomain.MockInvoices()})
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	body, _ := io.ReadAll(r.Body)
	a.mu.Lock()
	a.posts[r.URL.Path] = body
	a.mu.Unlock()

	if r.URL.Path == invoicesPath+"/bulk-action" {
		var req invoicedomain.BulkActionRequest
		_ = json.Unmarshal(body, &req)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": invoicedomain.BulkActionResult{Action: invoicedomain.Action(req.Action), Processed: req.InvoiceIDs},
		})
		return
	}
	_, _ = w.Write([]byte(`{"data":{}}`))
}

func (a *fakeBillingAPI) posted(path string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	body, ok := a.posts[path]
	return body, ok
}

func (a *fakeBillingAPI) bulkIDs(t *testing.T) []string {
	t.Helper()
	body, ok := a.posted(invoicesPath + "/bulk-action")
	require.True(t, ok, "no bulk request was sent")
	var req invoicedomain.BulkActionRequest
	require.NoError(t, json.Unmarshal(body, &req))
	return req.InvoiceIDs
}

func runBillingctl(t *testing.T, srv *httptest.Server, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{
		"--api", srv.URL,
		"--token-file", filepath.Join(t.TempDir(), "token.json"),
	}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPromptConfirmerAnswers(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"s\n", true},
		{" sim \n", true},
		{"sim", true},
		{"n\n", false},
		{"nao\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tc := range cases {
		t.Run(strings.TrimSpace(tc.input), func(t *testing.T) {
			var prompt bytes.Buffer
			ok, err := promptConfirmer(strings.NewReader(tc.input), &prompt).Confirm("Cancel invoice INV-2025-002?")
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
			assert.Equal(t, "Cancel invoice INV-2025-002? [y/N] ", prompt.String())
		})
	}
}

func TestFilterFlagsEffective(t *testing.T) {
	parse := func(args ...string) invoicedomain.Filter {
		var f filterFlags
		cmd := &cobra.Command{Use: "list"}
		f.register(cmd)
		require.NoError(t, cmd.Flags().Parse(args))
		return f.filter()
	}

	stored := parse("--status", "OVERDUE", "--plan", "STARTER")
	assert.Equal(t, "OVERDUE", stored.Status)
	assert.Equal(t, "STARTER", stored.Plan)
	assert.Equal(t, invoicedomain.FilterAll, stored.TenantID)
	assert.Empty(t, stored.StatusMode)

	effective := parse("--status", "OVERDUE", "--effective")
	assert.Equal(t, invoicedomain.StatusModeEffective, effective.StatusMode)
}

func TestBulkResolvesInvoiceNumbers(t *testing.T) {
	api, srv := newFakeBillingAPI(t)

	out, err := runBillingctl(t, srv, "", "bulk", "send-reminder", "INV-2025-002", "4")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"2", "4"}, api.bulkIDs(t))
	assert.Contains(t, out, "send-reminder applied to 2 invoice(s)")
}

func TestBulkAllVisibleHonoursFilterFlags(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		api, srv := newFakeBillingAPI(t)
		_, err := runBillingctl(t, srv, "", "bulk", "send-reminder", "--all-visible", "--status", "PENDING")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"2", "4"}, api.bulkIDs(t))
	})

	t.Run("status plan and search", func(t *testing.T) {
		api, srv := newFakeBillingAPI(t)
		_, err := runBillingctl(t, srv, "", "bulk", "mark-paid", "--all-visible",
			"--status", "PENDING", "--plan", "PROFESSIONAL", "--search", "sorocaba")
		require.NoError(t, err)
		assert.Equal(t, []string{"4"}, api.bulkIDs(t))
	})

	t.Run("empty selection sends nothing", func(t *testing.T) {
		api, srv := newFakeBillingAPI(t)
		_, err := runBillingctl(t, srv, "", "bulk", "cancel", "--all-visible", "--search", "curitiba")
		require.EqualError(t, err, "select at least one invoice")
		_, sent := api.posted(invoicesPath + "/bulk-action")
		assert.False(t, sent)
	})
}

func TestCancelCommandConfirmation(t *testing.T) {
	t.Run("confirmed in portuguese", func(t *testing.T) {
		api, srv := newFakeBillingAPI(t)
		out, err := runBillingctl(t, srv, "sim\n", "cancel", "INV-2025-002")
		require.NoError(t, err)
		assert.Contains(t, out, "invoice INV-2025-002 cancelled")
		_, sent := api.posted(invoicesPath + "/2/cancel")
		assert.True(t, sent)
	})

	t.Run("declined", func(t *testing.T) {
		api, srv := newFakeBillingAPI(t)
		out, err := runBillingctl(t, srv, "n\n", "cancel", "2")
		require.NoError(t, err)
		assert.Contains(t, out, "cancel aborted")
		_, sent := api.posted(invoicesPath + "/2/cancel")
		assert.False(t, sent)
	})

	t.Run("yes flag skips the prompt", func(t *testing.T) {
		api, srv := newFakeBillingAPI(t)
		_, err := runBillingctl(t, srv, "", "cancel", "--yes", "4")
		require.NoError(t, err)
		_, sent := api.posted(invoicesPath + "/4/cancel")
		assert.True(t, sent)
	})
}
