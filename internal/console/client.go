package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
)

const (
	invoicesPath   = "/api/super-admin/billing/invoices"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

// StatusError is a non-2xx answer from the billing API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("billing api returned %d: %s", e.StatusCode, e.Body)
}

// Client talks to the super-admin invoice endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
}

func NewClient(baseURL string, timeout time.Duration, tokens TokenStore, httpClient *http.Client) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
	}
}

func (c *Client) ListInvoices(ctx context.Context, filter invoicedomain.Filter) ([]invoicedomain.Invoice, error) {
	var resp struct {
		Invoices []invoicedomain.Invoice `json:"invoices"`
	}
	if err := c.doJSON(ctx, http.MethodGet, invoicesPath+encodeFilter(filter, nil), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Invoices, nil
}

func (c *Client) Summary(ctx context.Context, filter invoicedomain.Filter) (invoicedomain.Metrics, error) {
	var resp struct {
		Data invoicedomain.Metrics `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, invoicesPath+"/summary"+encodeFilter(filter, nil), nil, &resp); err != nil {
		return invoicedomain.Metrics{}, err
	}
	return resp.Data, nil
}

func (c *Client) GetInvoice(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	var resp struct {
		Data invoicedomain.Invoice `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, invoicesPath+"/"+url.PathEscape(id), nil, &resp); err != nil {
		return invoicedomain.Invoice{}, err
	}
	return resp.Data, nil
}

func (c *Client) BulkAction(ctx context.Context, action invoicedomain.Action, ids []string) (invoicedomain.BulkActionResult, error) {
	var resp struct {
		Data invoicedomain.BulkActionResult `json:"data"`
	}
	body := invoicedomain.BulkActionRequest{Action: string(action), InvoiceIDs: ids}
	if err := c.doJSON(ctx, http.MethodPost, invoicesPath+"/bulk-action", body, &resp); err != nil {
		return invoicedomain.BulkActionResult{}, err
	}
	return resp.Data, nil
}

// InvoiceAction posts a single-invoice action without a body.
func (c *Client) InvoiceAction(ctx context.Context, id string, action invoicedomain.Action) error {
	return c.doJSON(ctx, http.MethodPost, invoicesPath+"/"+url.PathEscape(id)+"/"+string(action), nil, nil)
}

// Export downloads the rendered invoice list.
func (c *Client) Export(ctx context.Context, format invoicedomain.ExportFormat, filter invoicedomain.Filter) ([]byte, error) {
	extra := url.Values{"format": []string{string(format)}}
	resp, err := c.do(ctx, http.MethodGet, invoicesPath+"/export"+encodeFilter(filter, extra), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return resp, nil
}

func encodeFilter(f invoicedomain.Filter, extra url.Values) string {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	set := func(key, value string) {
		value = strings.TrimSpace(value)
		if value != "" && !strings.EqualFold(value, invoicedomain.FilterAll) {
			q.Set(key, value)
		}
	}
	set("tenantId", f.TenantID)
	set("status", f.Status)
	set("plan", f.Plan)
	set("search", f.Search)
	set("statusMode", string(f.StatusMode))
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
