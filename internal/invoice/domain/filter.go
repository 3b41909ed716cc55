package domain

import (
	"strings"
	"time"
	"unicode"
)

// FilterAll is the wildcard value accepted by every filter criterion.
const FilterAll = "all"

// StatusMode selects which status the status criterion compares against.
type StatusMode string

const (
	// StatusModeStored compares the persisted status.
	StatusModeStored StatusMode = "stored"
	// StatusModeEffective compares the status projected at evaluation time,
	// so PENDING invoices past due match OVERDUE.
	StatusModeEffective StatusMode = "effective"
)

// Filter combines the four invoice list criteria with AND semantics.
// An empty value or FilterAll disables a criterion.
type Filter struct {
	TenantID   string     `form:"tenantId" json:"tenant_id,omitempty"`
	Status     string     `form:"status" json:"status,omitempty"`
	Plan       string     `form:"plan" json:"plan,omitempty"`
	Search     string     `form:"search" json:"search,omitempty"`
	StatusMode StatusMode `form:"statusMode" json:"status_mode,omitempty"`
}

func isWildcard(value string) bool {
	value = strings.TrimSpace(value)
	return value == "" || strings.EqualFold(value, FilterAll)
}

// Validate rejects criteria that can never match a well-formed invoice.
func (f Filter) Validate() error {
	if !isWildcard(f.Status) && !InvoiceStatus(strings.ToUpper(strings.TrimSpace(f.Status))).Valid() {
		return ErrInvalidStatusFilter
	}
	if !isWildcard(f.Plan) {
		if !Plan(strings.ToUpper(strings.TrimSpace(f.Plan))).Valid() {
			return ErrInvalidPlan
		}
	}
	switch f.StatusMode {
	case "", StatusModeStored, StatusModeEffective:
	default:
		return ErrInvalidStatusMode
	}
	return nil
}

// Match reports whether inv satisfies every active criterion. now is only
// consulted in StatusModeEffective.
func (f Filter) Match(inv Invoice, now time.Time) bool {
	if !isWildcard(f.TenantID) && inv.TenantID.String() != strings.TrimSpace(f.TenantID) {
		return false
	}

	if !isWildcard(f.Status) {
		status := inv.Status
		if f.StatusMode == StatusModeEffective {
			status = inv.StatusAt(now)
		}
		if !strings.EqualFold(string(status), strings.TrimSpace(f.Status)) {
			return false
		}
	}

	if !isWildcard(f.Plan) && !strings.EqualFold(string(inv.Plan), strings.TrimSpace(f.Plan)) {
		return false
	}

	if f.Search != "" && !matchesSearch(inv, f.Search) {
		return false
	}

	return true
}

// matchesSearch looks for term in the invoice number, tenant name and CNPJ.
// A term made only of digits and CNPJ punctuation also matches the bare CNPJ
// digits, so "46395000" finds "46.395.000/0001-39".
func matchesSearch(inv Invoice, term string) bool {
	term = strings.ToLower(term)
	if strings.Contains(strings.ToLower(inv.Number), term) ||
		strings.Contains(strings.ToLower(inv.Tenant.Name), term) ||
		strings.Contains(strings.ToLower(inv.Tenant.TaxID), term) {
		return true
	}

	digits, ok := cnpjDigits(term)
	return ok && strings.Contains(onlyDigits(inv.Tenant.TaxID), digits)
}

func cnpjDigits(term string) (string, bool) {
	var b strings.Builder
	for _, r := range term {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' || r == '/' || r == '-' || r == ' ':
		default:
			return "", false
		}
	}
	return b.String(), b.Len() > 0
}

func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// ApplyFilter returns the invoices matching f by stored status, in input order.
func ApplyFilter(invoices []Invoice, f Filter) []Invoice {
	f.StatusMode = StatusModeStored
	return ApplyFilterAt(invoices, f, time.Time{})
}

// ApplyFilterAt returns the invoices matching f at now, in input order.
// The input slice is never modified.
func ApplyFilterAt(invoices []Invoice, f Filter, now time.Time) []Invoice {
	out := make([]Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if f.Match(inv, now) {
			out = append(out, inv)
		}
	}
	return out
}
