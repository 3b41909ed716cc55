package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderInvoiceReminder(t *testing.T) {
	body, err := Render("invoice_reminder", TemplateData{Values: map[string]any{
		"tenant_name":    "Prefeitura de Santos",
		"invoice_number": "INV-2025-003",
		"period":         "Dezembro 2024",
		"amount":         "R$ 2.500,00",
		"due_date":       "10/01/2025",
		"overdue":        true,
	}})
	require.NoError(t, err)

	assert.Contains(t, body, "INV-2025-003")
	assert.Contains(t, body, "R$ 2.500,00")
	assert.Contains(t, body, "vencida")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("welcome", TemplateData{})
	assert.Error(t, err)
}

func TestBuildMessageHeaders(t *testing.T) {
	msg := string(buildMessage("financeiro@digiurban.com.br", []string{"a@x.gov.br", "b@x.gov.br"}, "Lembrete", "<p>oi</p>"))

	assert.True(t, strings.HasPrefix(msg, "From: financeiro@digiurban.com.br\r\n"))
	assert.Contains(t, msg, "To: a@x.gov.br, b@x.gov.br\r\n")
	assert.Contains(t, msg, "Subject: Lembrete\r\n")
	assert.True(t, strings.HasSuffix(msg, "<p>oi</p>"))
}
