package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	"github.com/gin-gonic/gin"
)

type cancelInvoiceRequest struct {
	Reason string `json:"reason"`
}

func bindInvoiceFilter(c *gin.Context) (invoicedomain.Filter, error) {
	var filter invoicedomain.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		return invoicedomain.Filter{}, invalidRequestError()
	}
	return filter, nil
}

func (s *Server) ListInvoices(c *gin.Context) {
	filter, err := bindInvoiceFilter(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListInvoiceRequest{Filter: filter})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoices": resp.Invoices})
}

func (s *Server) GetInvoiceSummary(c *gin.Context) {
	filter, err := bindInvoiceFilter(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	metrics, err := s.invoiceSvc.Summary(c.Request.Context(), invoicedomain.ListInvoiceRequest{Filter: filter})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": metrics})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	item, err := s.invoiceSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) MarkInvoicePaid(c *gin.Context) {
	item, err := s.invoiceSvc.MarkPaid(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) SendInvoiceReminder(c *gin.Context) {
	item, err := s.invoiceSvc.SendReminder(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) CancelInvoice(c *gin.Context) {
	var body cancelInvoiceRequest
	// The body is optional; an empty request cancels without a reason.
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.invoiceSvc.Cancel(c.Request.Context(), invoicedomain.CancelInvoiceRequest{
		ID:     strings.TrimSpace(c.Param("id")),
		Reason: body.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) BulkInvoiceAction(c *gin.Context) {
	var req invoicedomain.BulkActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	c.Set("bulk_action", strings.TrimSpace(req.Action))

	result, err := s.invoiceSvc.BulkAction(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ExportInvoices(c *gin.Context) {
	filter, err := bindInvoiceFilter(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	file, err := s.invoiceSvc.Export(c.Request.Context(), invoicedomain.ExportRequest{
		Format: c.Query("format"),
		Filter: filter,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	writeAttachment(c, file)
}

func (s *Server) DownloadInvoicePDF(c *gin.Context) {
	file, err := s.invoiceSvc.Document(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	writeAttachment(c, file)
}

func writeAttachment(c *gin.Context, file invoicedomain.ExportFile) {
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}))
	c.Data(http.StatusOK, file.ContentType, file.Body)
}
