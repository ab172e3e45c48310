// Package handler provides the HTTP handlers of the question-answering service.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coverport/policyqa/internal/model"
	"github.com/coverport/policyqa/internal/policyqa/biz"
	"github.com/coverport/policyqa/internal/policyqa/metrics"
)

// defaultQueryTimeout bounds one ask request end to end.
const defaultQueryTimeout = 60 * time.Second

// QAHandler handles question-answering HTTP requests.
type QAHandler struct {
	service      biz.Service
	queryTimeout time.Duration
}

// NewQAHandler creates a QAHandler. A non-positive timeout falls back to the
// default.
func NewQAHandler(service biz.Service, queryTimeout time.Duration) *QAHandler {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &QAHandler{
		service:      service,
		queryTimeout: queryTimeout,
	}
}

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// AskPolicyRequest asks a question against one policy's documents.
type AskPolicyRequest struct {
	TenantID     string `json:"tenant_id" binding:"required"`
	PolicyNumber string `json:"policy_number" binding:"required"`
	Question     string `json:"question" binding:"required"`
}

// AskPolicy answers a policy-scoped question.
func (h *QAHandler) AskPolicy(c *gin.Context) {
	var req AskPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.queryTimeout)
	defer cancel()

	result, err := h.service.AskPolicy(ctx, req.TenantID, req.PolicyNumber, req.Question)
	h.writeQueryResponse(c, ctx, result, err)
}

// AskCommunicationsRequest asks a question against client communications.
// CommunicationType optionally narrows the scope (email, call, letter).
type AskCommunicationsRequest struct {
	TenantID          string `json:"tenant_id" binding:"required"`
	CommunicationType string `json:"communication_type"`
	Question          string `json:"question" binding:"required"`
}

// AskCommunications answers a communications-scoped question.
func (h *QAHandler) AskCommunications(c *gin.Context) {
	var req AskCommunicationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.queryTimeout)
	defer cancel()

	result, err := h.service.AskCommunications(ctx, req.TenantID, req.CommunicationType, req.Question)
	h.writeQueryResponse(c, ctx, result, err)
}

func (h *QAHandler) writeQueryResponse(c *gin.Context, ctx context.Context, result *model.QueryResult, err error) {
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			c.JSON(http.StatusRequestTimeout, ErrorResponse{
				Code:    408,
				Message: "Query timed out. Please try again or simplify your question.",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: result})
}

// IndexDocumentRequest uploads one document for indexing. Content carries the
// raw document bytes, base64-encoded in JSON.
type IndexDocumentRequest struct {
	TenantID          string `json:"tenant_id" binding:"required"`
	DocumentID        string `json:"document_id" binding:"required"`
	DocumentType      string `json:"document_type" binding:"required,oneof=policy communication"`
	PolicyNumber      string `json:"policy_number"`
	CommunicationType string `json:"communication_type"`
	ContentType       string `json:"content_type"`
	Content           []byte `json:"content" binding:"required"`
}

// IndexDocumentResponse reports the indexing outcome.
type IndexDocumentResponse struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Indexed    bool   `json:"indexed"`
}

// IndexDocument extracts, segments, embeds, and indexes one document.
// A document with no extractable text is accepted with zero chunks.
func (h *QAHandler) IndexDocument(c *gin.Context) {
	var req IndexDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	chunks, err := h.service.IndexDocumentBytes(c.Request.Context(), &biz.IndexRequest{
		TenantID:          req.TenantID,
		DocumentID:        req.DocumentID,
		DocumentType:      model.DocumentType(req.DocumentType),
		PolicyNumber:      req.PolicyNumber,
		CommunicationType: req.CommunicationType,
	}, req.Content, req.ContentType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: IndexDocumentResponse{
		DocumentID: req.DocumentID,
		Chunks:     chunks,
		Indexed:    chunks > 0,
	}})
}

// DeleteDocument removes a document's chunks. The tenant id comes from the
// query string; the document id from the path.
func (h *QAHandler) DeleteDocument(c *gin.Context) {
	documentID := c.Param("id")
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "tenant_id query parameter is required"})
		return
	}

	if err := h.service.DeleteDocument(c.Request.Context(), tenantID, documentID); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Document deleted"})
}

// Stats returns index, provider, cache, and metrics state.
func (h *QAHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: stats})
}

// Healthz reports liveness.
func (h *QAHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Metrics serves the Prometheus text exposition.
func (h *QAHandler) Metrics(c *gin.Context) {
	c.String(http.StatusOK, metrics.GetQAMetrics().Export("policyqa", ""))
}
