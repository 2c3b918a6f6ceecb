package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/voter-support-api/internal/dto"
	"github.com/noah-isme/voter-support-api/internal/middleware"
	"github.com/noah-isme/voter-support-api/internal/models"
	appErrors "github.com/noah-isme/voter-support-api/pkg/errors"
	"github.com/noah-isme/voter-support-api/pkg/export"
	"github.com/noah-isme/voter-support-api/pkg/faq"
	"github.com/noah-isme/voter-support-api/pkg/response"
)

const dateOnly = "2006-01-02"

type supportLifecycleService interface {
	Submit(ctx context.Context, req dto.SubmitSupportRequest, meta dto.SubmissionMeta) (*dto.SubmitSupportResponse, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.SupportRequest, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdateSupportStatusRequest, actor *models.JWTClaims) (*models.SupportRequest, error)
	BulkUpdateStatus(ctx context.Context, req dto.BulkUpdateStatusRequest, actor *models.JWTClaims) (*dto.BulkUpdateResult, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

type supportQueryService interface {
	List(ctx context.Context, filter models.SupportRequestFilter, actor *models.JWTClaims) ([]models.SupportRequest, *models.Pagination, error)
	Export(ctx context.Context, filter models.SupportRequestFilter, format export.Format, w io.Writer, actor *models.JWTClaims) (int, error)
	Statistics(ctx context.Context, actor *models.JWTClaims) (*dto.SupportStatisticsSummary, bool, error)
}

type faqCatalog interface {
	List(category string) []faq.Entry
	Categories() []faq.Category
}

// ChatSupportHandler exposes the /chat-support endpoints.
type ChatSupportHandler struct {
	lifecycle supportLifecycleService
	query     supportQueryService
	faqs      faqCatalog
	now       func() time.Time
}

// NewChatSupportHandler builds the handler.
func NewChatSupportHandler(lifecycle supportLifecycleService, query supportQueryService, faqs faqCatalog) *ChatSupportHandler {
	return &ChatSupportHandler{lifecycle: lifecycle, query: query, faqs: faqs, now: time.Now}
}

// Submit godoc
// @Summary Submit a support request
// @Tags ChatSupport
// @Accept json
// @Produce json
// @Param payload body dto.SubmitSupportRequest true "Support request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /chat-support [post]
func (h *ChatSupportHandler) Submit(c *gin.Context) {
	var req dto.SubmitSupportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid support request payload"))
		return
	}
	meta := dto.SubmissionMeta{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
	result, err := h.lifecycle.Submit(c.Request.Context(), req, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// FAQs godoc
// @Summary List FAQ entries
// @Tags ChatSupport
// @Produce json
// @Param category query string false "Category filter"
// @Success 200 {object} response.Envelope
// @Router /chat-support/faqs [get]
func (h *ChatSupportHandler) FAQs(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.faqs.List(c.Query("category")), nil)
}

// FAQCategories godoc
// @Summary List FAQ categories
// @Tags ChatSupport
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /chat-support/faqs/categories [get]
func (h *ChatSupportHandler) FAQCategories(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.faqs.Categories(), nil)
}

// Statistics godoc
// @Summary Support request summary statistics
// @Tags ChatSupport
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /chat-support/stats/summary [get]
func (h *ChatSupportHandler) Statistics(c *gin.Context) {
	summary, cacheHit, err := h.query.Statistics(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export support requests
// @Tags ChatSupport
// @Produce text/csv
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv, xlsx or pdf"
// @Param status query string false "Status filter"
// @Param departmentId query string false "Department filter"
// @Param dateFrom query string false "Inclusive start date (YYYY-MM-DD)"
// @Param dateTo query string false "Inclusive end date (YYYY-MM-DD)"
// @Param search query string false "Free text search"
// @Success 200 {file} file
// @Router /chat-support/export [get]
func (h *ChatSupportHandler) Export(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	filter, err := parseSupportFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("chat-support-%s.%s", h.now().UTC().Format("20060102-150405"), format.Extension())
	c.Header("Content-Type", format.ContentType())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)

	if _, err := h.query.Export(c.Request.Context(), filter, format, c.Writer, claimsFromContext(c)); err != nil {
		if c.Writer.Written() {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Writer.Header().Del("Content-Disposition")
		c.Writer.Header().Del("Content-Type")
		response.Error(c, err)
	}
}

// BulkUpdate godoc
// @Summary Bulk update support request status
// @Tags ChatSupport
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.BulkUpdateStatusRequest true "Bulk update payload"
// @Success 200 {object} response.Envelope
// @Router /chat-support/bulk-update [post]
func (h *ChatSupportHandler) BulkUpdate(c *gin.Context) {
	var req dto.BulkUpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk update payload"))
		return
	}
	result, err := h.lifecycle.BulkUpdateStatus(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List support requests
// @Tags ChatSupport
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter"
// @Param departmentId query string false "Department filter"
// @Param dateFrom query string false "Inclusive start date (YYYY-MM-DD)"
// @Param dateTo query string false "Inclusive end date (YYYY-MM-DD)"
// @Param search query string false "Free text search"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sortBy query string false "Sort column"
// @Param sortOrder query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /chat-support [get]
func (h *ChatSupportHandler) List(c *gin.Context) {
	filter, err := parseSupportFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.query.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get support request
// @Tags ChatSupport
// @Produce json
// @Security BearerAuth
// @Param id path string true "Support request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /chat-support/{id} [get]
func (h *ChatSupportHandler) Get(c *gin.Context) {
	item, err := h.lifecycle.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// UpdateStatus godoc
// @Summary Update support request status
// @Tags ChatSupport
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Support request ID"
// @Param payload body dto.UpdateSupportStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /chat-support/{id} [put]
func (h *ChatSupportHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateSupportStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	item, err := h.lifecycle.UpdateStatus(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete support request
// @Tags ChatSupport
// @Security BearerAuth
// @Param id path string true "Support request ID"
// @Success 204
// @Router /chat-support/{id} [delete]
func (h *ChatSupportHandler) Delete(c *gin.Context) {
	if err := h.lifecycle.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// parseSupportFilter reads list and export query parameters. Date-only bounds are
// inclusive days; the upper bound becomes the following midnight.
func parseSupportFilter(c *gin.Context) (models.SupportRequestFilter, error) {
	details := map[string]string{}
	filter := models.SupportRequestFilter{
		DepartmentID: strings.TrimSpace(c.Query("departmentId")),
		Search:       strings.TrimSpace(c.Query("search")),
		SortBy:       strings.TrimSpace(firstQuery(c, "sortBy", "sort")),
		SortOrder:    strings.TrimSpace(firstQuery(c, "sortOrder", "order")),
	}

	if raw := strings.TrimSpace(c.Query("status")); raw != "" && !strings.EqualFold(raw, "all") {
		if status, ok := models.ParseSupportStatus(raw); ok {
			filter.Status = status
		} else {
			details["status"] = "Status must be one of pending, in_progress, resolved, closed"
		}
	}

	if raw := c.Query("dateFrom"); raw != "" {
		from, _, err := parseFilterDate(raw)
		if err != nil {
			details["dateFrom"] = "dateFrom must be a date (YYYY-MM-DD)"
		} else {
			filter.DateFrom = &from
		}
	}
	if raw := c.Query("dateTo"); raw != "" {
		to, dayOnly, err := parseFilterDate(raw)
		if err != nil {
			details["dateTo"] = "dateTo must be a date (YYYY-MM-DD)"
		} else {
			if dayOnly {
				to = to.AddDate(0, 0, 1)
			}
			filter.DateTo = &to
		}
	}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			details["page"] = "page must be a positive integer"
		}
		filter.Page = page
	}
	if raw := firstQuery(c, "limit", "pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			details["limit"] = "limit must be a positive integer"
		}
		filter.PageSize = size
	}

	if len(details) > 0 {
		return filter, appErrors.WithDetails(appErrors.ErrValidation, "invalid query parameters", details)
	}
	return filter, nil
}

func parseFilterDate(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(dateOnly, raw); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}

func firstQuery(c *gin.Context, keys ...string) string {
	for _, key := range keys {
		if value := c.Query(key); value != "" {
			return value
		}
	}
	return ""
}
