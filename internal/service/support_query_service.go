package service

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/voter-support-api/internal/dto"
	"github.com/noah-isme/voter-support-api/internal/models"
	appErrors "github.com/noah-isme/voter-support-api/pkg/errors"
	"github.com/noah-isme/voter-support-api/pkg/export"
)

const (
	defaultSupportPageSize = 20
	maxSupportPageSize     = 100
	supportExportTitle     = "Chat Support Export"
)

// SupportExportHeaders is the column layout of support request exports.
var SupportExportHeaders = []string{
	"ID", "School ID", "Full Name", "Department", "Birthday", "Email", "Message", "Status",
	"Assigned To", "Admin Notes", "Handled By", "Resolved At", "Created At", "Updated At",
}

type supportRequestReader interface {
	List(ctx context.Context, filter models.SupportRequestFilter) ([]models.SupportRequest, int, error)
	Stream(ctx context.Context, filter models.SupportRequestFilter, fn func(models.SupportRequest) error) error
	CountByStatus(ctx context.Context) ([]models.SupportStatusCount, error)
	CountByDepartment(ctx context.Context) ([]models.SupportDepartmentCount, error)
	CountRecent(ctx context.Context, now time.Time) (*models.SupportRecentCounts, error)
}

// SupportQueryServiceConfig tunes read paths.
type SupportQueryServiceConfig struct {
	StoreTimeout  time.Duration
	ExportTimeout time.Duration
	StatsCacheTTL time.Duration
	Now           func() time.Time
}

// SupportQueryService serves admin listings, exports and statistics. It never mutates requests.
type SupportQueryService struct {
	repo    supportRequestReader
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger

	storeTimeout  time.Duration
	exportTimeout time.Duration
	statsTTL      time.Duration
	now           func() time.Time
	newRowWriter  func(format export.Format, w io.Writer, title string) (export.RowWriter, error)
}

// NewSupportQueryService constructs the query service.
func NewSupportQueryService(repo supportRequestReader, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg SupportQueryServiceConfig) *SupportQueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ExportTimeout <= 0 {
		cfg.ExportTimeout = 2 * time.Minute
	}
	return &SupportQueryService{
		repo:          repo,
		cache:         cache,
		metrics:       metrics,
		logger:        logger,
		storeTimeout:  cfg.StoreTimeout,
		exportTimeout: cfg.ExportTimeout,
		statsTTL:      cfg.StatsCacheTTL,
		now:           cfg.Now,
		newRowWriter:  export.NewRowWriter,
	}
}

// List returns a page of requests, newest first unless another sort is requested.
func (s *SupportQueryService) List(ctx context.Context, filter models.SupportRequestFilter, actor *models.JWTClaims) ([]models.SupportRequest, *models.Pagination, error) {
	if err := authorizeSupportAdmin(actor); err != nil {
		return nil, nil, err
	}
	if err := validateSupportFilter(filter); err != nil {
		return nil, nil, err
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultSupportPageSize
	}
	if filter.PageSize > maxSupportPageSize {
		filter.PageSize = maxSupportPageSize
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	start := time.Now()
	items, total, err := s.repo.List(storeCtx, filter)
	if err != nil {
		return nil, nil, supportStoreError(err, "failed to list support requests")
	}
	s.metrics.ObserveDBQuery("chat_support_list", time.Since(start))
	if items == nil {
		items = []models.SupportRequest{}
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Export streams every request matching filter into w using format. Rows are written as the
// cursor advances; nothing is materialised. It returns the number of rows written.
func (s *SupportQueryService) Export(ctx context.Context, filter models.SupportRequestFilter, format export.Format, w io.Writer, actor *models.JWTClaims) (int, error) {
	if err := authorizeSupportAdmin(actor); err != nil {
		return 0, err
	}
	if err := validateSupportFilter(filter); err != nil {
		return 0, err
	}
	writer, err := s.newRowWriter(format, w, supportExportTitle)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	finished := false
	defer func() {
		if finished {
			return
		}
		if err := writer.Abort(); err != nil {
			s.logger.Warn("abort support export", zap.Error(err))
		}
	}()
	if err := writer.WriteHeader(SupportExportHeaders); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write export header")
	}

	exportCtx, cancel := context.WithTimeout(ctx, s.exportTimeout)
	defer cancel()
	start := time.Now()
	rows := 0
	var writeErr error
	err = s.repo.Stream(exportCtx, filter, func(req models.SupportRequest) error {
		if err := writer.WriteRow(SupportExportRow(req)); err != nil {
			writeErr = err
			return err
		}
		rows++
		return nil
	})
	if err != nil {
		if writeErr != nil {
			return rows, appErrors.Wrap(writeErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write export")
		}
		return rows, supportStoreError(err, "failed to export support requests")
	}
	finished = true
	if err := writer.Close(); err != nil {
		return rows, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalise export")
	}

	s.metrics.ObserveDBQuery("chat_support_export", time.Since(start))
	s.metrics.ObserveSupportExport(string(format), rows)
	s.logger.Info("support requests exported", zap.String("format", string(format)), zap.Int("rows", rows),
		zap.String("filter", describeSupportFilter(filter)), zap.String("actor_id", actor.UserID))
	return rows, nil
}

// Statistics returns grouped counts. The boolean reports whether the summary came from cache.
func (s *SupportQueryService) Statistics(ctx context.Context, actor *models.JWTClaims) (*dto.SupportStatisticsSummary, bool, error) {
	if err := authorizeSupportAdmin(actor); err != nil {
		return nil, false, err
	}

	var cached dto.SupportStatisticsSummary
	if hit, _ := s.cache.Get(ctx, supportStatsCacheKey, &cached); hit {
		return &cached, true, nil
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	start := time.Now()
	now := s.now().UTC()

	byStatus, err := s.repo.CountByStatus(storeCtx)
	if err != nil {
		return nil, false, supportStoreError(err, "failed to count support requests by status")
	}
	byDepartment, err := s.repo.CountByDepartment(storeCtx)
	if err != nil {
		return nil, false, supportStoreError(err, "failed to count support requests by department")
	}
	recent, err := s.repo.CountRecent(storeCtx, now)
	if err != nil {
		return nil, false, supportStoreError(err, "failed to count recent support requests")
	}
	s.metrics.ObserveDBQuery("chat_support_statistics", time.Since(start))

	summary := &dto.SupportStatisticsSummary{
		Total:        recent.Total,
		ByStatus:     make(map[models.SupportStatus]int, len(models.SupportStatuses)),
		ByDepartment: byDepartment,
		Last24Hours:  recent.Last24Hours,
		Last7Days:    recent.Last7Days,
		Last30Days:   recent.Last30Days,
		GeneratedAt:  now,
	}
	for _, status := range models.SupportStatuses {
		summary.ByStatus[status] = 0
	}
	for _, row := range byStatus {
		summary.ByStatus[row.Status] += row.Count
	}
	if summary.ByDepartment == nil {
		summary.ByDepartment = []models.SupportDepartmentCount{}
	}

	if err := s.cache.Set(ctx, supportStatsCacheKey, summary, s.statsTTL); err != nil {
		s.logger.Warn("cache support statistics", zap.Error(err))
	}
	return summary, false, nil
}

// SupportExportRow flattens a request into export columns matching SupportExportHeaders.
func SupportExportRow(req models.SupportRequest) []string {
	department := req.DepartmentID
	if req.DepartmentName != nil && *req.DepartmentName != "" {
		department = *req.DepartmentName
	}
	return []string{
		req.ID,
		strconv.FormatInt(req.SchoolID, 10),
		req.FullName,
		department,
		req.Birthday.Format("2006-01-02"),
		req.Email,
		req.Message,
		string(req.Status),
		derefString(req.AssignedTo),
		derefString(req.AdminNotes),
		derefString(req.HandledBy),
		formatOptionalTime(req.ResolvedAt),
		req.CreatedAt.UTC().Format(time.RFC3339),
		req.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func validateSupportFilter(filter models.SupportRequestFilter) error {
	details := map[string]string{}
	if filter.Status != "" && !filter.Status.Valid() {
		details["status"] = "Status must be one of pending, in_progress, resolved, closed"
	}
	if filter.DateFrom != nil && filter.DateTo != nil && !filter.DateFrom.Before(*filter.DateTo) {
		details["dateTo"] = "dateTo must not be before dateFrom"
	}
	if len(details) > 0 {
		return appErrors.WithDetails(appErrors.ErrValidation, "invalid filter", details)
	}
	return nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func formatOptionalTime(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func describeSupportFilter(filter models.SupportRequestFilter) string {
	return fmt.Sprintf("status=%q department=%q search=%q", filter.Status, filter.DepartmentID, filter.Search)
}
