package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/voter-support-api/internal/dto"
	"github.com/noah-isme/voter-support-api/internal/models"
	appErrors "github.com/noah-isme/voter-support-api/pkg/errors"
	"github.com/noah-isme/voter-support-api/pkg/events"
)

type supportRequestRepository interface {
	Create(ctx context.Context, req *models.SupportRequest) error
	FindByID(ctx context.Context, id string) (*models.SupportRequest, error)
	UpdateStatus(ctx context.Context, update models.SupportStatusUpdate) (*models.SupportRequest, error)
	Delete(ctx context.Context, id string) error
}

type departmentDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type supportAuditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type supportEventPublisher interface {
	Publish(ctx context.Context, event events.Event)
}

// SupportRequestServiceConfig tunes the lifecycle manager.
type SupportRequestServiceConfig struct {
	StoreTimeout      time.Duration
	StrictTransitions bool
	BulkMaxItems      int
	Now               func() time.Time
}

// SupportRequestService owns the support request lifecycle: intake, status changes and deletion.
type SupportRequestService struct {
	repo        supportRequestRepository
	departments departmentDirectory
	intake      *SupportRequestValidator
	limiter     *RateLimiter
	audit       supportAuditLogger
	publisher   supportEventPublisher
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger

	storeTimeout time.Duration
	strict       bool
	bulkMax      int
	now          func() time.Time
}

// NewSupportRequestService constructs the lifecycle manager. audit, publisher, cache and metrics are optional.
func NewSupportRequestService(repo supportRequestRepository, departments departmentDirectory, intake *SupportRequestValidator, limiter *RateLimiter, audit supportAuditLogger, publisher supportEventPublisher, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg SupportRequestServiceConfig) *SupportRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if intake == nil {
		intake = NewSupportRequestValidator(cfg.Now)
	}
	if cfg.BulkMaxItems <= 0 {
		cfg.BulkMaxItems = 500
	}
	return &SupportRequestService{
		repo:         repo,
		departments:  departments,
		intake:       intake,
		limiter:      limiter,
		audit:        audit,
		publisher:    publisher,
		cache:        cache,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		storeTimeout: cfg.StoreTimeout,
		strict:       cfg.StrictTransitions,
		bulkMax:      cfg.BulkMaxItems,
		now:          cfg.Now,
	}
}

// Submit validates a public submission, applies the cool-down and stores the request as pending.
func (s *SupportRequestService) Submit(ctx context.Context, req dto.SubmitSupportRequest, meta dto.SubmissionMeta) (*dto.SubmitSupportResponse, error) {
	submission, fieldErrs := s.intake.Validate(req)
	if len(fieldErrs) > 0 {
		s.metrics.ObserveSupportSubmission(SubmissionOutcomeInvalid)
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "Please fill in all required fields correctly", fieldErrs)
	}

	if s.departments != nil {
		storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
		exists, err := s.departments.Exists(storeCtx, submission.DepartmentID)
		cancel()
		if err != nil {
			s.metrics.ObserveSupportSubmission(SubmissionOutcomeFailed)
			return nil, supportStoreError(err, "failed to verify department")
		}
		if !exists {
			s.metrics.ObserveSupportSubmission(SubmissionOutcomeInvalid)
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "Please fill in all required fields correctly", map[string]string{
				"departmentId": "Department does not exist",
			})
		}
	}

	var slot *RateLimitSlot
	if s.limiter != nil {
		storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
		granted, err := s.limiter.CheckAndRecord(storeCtx, s.limiter.SubmitterKey(submission), s.now())
		cancel()
		if err != nil {
			if errors.Is(err, appErrors.ErrRateLimited) {
				s.metrics.ObserveSupportSubmission(SubmissionOutcomeRateLimited)
				return nil, err
			}
			s.metrics.ObserveSupportSubmission(SubmissionOutcomeFailed)
			return nil, supportStoreError(err, "failed to check submission rate limit")
		}
		slot = granted
	}

	now := s.now().UTC()
	ipAddress, userAgent := meta.IPAddress, meta.UserAgent
	record := &models.SupportRequest{
		ID:           uuid.NewString(),
		SchoolID:     submission.SchoolID,
		FullName:     submission.FullName,
		DepartmentID: submission.DepartmentID,
		Birthday:     submission.Birthday,
		Email:        submission.Email,
		Message:      submission.Message,
		Status:       models.SupportStatusPending,
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	err := s.repo.Create(storeCtx, record)
	cancel()
	if err != nil {
		s.releaseSlot(ctx, slot)
		s.metrics.ObserveSupportSubmission(SubmissionOutcomeFailed)
		return nil, supportStoreError(err, "failed to save support request")
	}

	s.metrics.ObserveSupportSubmission(SubmissionOutcomeAccepted)
	s.logger.Info("support request submitted", zap.String("request_id", record.ID), zap.String("department_id", record.DepartmentID))
	s.publish(ctx, events.SupportRequestSubmitted, record.ID, "", map[string]interface{}{
		"status":        record.Status,
		"department_id": record.DepartmentID,
	})
	s.invalidateStats(ctx)

	return &dto.SubmitSupportResponse{
		ID:        record.ID,
		Status:    record.Status,
		CreatedAt: record.CreatedAt,
		Message:   "Support request submitted successfully",
	}, nil
}

// Get returns a single request.
func (s *SupportRequestService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.SupportRequest, error) {
	if err := authorizeSupportAdmin(actor); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// UpdateStatus moves one request to a new status and records admin fields.
func (s *SupportRequestService) UpdateStatus(ctx context.Context, id string, req dto.UpdateSupportStatusRequest, actor *models.JWTClaims) (*models.SupportRequest, error) {
	if err := authorizeSupportAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	status, err := parseSupportStatusField(req.Status)
	if err != nil {
		return nil, err
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.applyStatus(ctx, current, status, req.AdminNotes, req.AssignedTo, actor, models.AuditActionSupportStatusUpdate)
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return updated, nil
}

// BulkUpdateStatus applies one status to many requests. Each id succeeds or fails on its own;
// successful updates are never rolled back.
func (s *SupportRequestService) BulkUpdateStatus(ctx context.Context, req dto.BulkUpdateStatusRequest, actor *models.JWTClaims) (*dto.BulkUpdateResult, error) {
	if err := authorizeSupportAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	status, err := parseSupportStatusField(req.Status)
	if err != nil {
		return nil, err
	}
	ids := dedupeIDs(req.IDs)
	if len(ids) > s.bulkMax {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "too many ids", map[string]string{
			"ids": fmt.Sprintf("At most %d ids can be updated at once", s.bulkMax),
		})
	}

	result := &dto.BulkUpdateResult{Requested: len(ids), Results: make([]dto.BulkUpdateItemResult, 0, len(ids))}
	for _, id := range ids {
		item := dto.BulkUpdateItemResult{ID: id}
		updated, err := s.bulkUpdateOne(ctx, id, status, req.AdminNotes, actor)
		if err != nil {
			appErr := appErrors.FromError(err)
			item.Code = appErr.Code
			item.Error = appErr.Message
			result.Failed++
		} else {
			item.Success = true
			item.Status = updated.Status
			result.Succeeded++
		}
		result.Results = append(result.Results, item)
	}

	if result.Succeeded > 0 {
		s.invalidateStats(ctx)
	}
	s.logger.Info("support requests bulk updated",
		zap.String("status", string(status)),
		zap.Int("requested", result.Requested),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.String("actor_id", actor.UserID),
	)
	return result, nil
}

// Delete permanently removes a request.
func (s *SupportRequestService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if err := authorizeSupportAdmin(actor); err != nil {
		return err
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	err = s.repo.Delete(storeCtx, id)
	cancel()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return supportNotFound()
		}
		return supportStoreError(err, "failed to delete support request")
	}

	s.emitAudit(ctx, actor, models.AuditActionSupportDelete, current, nil)
	s.publish(ctx, events.SupportRequestDeleted, id, actor.UserID, map[string]interface{}{"status": current.Status})
	s.invalidateStats(ctx)
	return nil
}

func (s *SupportRequestService) bulkUpdateOne(ctx context.Context, id string, status models.SupportStatus, notes *string, actor *models.JWTClaims) (*models.SupportRequest, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.applyStatus(ctx, current, status, notes, nil, actor, models.AuditActionSupportBulkUpdate)
}

func (s *SupportRequestService) load(ctx context.Context, id string) (*models.SupportRequest, error) {
	id = strings.TrimSpace(id)
	if !validSupportID(id) {
		return nil, supportNotFound()
	}
	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	req, err := s.repo.FindByID(storeCtx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, supportNotFound()
		}
		return nil, supportStoreError(err, "failed to load support request")
	}
	return req, nil
}

// applyStatus writes one status change as a single statement. In strict mode the transition is
// checked against the workflow and the write only lands if the status is still the one read.
func (s *SupportRequestService) applyStatus(ctx context.Context, current *models.SupportRequest, next models.SupportStatus, notes, assignedTo *string, actor *models.JWTClaims, action string) (*models.SupportRequest, error) {
	update := models.SupportStatusUpdate{
		ID:         current.ID,
		Status:     next,
		AdminNotes: trimmedOrNil(notes),
		AssignedTo: trimmedOrNil(assignedTo),
		HandledBy:  optionalString(actor.UserID),
		UpdatedAt:  s.now().UTC(),
	}
	if s.strict {
		if !current.Status.CanTransitionTo(next) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot change status from %s to %s", current.Status, next))
		}
		expected := current.Status
		update.ExpectedStatus = &expected
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	updated, err := s.repo.UpdateStatus(storeCtx, update)
	cancel()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if s.strict {
				return nil, appErrors.Clone(appErrors.ErrConflict, "support request changed concurrently, reload and retry")
			}
			return nil, supportNotFound()
		}
		return nil, supportStoreError(err, "failed to update support request")
	}
	if updated.DepartmentName == nil {
		updated.DepartmentName = current.DepartmentName
	}

	s.metrics.ObserveSupportStatusUpdate(string(next))
	s.emitAudit(ctx, actor, action, current, updated)
	s.publish(ctx, events.SupportRequestStatusChanged, updated.ID, actor.UserID, map[string]interface{}{
		"from": current.Status,
		"to":   updated.Status,
	})
	return updated, nil
}

func (s *SupportRequestService) releaseSlot(ctx context.Context, slot *RateLimitSlot) {
	if s.limiter == nil || slot == nil {
		return
	}
	releaseCtx, cancel := withStoreTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()
	if err := s.limiter.Release(releaseCtx, slot); err != nil {
		s.logger.Warn("failed to release rate limit slot", zap.Error(err))
	}
}

func (s *SupportRequestService) publish(ctx context.Context, eventType, requestID, actorID string, payload map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, events.Event{
		Type:       eventType,
		RequestID:  requestID,
		ActorID:    actorID,
		OccurredAt: s.now().UTC(),
		Payload:    payload,
	})
}

func (s *SupportRequestService) invalidateStats(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, supportStatsCachePattern); err != nil {
		s.logger.Warn("failed to invalidate support statistics", zap.Error(err))
	}
}

func (s *SupportRequestService) emitAudit(ctx context.Context, actor *models.JWTClaims, action string, before, after *models.SupportRequest) {
	if s.audit == nil {
		return
	}
	id := before.ID
	entry := &models.AuditLog{
		UserID:     optionalString(actor.UserID),
		Action:     action,
		Resource:   models.AuditResourceSupportRequest,
		ResourceID: &id,
		OldValues:  auditSnapshot(before),
		NewValues:  auditSnapshot(after),
		IPAddress:  "system",
		UserAgent:  "support-request-service",
	}
	auditCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.audit.CreateAuditLog(auditCtx, entry); err != nil {
		s.logger.Warn("failed to record support audit", zap.String("request_id", id), zap.Error(err))
	}
}

func auditSnapshot(req *models.SupportRequest) []byte {
	if req == nil {
		return nil
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"status":      req.Status,
		"admin_notes": req.AdminNotes,
		"assigned_to": req.AssignedTo,
		"handled_by":  req.HandledBy,
	})
	return payload
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
