package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/voter-support-api/internal/dto"
	"github.com/noah-isme/voter-support-api/internal/models"
	appErrors "github.com/noah-isme/voter-support-api/pkg/errors"
	"github.com/noah-isme/voter-support-api/pkg/events"
)

type supportRepoStub struct {
	mu        sync.Mutex
	items     map[string]models.SupportRequest
	createErr error
	finds     int
	updates   int
	deletes   int
}

func newSupportRepoStub() *supportRepoStub {
	return &supportRepoStub{items: map[string]models.SupportRequest{}}
}

func (s *supportRepoStub) Create(ctx context.Context, req *models.SupportRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.items[req.ID] = *req
	return nil
}

func (s *supportRepoStub) FindByID(ctx context.Context, id string) (*models.SupportRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func (s *supportRepoStub) UpdateStatus(ctx context.Context, update models.SupportStatusUpdate) (*models.SupportRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	item, ok := s.items[update.ID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if update.ExpectedStatus != nil && item.Status != *update.ExpectedStatus {
		return nil, sql.ErrNoRows
	}
	item.Status = update.Status
	if update.AdminNotes != nil {
		item.AdminNotes = update.AdminNotes
	}
	if update.AssignedTo != nil {
		item.AssignedTo = update.AssignedTo
	}
	if update.HandledBy != nil {
		item.HandledBy = update.HandledBy
	}
	item.UpdatedAt = update.UpdatedAt
	s.items[update.ID] = item
	return &item, nil
}

func (s *supportRepoStub) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if _, ok := s.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.items, id)
	return nil
}

type departmentStub struct {
	known map[string]bool
}

func (d departmentStub) Exists(ctx context.Context, id string) (bool, error) {
	return d.known[id], nil
}

type auditStub struct {
	logs  []models.AuditLog
	stall bool
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if a.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	a.logs = append(a.logs, *log)
	return nil
}

type publisherStub struct {
	events []events.Event
}

func (p *publisherStub) Publish(ctx context.Context, event events.Event) {
	p.events = append(p.events, event)
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

type supportFixture struct {
	svc       *SupportRequestService
	repo      *supportRepoStub
	audit     *auditStub
	publisher *publisherStub
	clock     *testClock
}

func newSupportFixture(t *testing.T, strict bool) *supportFixture {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)}
	repo := newSupportRepoStub()
	audit := &auditStub{}
	publisher := &publisherStub{}
	limiter := NewRateLimiter(NewMemoryRateLimitStore(), RateLimiterConfig{Cooldown: 5 * time.Minute}, zap.NewNop())
	svc := NewSupportRequestService(repo, departmentStub{known: map[string]bool{"dept-1": true}}, NewSupportRequestValidator(clock.Now), limiter,
		audit, publisher, nil, nil, validator.New(), zap.NewNop(), SupportRequestServiceConfig{
			StrictTransitions: strict,
			BulkMaxItems:      3,
			Now:               clock.Now,
		})
	return &supportFixture{svc: svc, repo: repo, audit: audit, publisher: publisher, clock: clock}
}

func (f *supportFixture) seed(status models.SupportStatus) string {
	id := uuid.NewString()
	f.repo.items[id] = models.SupportRequest{ID: id, SchoolID: 7, FullName: "Seeded", DepartmentID: "dept-1", Status: status}
	return id
}

func supportSubmitRequest() dto.SubmitSupportRequest {
	return dto.SubmitSupportRequest{
		SchoolID:     "20231",
		FullName:     "Jane Voter",
		DepartmentID: "dept-1",
		Birthday:     "2001-09-10",
		Email:        "Jane@Example.edu",
		Message:      "My ballot page keeps loading forever",
	}
}

var adminActor = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

func requireAppCode(t *testing.T, err error, want *appErrors.Error) *appErrors.Error {
	t.Helper()
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected *errors.Error, got %T", err)
	assert.Equal(t, want.Code, appErr.Code)
	assert.Equal(t, want.Status, appErr.Status)
	return appErr
}

func TestSupportRequestServiceSubmitRoundTrip(t *testing.T) {
	f := newSupportFixture(t, false)
	ctx := context.Background()

	resp, err := f.svc.Submit(ctx, supportSubmitRequest(), dto.SubmissionMeta{IPAddress: "10.0.0.1", UserAgent: "browser"})
	require.NoError(t, err)
	assert.Equal(t, models.SupportStatusPending, resp.Status)

	got, err := f.svc.Get(ctx, resp.ID, adminActor)
	require.NoError(t, err)
	assert.Equal(t, int64(20231), got.SchoolID)
	assert.Equal(t, "Jane Voter", got.FullName)
	assert.Equal(t, "dept-1", got.DepartmentID)
	assert.Equal(t, time.Date(2001, 9, 10, 0, 0, 0, 0, time.UTC), got.Birthday)
	assert.Equal(t, "jane@example.edu", got.Email)
	assert.Equal(t, "My ballot page keeps loading forever", got.Message)
	assert.Equal(t, models.SupportStatusPending, got.Status)
	assert.Equal(t, f.clock.now, got.CreatedAt)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.SupportRequestSubmitted, f.publisher.events[0].Type)
}

func TestSupportRequestServiceSubmitWithoutUserAgentStoresEmptyMeta(t *testing.T) {
	f := newSupportFixture(t, false)

	created, err := f.svc.Submit(context.Background(), supportSubmitRequest(), dto.SubmissionMeta{IPAddress: "10.0.0.1"})
	require.NoError(t, err)

	stored := f.repo.items[created.ID]
	require.NotNil(t, stored.UserAgent)
	assert.Equal(t, "", *stored.UserAgent)
	require.NotNil(t, stored.IPAddress)
	assert.Equal(t, "10.0.0.1", *stored.IPAddress)
}

func TestSupportRequestServiceSubmitValidationStoresNothing(t *testing.T) {
	f := newSupportFixture(t, false)
	req := supportSubmitRequest()
	req.Email = "not-an-email"
	req.Message = "too short"

	_, err := f.svc.Submit(context.Background(), req, dto.SubmissionMeta{})
	appErr := requireAppCode(t, err, appErrors.ErrValidation)
	assert.Contains(t, appErr.Details, "email")
	assert.Contains(t, appErr.Details, "message")
	assert.Empty(t, f.repo.items)
}

func TestSupportRequestServiceSubmitUnknownDepartmentKeepsCooldown(t *testing.T) {
	f := newSupportFixture(t, false)
	req := supportSubmitRequest()
	req.DepartmentID = "dept-unknown"

	_, err := f.svc.Submit(context.Background(), req, dto.SubmissionMeta{})
	appErr := requireAppCode(t, err, appErrors.ErrValidation)
	assert.Contains(t, appErr.Details, "departmentId")

	_, err = f.svc.Submit(context.Background(), supportSubmitRequest(), dto.SubmissionMeta{})
	assert.NoError(t, err)
}

func TestSupportRequestServiceSubmitRateLimited(t *testing.T) {
	f := newSupportFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, supportSubmitRequest(), dto.SubmissionMeta{})
	require.NoError(t, err)

	f.clock.now = f.clock.now.Add(2 * time.Minute)
	_, err = f.svc.Submit(ctx, supportSubmitRequest(), dto.SubmissionMeta{})
	appErr := requireAppCode(t, err, appErrors.ErrRateLimited)
	assert.Equal(t, 180, appErr.RetryAfter)
	assert.Len(t, f.repo.items, 1)

	f.clock.now = f.clock.now.Add(3*time.Minute + time.Second)
	_, err = f.svc.Submit(ctx, supportSubmitRequest(), dto.SubmissionMeta{})
	assert.NoError(t, err)
	assert.Len(t, f.repo.items, 2)
}

func TestSupportRequestServiceSubmitStoreFailureReleasesSlot(t *testing.T) {
	f := newSupportFixture(t, false)
	f.repo.createErr = errors.New("connection refused")

	_, err := f.svc.Submit(context.Background(), supportSubmitRequest(), dto.SubmissionMeta{})
	requireAppCode(t, err, appErrors.ErrStoreUnavailable)

	f.repo.createErr = nil
	_, err = f.svc.Submit(context.Background(), supportSubmitRequest(), dto.SubmissionMeta{})
	assert.NoError(t, err)
}

func TestSupportRequestServiceSubmitTimeout(t *testing.T) {
	f := newSupportFixture(t, false)
	f.repo.createErr = context.DeadlineExceeded

	_, err := f.svc.Submit(context.Background(), supportSubmitRequest(), dto.SubmissionMeta{})
	requireAppCode(t, err, appErrors.ErrTimeout)
}

func TestSupportRequestServiceUpdateStatusUnknownIDDoesNotWrite(t *testing.T) {
	f := newSupportFixture(t, false)

	_, err := f.svc.UpdateStatus(context.Background(), uuid.NewString(), dto.UpdateSupportStatusRequest{Status: "resolved"}, adminActor)
	requireAppCode(t, err, appErrors.ErrNotFound)

	_, err = f.svc.UpdateStatus(context.Background(), "faqs", dto.UpdateSupportStatusRequest{Status: "resolved"}, adminActor)
	requireAppCode(t, err, appErrors.ErrNotFound)
	assert.Zero(t, f.repo.updates)
}

func TestSupportRequestServiceUpdateStatusPermissive(t *testing.T) {
	f := newSupportFixture(t, false)
	id := f.seed(models.SupportStatusClosed)
	notes := "  reopened after voter follow-up "

	updated, err := f.svc.UpdateStatus(context.Background(), id, dto.UpdateSupportStatusRequest{Status: "Pending", AdminNotes: &notes}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.SupportStatusPending, updated.Status)
	require.NotNil(t, updated.AdminNotes)
	assert.Equal(t, "reopened after voter follow-up", *updated.AdminNotes)
	require.NotNil(t, updated.HandledBy)
	assert.Equal(t, "admin-1", *updated.HandledBy)

	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionSupportStatusUpdate, f.audit.logs[0].Action)
	assert.JSONEq(t, `{"status":"closed","admin_notes":null,"assigned_to":null,"handled_by":null}`, string(f.audit.logs[0].OldValues))
}

func TestSupportRequestServiceUpdateStatusRejectsUnknownStatus(t *testing.T) {
	f := newSupportFixture(t, false)
	id := f.seed(models.SupportStatusPending)

	_, err := f.svc.UpdateStatus(context.Background(), id, dto.UpdateSupportStatusRequest{Status: "archived"}, adminActor)
	appErr := requireAppCode(t, err, appErrors.ErrValidation)
	assert.Contains(t, appErr.Details, "status")
	assert.Zero(t, f.repo.updates)
}

func TestSupportRequestServiceStrictTransitions(t *testing.T) {
	f := newSupportFixture(t, true)
	id := f.seed(models.SupportStatusPending)

	_, err := f.svc.UpdateStatus(context.Background(), id, dto.UpdateSupportStatusRequest{Status: "resolved"}, adminActor)
	requireAppCode(t, err, appErrors.ErrInvalidTransition)

	updated, err := f.svc.UpdateStatus(context.Background(), id, dto.UpdateSupportStatusRequest{Status: "in_progress"}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.SupportStatusInProgress, updated.Status)
}

func TestSupportRequestServiceBulkUpdatePartialFailure(t *testing.T) {
	f := newSupportFixture(t, false)
	id1 := f.seed(models.SupportStatusPending)
	unknown := uuid.NewString()

	result, err := f.svc.BulkUpdateStatus(context.Background(), dto.BulkUpdateStatusRequest{
		IDs:    []string{id1, unknown, id1},
		Status: "Resolved",
	}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Requested)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Results, 2)
	assert.True(t, result.Results[0].Success)
	assert.Equal(t, models.SupportStatusResolved, result.Results[0].Status)
	assert.False(t, result.Results[1].Success)
	assert.Equal(t, unknown, result.Results[1].ID)
	assert.Equal(t, appErrors.ErrNotFound.Code, result.Results[1].Code)

	assert.Equal(t, models.SupportStatusResolved, f.repo.items[id1].Status)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionSupportBulkUpdate, f.audit.logs[0].Action)
}

func TestSupportRequestServiceBulkUpdateStalledAuditTimesOut(t *testing.T) {
	f := newSupportFixture(t, false)
	f.svc.storeTimeout = 20 * time.Millisecond
	f.audit.stall = true
	ids := []string{f.seed(models.SupportStatusPending), f.seed(models.SupportStatusPending), f.seed(models.SupportStatusPending)}

	started := time.Now()
	result, err := f.svc.BulkUpdateStatus(context.Background(), dto.BulkUpdateStatusRequest{IDs: ids, Status: "resolved"}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Succeeded)
	assert.Less(t, time.Since(started), 2*time.Second)
	assert.Empty(t, f.audit.logs)
}

func TestSupportRequestServiceBulkUpdateLimit(t *testing.T) {
	f := newSupportFixture(t, false)
	ids := []string{uuid.NewString(), uuid.NewString(), uuid.NewString(), uuid.NewString()}

	_, err := f.svc.BulkUpdateStatus(context.Background(), dto.BulkUpdateStatusRequest{IDs: ids, Status: "closed"}, adminActor)
	requireAppCode(t, err, appErrors.ErrValidation)
	assert.Zero(t, f.repo.finds)
}

func TestSupportRequestServiceDelete(t *testing.T) {
	f := newSupportFixture(t, false)
	id := f.seed(models.SupportStatusResolved)

	require.NoError(t, f.svc.Delete(context.Background(), id, adminActor))
	_, err := f.svc.Get(context.Background(), id, adminActor)
	requireAppCode(t, err, appErrors.ErrNotFound)

	err = f.svc.Delete(context.Background(), id, adminActor)
	requireAppCode(t, err, appErrors.ErrNotFound)

	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionSupportDelete, f.audit.logs[0].Action)
	assert.Nil(t, f.audit.logs[0].NewValues)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.SupportRequestDeleted, f.publisher.events[0].Type)
}

func TestSupportRequestServiceAuthorization(t *testing.T) {
	f := newSupportFixture(t, false)
	id := f.seed(models.SupportStatusPending)
	voter := &models.JWTClaims{UserID: "voter-1", Role: models.RoleVoter}

	_, err := f.svc.Get(context.Background(), id, nil)
	requireAppCode(t, err, appErrors.ErrUnauthorized)

	_, err = f.svc.UpdateStatus(context.Background(), id, dto.UpdateSupportStatusRequest{Status: "closed"}, voter)
	requireAppCode(t, err, appErrors.ErrForbidden)

	_, err = f.svc.BulkUpdateStatus(context.Background(), dto.BulkUpdateStatusRequest{IDs: []string{id}, Status: "closed"}, voter)
	requireAppCode(t, err, appErrors.ErrForbidden)

	err = f.svc.Delete(context.Background(), id, voter)
	requireAppCode(t, err, appErrors.ErrForbidden)

	assert.Zero(t, f.repo.finds)
	assert.Zero(t, f.repo.updates)
	assert.Zero(t, f.repo.deletes)
}
