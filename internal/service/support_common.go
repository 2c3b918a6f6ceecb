package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/voter-support-api/internal/models"
	appErrors "github.com/noah-isme/voter-support-api/pkg/errors"
)

const (
	supportStatsCacheKey     = "chat_support:stats:summary"
	supportStatsCachePattern = "chat_support:stats:*"
	defaultSupportTimeout    = 5 * time.Second
)

// authorizeSupportAdmin guards every administrative support operation, independent of route middleware.
func authorizeSupportAdmin(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.Role.IsSupportAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "support administrator role required")
	}
	return nil
}

// supportStoreError classifies a storage failure as TIMEOUT or STORE_UNAVAILABLE.
func supportStoreError(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return appErrors.Wrap(err, appErrors.ErrTimeout.Code, appErrors.ErrTimeout.Status, message)
	}
	return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, message)
}

func withStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultSupportTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func supportNotFound() error {
	return appErrors.Clone(appErrors.ErrNotFound, "support request not found")
}

// validSupportID rejects ids that cannot exist so they never reach the UUID column.
func validSupportID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func parseSupportStatusField(raw string) (models.SupportStatus, error) {
	status, ok := models.ParseSupportStatus(raw)
	if !ok {
		return "", appErrors.WithDetails(appErrors.ErrValidation, "invalid status", map[string]string{
			"status": "Status must be one of pending, in_progress, resolved, closed",
		})
	}
	return status, nil
}
