package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/voter-support-api/internal/models"
)

// NumericString accepts either a JSON string or a JSON number and keeps its text.
type NumericString string

// UnmarshalJSON implements json.Unmarshaler.
func (n *NumericString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*n = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*n = NumericString(s)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*n = NumericString(number.String())
	return nil
}

// SubmitSupportRequest is the public support form payload.
type SubmitSupportRequest struct {
	SchoolID     NumericString `json:"schoolId"`
	FullName     string        `json:"fullName"`
	DepartmentID string        `json:"departmentId"`
	Birthday     string        `json:"birthday"`
	Email        string        `json:"email"`
	Message      string        `json:"message"`
}

// SubmissionMeta carries request context captured alongside a submission.
type SubmissionMeta struct {
	IPAddress string
	UserAgent string
}

// SubmitSupportResponse acknowledges an accepted submission.
type SubmitSupportResponse struct {
	ID        string               `json:"id"`
	Status    models.SupportStatus `json:"status"`
	CreatedAt time.Time            `json:"createdAt"`
	Message   string               `json:"message"`
}

// UpdateSupportStatusRequest is the admin payload for PUT /chat-support/:id.
type UpdateSupportStatusRequest struct {
	Status     string  `json:"status" validate:"required"`
	AdminNotes *string `json:"adminNotes,omitempty" validate:"omitempty,max=2000"`
	AssignedTo *string `json:"assignedTo,omitempty" validate:"omitempty,max=255"`
}

// BulkUpdateStatusRequest applies a single status to many requests.
type BulkUpdateStatusRequest struct {
	IDs        []string `json:"ids" validate:"required,min=1,dive,required"`
	Status     string   `json:"status" validate:"required"`
	AdminNotes *string  `json:"adminNotes,omitempty" validate:"omitempty,max=2000"`
}

// BulkUpdateItemResult reports the outcome for one id of a bulk update.
type BulkUpdateItemResult struct {
	ID      string               `json:"id"`
	Success bool                 `json:"success"`
	Status  models.SupportStatus `json:"status,omitempty"`
	Code    string               `json:"code,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// BulkUpdateResult aggregates per-id outcomes of a bulk update.
type BulkUpdateResult struct {
	Requested int                    `json:"requested"`
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
	Results   []BulkUpdateItemResult `json:"results"`
}

// SupportStatisticsSummary is returned by GET /chat-support/stats/summary.
type SupportStatisticsSummary struct {
	Total        int                             `json:"total"`
	ByStatus     map[models.SupportStatus]int    `json:"byStatus"`
	ByDepartment []models.SupportDepartmentCount `json:"byDepartment"`
	Last24Hours  int                             `json:"last24Hours"`
	Last7Days    int                             `json:"last7Days"`
	Last30Days   int                             `json:"last30Days"`
	GeneratedAt  time.Time                       `json:"generatedAt"`
}
