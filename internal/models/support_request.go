package models

import (
	"strings"
	"time"
)

// SupportStatus enumerates the triage states of a support request.
type SupportStatus string

const (
	SupportStatusPending    SupportStatus = "pending"
	SupportStatusInProgress SupportStatus = "in_progress"
	SupportStatusResolved   SupportStatus = "resolved"
	SupportStatusClosed     SupportStatus = "closed"
)

// SupportStatuses lists every status in lifecycle order.
var SupportStatuses = []SupportStatus{
	SupportStatusPending,
	SupportStatusInProgress,
	SupportStatusResolved,
	SupportStatusClosed,
}

// ParseSupportStatus accepts "in_progress", "in-progress", "InProgress" and similar spellings.
func ParseSupportStatus(raw string) (SupportStatus, bool) {
	compact := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(raw)))
	for _, status := range SupportStatuses {
		if compact == strings.ReplaceAll(string(status), "_", "") {
			return status, true
		}
	}
	return "", false
}

// Valid reports whether s is a known status.
func (s SupportStatus) Valid() bool {
	for _, status := range SupportStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Terminal reports whether no further voter action is expected.
func (s SupportStatus) Terminal() bool {
	return s == SupportStatusResolved || s == SupportStatusClosed
}

// CanTransitionTo reports whether next is reachable from s under the strict workflow:
// pending -> in_progress -> resolved -> closed, closing from any open state, and
// reopening resolved or closed requests back to in_progress.
func (s SupportStatus) CanTransitionTo(next SupportStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case SupportStatusPending:
		return next == SupportStatusInProgress || next == SupportStatusClosed
	case SupportStatusInProgress:
		return next == SupportStatusResolved || next == SupportStatusClosed
	case SupportStatusResolved:
		return next == SupportStatusClosed || next == SupportStatusInProgress
	case SupportStatusClosed:
		return next == SupportStatusInProgress
	}
	return false
}

// SupportRequest is a voter's request for help, stored in support_requests.
type SupportRequest struct {
	ID             string        `db:"id" json:"id"`
	SchoolID       int64         `db:"school_id" json:"schoolId"`
	FullName       string        `db:"full_name" json:"fullName"`
	DepartmentID   string        `db:"department_id" json:"departmentId"`
	DepartmentName *string       `db:"department_name" json:"departmentName,omitempty"`
	Birthday       time.Time     `db:"birthday" json:"birthday"`
	Email          string        `db:"email" json:"email"`
	Message        string        `db:"message" json:"message"`
	Status         SupportStatus `db:"status" json:"status"`
	AdminNotes     *string       `db:"admin_notes" json:"adminNotes,omitempty"`
	AssignedTo     *string       `db:"assigned_to" json:"assignedTo,omitempty"`
	HandledBy      *string       `db:"handled_by" json:"handledBy,omitempty"`
	ResolvedAt     *time.Time    `db:"resolved_at" json:"resolvedAt,omitempty"`
	IPAddress      *string       `db:"ip_address" json:"-"`
	UserAgent      *string       `db:"user_agent" json:"-"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}

// SupportSubmission is a validated and normalised voter submission.
type SupportSubmission struct {
	SchoolID     int64
	FullName     string
	DepartmentID string
	Birthday     time.Time
	Email        string
	Message      string
}

// SupportRequestFilter captures list and export criteria. DateFrom is inclusive,
// DateTo exclusive.
type SupportRequestFilter struct {
	Status       SupportStatus
	DepartmentID string
	DateFrom     *time.Time
	DateTo       *time.Time
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// SupportStatusUpdate describes one atomic status change.
type SupportStatusUpdate struct {
	ID     string
	Status SupportStatus
	// ExpectedStatus turns the update into a compare-and-set when non-nil.
	ExpectedStatus *SupportStatus
	AdminNotes     *string
	AssignedTo     *string
	HandledBy      *string
	UpdatedAt      time.Time
}

// SupportStatusCount is a grouped count by status.
type SupportStatusCount struct {
	Status SupportStatus `db:"status" json:"status"`
	Count  int           `db:"count" json:"count"`
}

// SupportDepartmentCount is a grouped count by department.
type SupportDepartmentCount struct {
	DepartmentID   string  `db:"department_id" json:"departmentId"`
	DepartmentName *string `db:"department_name" json:"departmentName,omitempty"`
	Count          int     `db:"count" json:"count"`
}

// SupportRecentCounts holds totals for the rolling statistics windows.
type SupportRecentCounts struct {
	Total       int `db:"total"`
	Last24Hours int `db:"last_24_hours"`
	Last7Days   int `db:"last_7_days"`
	Last30Days  int `db:"last_30_days"`
}
