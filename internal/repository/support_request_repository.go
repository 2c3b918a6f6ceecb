package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/voter-support-api/internal/models"
)

const supportRequestColumns = `r.id, r.school_id, r.full_name, r.department_id, d.name AS department_name, r.birthday, r.email, r.message,
        r.status, r.admin_notes, r.assigned_to, r.handled_by, r.resolved_at, r.ip_address, r.user_agent, r.created_at, r.updated_at`

const supportRequestFrom = "FROM support_requests r LEFT JOIN departments d ON d.id = r.department_id"

const supportRequestReturning = `id, school_id, full_name, department_id, birthday, email, message, status,
        admin_notes, assigned_to, handled_by, resolved_at, ip_address, user_agent, created_at, updated_at`

var supportRequestSorts = map[string]string{
	"created_at": "r.created_at",
	"createdAt":  "r.created_at",
	"updated_at": "r.updated_at",
	"updatedAt":  "r.updated_at",
	"full_name":  "r.full_name",
	"fullName":   "r.full_name",
	"status":     "r.status",
	"school_id":  "r.school_id",
	"schoolId":   "r.school_id",
}

// SupportRequestRepository persists voter support requests.
type SupportRequestRepository struct {
	db *sqlx.DB
}

// NewSupportRequestRepository constructs the repository.
func NewSupportRequestRepository(db *sqlx.DB) *SupportRequestRepository {
	return &SupportRequestRepository{db: db}
}

// Create inserts a new support request.
func (r *SupportRequestRepository) Create(ctx context.Context, req *models.SupportRequest) error {
	const query = `INSERT INTO support_requests (id, school_id, full_name, department_id, birthday, email, message, status,
        ip_address, user_agent, created_at, updated_at)
VALUES (:id, :school_id, :full_name, :department_id, :birthday, :email, :message, :status,
        COALESCE(:ip_address, ''), COALESCE(:user_agent, ''), :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("insert support request: %w", err)
	}
	return nil
}

// FindByID loads a support request with its department name. Missing rows return sql.ErrNoRows.
func (r *SupportRequestRepository) FindByID(ctx context.Context, id string) (*models.SupportRequest, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE r.id = $1", supportRequestColumns, supportRequestFrom)
	var req models.SupportRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateStatus applies a status change in a single statement. When ExpectedStatus is set the
// row is only touched if its status still matches; otherwise sql.ErrNoRows is returned.
func (r *SupportRequestRepository) UpdateStatus(ctx context.Context, update models.SupportStatusUpdate) (*models.SupportRequest, error) {
	if update.UpdatedAt.IsZero() {
		update.UpdatedAt = time.Now().UTC()
	}
	args := []interface{}{
		update.ID,
		update.Status,
		update.AdminNotes,
		update.AssignedTo,
		update.HandledBy,
		update.Status.Terminal(),
		update.UpdatedAt,
	}
	query := `UPDATE support_requests SET status = $2,
        admin_notes = COALESCE($3, admin_notes),
        assigned_to = COALESCE($4, assigned_to),
        handled_by = COALESCE($5, handled_by),
        resolved_at = CASE WHEN $6::boolean THEN COALESCE(resolved_at, $7) ELSE NULL END,
        updated_at = $7
WHERE id = $1`
	if update.ExpectedStatus != nil {
		query += " AND status = $8"
		args = append(args, *update.ExpectedStatus)
	}
	query += " RETURNING " + supportRequestReturning

	var req models.SupportRequest
	if err := r.db.GetContext(ctx, &req, query, args...); err != nil {
		return nil, err
	}
	return &req, nil
}

// Delete removes a support request permanently. Missing rows return sql.ErrNoRows.
func (r *SupportRequestRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM support_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete support request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete support request rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns a page of support requests matching filter and the total match count.
func (r *SupportRequestRepository) List(ctx context.Context, filter models.SupportRequestFilter) ([]models.SupportRequest, int, error) {
	where, args := buildSupportRequestWhere(filter)
	base := fmt.Sprintf("%s WHERE %s", supportRequestFrom, where)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s\n        %s ORDER BY %s LIMIT %d OFFSET %d", supportRequestColumns, base, supportRequestOrder(filter), size, offset)
	var requests []models.SupportRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list support requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count support requests: %w", err)
	}
	return requests, total, nil
}

// Stream walks every request matching filter through a server-side cursor, invoking fn per row.
// Pagination fields on filter are ignored.
func (r *SupportRequestRepository) Stream(ctx context.Context, filter models.SupportRequestFilter, fn func(models.SupportRequest) error) error {
	where, args := buildSupportRequestWhere(filter)
	query := fmt.Sprintf("SELECT %s\n        %s WHERE %s ORDER BY %s", supportRequestColumns, supportRequestFrom, where, supportRequestOrder(filter))

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("stream support requests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var req models.SupportRequest
		if err := rows.StructScan(&req); err != nil {
			return fmt.Errorf("scan support request: %w", err)
		}
		if err := fn(req); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate support requests: %w", err)
	}
	return nil
}

// CountByStatus groups all requests by status.
func (r *SupportRequestRepository) CountByStatus(ctx context.Context) ([]models.SupportStatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM support_requests GROUP BY status`
	var counts []models.SupportStatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count support requests by status: %w", err)
	}
	return counts, nil
}

// CountByDepartment groups all requests by department, largest first.
func (r *SupportRequestRepository) CountByDepartment(ctx context.Context) ([]models.SupportDepartmentCount, error) {
	const query = `SELECT r.department_id, d.name AS department_name, COUNT(*) AS count
FROM support_requests r LEFT JOIN departments d ON d.id = r.department_id
GROUP BY r.department_id, d.name ORDER BY count DESC, r.department_id ASC`
	var counts []models.SupportDepartmentCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count support requests by department: %w", err)
	}
	return counts, nil
}

// CountRecent returns the overall total and counts created within 24h, 7d and 30d of now.
func (r *SupportRequestRepository) CountRecent(ctx context.Context, now time.Time) (*models.SupportRecentCounts, error) {
	const query = `SELECT COUNT(*) AS total,
        COUNT(*) FILTER (WHERE created_at >= $1) AS last_24_hours,
        COUNT(*) FILTER (WHERE created_at >= $2) AS last_7_days,
        COUNT(*) FILTER (WHERE created_at >= $3) AS last_30_days
FROM support_requests`
	var counts models.SupportRecentCounts
	if err := r.db.GetContext(ctx, &counts, query, now.Add(-24*time.Hour), now.AddDate(0, 0, -7), now.AddDate(0, 0, -30)); err != nil {
		return nil, fmt.Errorf("count recent support requests: %w", err)
	}
	return &counts, nil
}

func buildSupportRequestWhere(filter models.SupportRequestFilter) (string, []interface{}) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("r.department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("r.created_at >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("r.created_at < $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf(`(LOWER(r.full_name) LIKE $%d ESCAPE '\' OR LOWER(r.email) LIKE $%d ESCAPE '\' OR LOWER(r.message) LIKE $%d ESCAPE '\')`, n, n, n))
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(search))+"%")
	}
	return strings.Join(conditions, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func supportRequestOrder(filter models.SupportRequestFilter) string {
	column, ok := supportRequestSorts[filter.SortBy]
	if !ok {
		column = "r.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	return fmt.Sprintf("%s %s, r.id %s", column, order, order)
}
