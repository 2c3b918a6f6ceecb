package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// DepartmentRepository reads the department reference table.
type DepartmentRepository struct {
	db *sqlx.DB
}

// NewDepartmentRepository constructs the repository.
func NewDepartmentRepository(db *sqlx.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

// Exists reports whether an active department with id exists.
func (r *DepartmentRepository) Exists(ctx context.Context, id string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM departments WHERE id = $1 AND active = TRUE)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		return false, fmt.Errorf("check department: %w", err)
	}
	return exists, nil
}
