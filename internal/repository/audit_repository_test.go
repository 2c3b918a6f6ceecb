package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/voter-support-api/internal/models"
)

func TestAuditRepositoryCreateAuditLog(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	defer sqlxDB.Close()

	repo := NewAuditRepository(sqlxDB)
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), "admin-1", models.AuditActionSupportDelete, models.AuditResourceSupportRequest, "req-1",
			sqlmock.AnyArg(), sqlmock.AnyArg(), "10.0.0.1", "test", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	userID := "admin-1"
	resourceID := "req-1"
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionSupportDelete,
		Resource:   models.AuditResourceSupportRequest,
		ResourceID: &resourceID,
		OldValues:  []byte(`{"status":"pending"}`),
		IPAddress:  "10.0.0.1",
		UserAgent:  "test",
	}
	require.NoError(t, repo.CreateAuditLog(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepositoryExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	defer sqlxDB.Close()

	repo := NewDepartmentRepository(sqlxDB)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("dept-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.Exists(context.Background(), "dept-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
