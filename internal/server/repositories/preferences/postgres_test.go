package preferences

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var prefCols = []string{
	"user_id", "in_app_enabled",
	"email_enabled", "email_expiry_alerts", "email_storage_alerts", "email_security_alerts",
	"push_enabled", "push_expiry_alerts", "push_storage_alerts", "push_security_alerts",
	"alert_30_days", "alert_15_days", "alert_7_days", "alert_1_day", "alert_on_expiry",
	"storage_warning_threshold", "storage_critical_threshold", "created_at", "updated_at",
}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func prefRow(p *models.NotificationPreference) []driver.Value {
	out := make([]driver.Value, 0, len(prefCols))
	for _, v := range values(p) {
		out = append(out, v)
	}
	return append(out, p.CreatedAt, p.UpdatedAt)
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM\s+notification_preferences\s+WHERE\s+user_id\s*=\s*\$1`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(prefCols))

	_, err := repo.Get(context.Background(), "u-1")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestCreate_ReturnsStoredRow(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	stored := models.DefaultPreferences("u-1")
	stored.EmailEnabled = false
	stored.CreatedAt, stored.UpdatedAt = now, now

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+notification_preferences.*ON\s+CONFLICT\s+\(user_id\)\s+DO\s+NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM\s+notification_preferences`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(prefCols).AddRow(prefRow(stored)...))

	got, err := repo.Create(context.Background(), models.DefaultPreferences("u-1"))
	require.NoError(t, err)
	if diff := cmp.Diff(stored, got); diff != "" {
		t.Errorf("stored row mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	p := models.DefaultPreferences("u-1")
	p.StorageWarningThreshold = 70
	p.Alert30Days = false

	want := *p
	want.CreatedAt, want.UpdatedAt = now, now

	args := make([]driver.Value, 0, 17)
	for _, v := range values(p) {
		args = append(args, v)
	}
	mock.ExpectQuery(`(?s)UPDATE\s+notification_preferences.*WHERE\s+user_id\s*=\s*\$1\s+RETURNING`).
		WithArgs(args...).
		WillReturnRows(sqlmock.NewRows(prefCols).AddRow(prefRow(&want)...))

	got, err := repo.Update(context.Background(), p)
	require.NoError(t, err)
	if diff := cmp.Diff(&want, got); diff != "" {
		t.Errorf("updated row mismatch (-want +got):\n%s", diff)
	}
}
