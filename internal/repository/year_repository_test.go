package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/ucaes/academic-engine/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestYearRepositoryFindActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewYearRepository(db)

	rows := sqlmock.NewRows([]string{"id", "label", "start_date", "end_date", "status", "created_at", "updated_at"}).
		AddRow("year-1", "2024/2025", time.Now(), time.Now().AddDate(1, 0, 0), models.PeriodStatusActive, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, label, start_date, end_date, status, created_at, updated_at FROM academic_years WHERE status = $1 LIMIT 1")).
		WithArgs(models.PeriodStatusActive).
		WillReturnRows(rows)

	year, err := repo.FindActive(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2024/2025", year.Label)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestYearRepositoryCountActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewYearRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM academic_years WHERE status = $1")).
		WithArgs(models.PeriodStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	count, err := repo.CountActive(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestYearRepositoryExistsByLabel(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewYearRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM academic_years WHERE label = $1 LIMIT 1")).
		WithArgs("2025/2026").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsByLabel(context.Background(), "2025/2026")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}
