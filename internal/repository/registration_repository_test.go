package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/ucaes/academic-engine/internal/models"
)

func TestRegistrationRepositoryCreateDuplicateSource(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec("INSERT INTO registrations").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Registration{
		RegistrationNumber:  "UCAES20250001",
		SourceApplicationID: "app-1",
		Level:               models.LevelEntry,
	})
	require.ErrorIs(t, err, ErrDuplicateSource)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryMaxNumberForPrefix(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT registration_number FROM registrations")).
		WithArgs("UCAES2025", "UCAES20259999").
		WillReturnRows(sqlmock.NewRows([]string{"registration_number"}).AddRow("UCAES20250042"))

	number, err := repo.MaxNumberForPrefix(context.Background(), "UCAES2025")
	require.NoError(t, err)
	require.Equal(t, "UCAES20250042", number)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryMaxNumberForPrefixEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT registration_number FROM registrations")).
		WithArgs("UCAES2026", "UCAES20269999").
		WillReturnRows(sqlmock.NewRows([]string{"registration_number"}))

	number, err := repo.MaxNumberForPrefix(context.Background(), "UCAES2026")
	require.NoError(t, err)
	require.Empty(t, number)
	require.NoError(t, mock.ExpectationsWereMet())
}
