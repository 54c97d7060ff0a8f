package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockCounterRepo struct {
	counters map[string]int
	nextErr  error
	ensures  int
}

func (m *mockCounterRepo) Ensure(ctx context.Context, prefix string, seed int) error {
	m.ensures++
	if m.counters == nil {
		m.counters = make(map[string]int)
	}
	if _, ok := m.counters[prefix]; !ok {
		m.counters[prefix] = seed
	}
	return nil
}

func (m *mockCounterRepo) Next(ctx context.Context, prefix string) (int, error) {
	if m.nextErr != nil {
		return 0, m.nextErr
	}
	if _, ok := m.counters[prefix]; !ok {
		return 0, sql.ErrNoRows
	}
	m.counters[prefix]++
	return m.counters[prefix], nil
}

type mockNumberScanner struct {
	max     string
	scanErr error
}

func (m *mockNumberScanner) MaxNumberForPrefix(ctx context.Context, prefix string) (string, error) {
	if m.scanErr != nil {
		return "", m.scanErr
	}
	return m.max, nil
}

func TestSequenceAllocateFromCounter(t *testing.T) {
	counters := &mockCounterRepo{counters: map[string]int{"UCAES2025": 41}}
	svc := NewSequenceService(counters, &mockNumberScanner{}, 4, zap.NewNop())

	number, err := svc.Allocate(context.Background(), "UCAES2025")
	require.NoError(t, err)
	assert.Equal(t, "UCAES20250042", number)
	assert.Zero(t, counters.ensures)
}

func TestSequenceAllocateSeedsMissingCounter(t *testing.T) {
	counters := &mockCounterRepo{}
	scanner := &mockNumberScanner{max: "UCAES20250007"}
	svc := NewSequenceService(counters, scanner, 4, zap.NewNop())

	number, err := svc.Allocate(context.Background(), "UCAES2025")
	require.NoError(t, err)
	assert.Equal(t, "UCAES20250008", number)
	assert.Equal(t, 1, counters.ensures)
}

func TestSequenceAllocateFirstEver(t *testing.T) {
	svc := NewSequenceService(&mockCounterRepo{}, &mockNumberScanner{}, 4, zap.NewNop())

	number, err := svc.Allocate(context.Background(), "UCAES2025")
	require.NoError(t, err)
	assert.Equal(t, "UCAES20250001", number)
}

func TestSequenceAllocateDegradedFallback(t *testing.T) {
	counters := &mockCounterRepo{nextErr: errors.New("connection refused")}
	svc := NewSequenceService(counters, &mockNumberScanner{}, 4, zap.NewNop())
	svc.now = func() time.Time { return time.Unix(0, 1725000000123456789) }

	number, err := svc.Allocate(context.Background(), "UCAES2025")
	require.NoError(t, err)
	assert.Len(t, number, len("UCAES2025")+4)
	assert.Contains(t, number, "UCAES2025")
}

func TestSequenceAllocateSeedScanFails(t *testing.T) {
	counters := &mockCounterRepo{}
	scanner := &mockNumberScanner{scanErr: errors.New("timeout")}
	svc := NewSequenceService(counters, scanner, 4, zap.NewNop())
	svc.now = func() time.Time { return time.Unix(0, 42) }

	number, err := svc.Allocate(context.Background(), "UCAES2025")
	require.NoError(t, err)
	assert.Equal(t, "UCAES20250042", number)
}
