package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

type sequenceCounterRepo interface {
	Ensure(ctx context.Context, prefix string, seed int) error
	Next(ctx context.Context, prefix string) (int, error)
}

type registrationNumberScanner interface {
	MaxNumberForPrefix(ctx context.Context, prefix string) (string, error)
}

// SequenceService allocates year-scoped registration numbers of the form
// <PREFIX><year><zero-padded sequence>. The primary path is an atomic
// per-prefix counter; the lexicographic scan over existing numbers only seeds
// a counter that does not exist yet. When both paths fail the allocator
// degrades to a timestamp-derived suffix: a collision there is acceptable,
// silently reusing a number is not.
type SequenceService struct {
	counters sequenceCounterRepo
	scanner  registrationNumberScanner
	width    int
	logger   *zap.Logger
	now      func() time.Time
}

// NewSequenceService creates a sequence allocator.
func NewSequenceService(counters sequenceCounterRepo, scanner registrationNumberScanner, width int, logger *zap.Logger) *SequenceService {
	if width <= 0 {
		width = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SequenceService{
		counters: counters,
		scanner:  scanner,
		width:    width,
		logger:   logger,
		now:      time.Now,
	}
}

// Allocate returns the next registration number for a prefix.
func (s *SequenceService) Allocate(ctx context.Context, prefix string) (string, error) {
	value, err := s.counters.Next(ctx, prefix)
	if err == sql.ErrNoRows {
		value, err = s.seedAndRetry(ctx, prefix)
	}
	if err != nil {
		s.logger.Warn("sequence counter unavailable, using degraded timestamp suffix",
			zap.String("prefix", prefix), zap.Error(err))
		return s.degraded(prefix), nil
	}
	return s.format(prefix, value), nil
}

// seedAndRetry creates the counter from the highest existing number in the
// prefix range, then increments it. First allocation of a prefix starts at 1.
func (s *SequenceService) seedAndRetry(ctx context.Context, prefix string) (int, error) {
	seed := 0
	max, err := s.scanner.MaxNumberForPrefix(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("seed scan for %s: %w", prefix, err)
	}
	if max != "" {
		suffix := strings.TrimPrefix(max, prefix)
		parsed, parseErr := strconv.Atoi(suffix)
		if parseErr != nil {
			return 0, fmt.Errorf("parse existing number %q: %w", max, parseErr)
		}
		seed = parsed
	}
	if err := s.counters.Ensure(ctx, prefix, seed); err != nil {
		return 0, err
	}
	return s.counters.Next(ctx, prefix)
}

func (s *SequenceService) format(prefix string, value int) string {
	return fmt.Sprintf("%s%0*d", prefix, s.width, value)
}

func (s *SequenceService) degraded(prefix string) string {
	stamp := s.now().UnixNano() % int64(pow10(s.width))
	return fmt.Sprintf("%s%0*d", prefix, s.width, stamp)
}

func pow10(n int) int {
	result := 1
	for i := 0; i < n; i++ {
		result *= 10
	}
	return result
}
