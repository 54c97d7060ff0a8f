package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ucaes/academic-engine/internal/models"
	"github.com/ucaes/academic-engine/pkg/config"
	appErrors "github.com/ucaes/academic-engine/pkg/errors"
	"github.com/ucaes/academic-engine/pkg/export"
	"github.com/ucaes/academic-engine/pkg/jobs"
	"github.com/ucaes/academic-engine/pkg/storage"
)

type reportStore interface {
	Create(ctx context.Context, report *models.BatchReport) error
	FindByID(ctx context.Context, id string) (*models.BatchReport, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkFinished(ctx context.Context, id, filePath, resultURL string) error
	MarkFailed(ctx context.Context, id, message string) error
}

type reportJobPayload struct {
	ReportID string
	Type     models.ReportType
	Format   models.ReportFormat
	Title    string
	Dataset  export.Dataset
}

// ReportService turns batch outcomes (sweeps, year transitions, progression
// runs) into downloadable CSV or PDF files. Generation is asynchronous: the
// trigger endpoint returns the queued report row and a worker renders the
// file, stores it and attaches a signed download URL.
type ReportService struct {
	reports reportStore
	store   *storage.LocalStorage
	signer  *storage.SignedURLSigner
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	queue   *jobs.Queue
	cleanup time.Duration
	logger  *zap.Logger
}

// NewReportService creates a report service backed by a worker queue.
func NewReportService(reports reportStore, store *storage.LocalStorage, signer *storage.SignedURLSigner, cfg config.ReportsConfig, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReportService{
		reports: reports,
		store:   store,
		signer:  signer,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		cleanup: cfg.CleanupInterval,
		logger:  logger,
	}
	s.queue = jobs.NewQueue("batch-reports", s.process, jobs.QueueConfig{
		Workers:    2,
		MaxRetries: 1,
		Logger:     logger,
	})
	return s
}

// Start launches the report workers and the cleanup loop.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
	if s.cleanup > 0 {
		go s.cleanupLoop(ctx)
	}
}

// Stop drains the workers.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// Enqueue records a queued report and hands the dataset to the workers.
func (s *ReportService) Enqueue(ctx context.Context, reportType models.ReportType, format models.ReportFormat, createdBy, title string, dataset export.Dataset) (*models.BatchReport, error) {
	if format != models.ReportFormatCSV && format != models.ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report format %q", format))
	}

	report := &models.BatchReport{
		Type:      reportType,
		Format:    format,
		Status:    models.ReportStatusQueued,
		CreatedBy: createdBy,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record report")
	}

	job := jobs.Job{
		ID:   report.ID,
		Type: string(reportType),
		Payload: reportJobPayload{
			ReportID: report.ID,
			Type:     reportType,
			Format:   format,
			Title:    title,
			Dataset:  dataset,
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.failReport(context.Background(), report.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue report")
	}
	return report, nil
}

// Get returns one report row.
func (s *ReportService) Get(ctx context.Context, id string) (*models.BatchReport, error) {
	report, err := s.reports.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	return report, nil
}

// Download validates a signed token and opens the underlying file.
func (s *ReportService) Download(ctx context.Context, token string) (*os.File, *models.BatchReport, error) {
	reportID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}

	report, err := s.Get(ctx, reportID)
	if err != nil {
		return nil, nil, err
	}
	if report.Status != models.ReportStatusFinished || report.FilePath == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "report is not ready")
	}
	if *report.FilePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "token does not match report file")
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open report file")
	}
	return file, report, nil
}

func (s *ReportService) process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(reportJobPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	if err := s.reports.MarkProcessing(ctx, payload.ReportID); err != nil {
		s.logger.Warn("failed to mark report processing",
			zap.String("report_id", payload.ReportID), zap.Error(err))
	}

	var data []byte
	var err error
	switch payload.Format {
	case models.ReportFormatPDF:
		data, err = s.pdf.Render(payload.Dataset, payload.Title)
	default:
		data, err = s.csv.Render(payload.Dataset)
	}
	if err != nil {
		s.failReport(ctx, payload.ReportID, err)
		return err
	}

	filename := fmt.Sprintf("%s/%s.%s", payload.Type, payload.ReportID, payload.Format)
	relPath, err := s.store.Save(filename, data)
	if err != nil {
		s.failReport(ctx, payload.ReportID, err)
		return err
	}

	url, _, err := s.signer.Generate(payload.ReportID, relPath)
	if err != nil {
		s.failReport(ctx, payload.ReportID, err)
		return err
	}

	if err := s.reports.MarkFinished(ctx, payload.ReportID, relPath, url); err != nil {
		s.failReport(ctx, payload.ReportID, err)
		return err
	}

	s.logger.Info("batch report finished",
		zap.String("report_id", payload.ReportID),
		zap.String("type", string(payload.Type)),
		zap.String("format", string(payload.Format)))
	return nil
}

func (s *ReportService) failReport(ctx context.Context, id string, cause error) {
	if err := s.reports.MarkFailed(ctx, id, cause.Error()); err != nil {
		s.logger.Error("failed to settle report as failed",
			zap.String("report_id", id), zap.Error(err))
	}
}

func (s *ReportService) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cleanup)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.store.CleanupOlderThan(s.cleanup)
			if err != nil {
				s.logger.Warn("report cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				s.logger.Info("expired report files removed", zap.Int("count", len(removed)))
			}
		}
	}
}

// SweepDataset flattens a sweep summary into a tabular dataset.
func SweepDataset(summary *models.SweepSummary) export.Dataset {
	rows := make([]map[string]string, 0, len(summary.Items))
	for _, item := range summary.Items {
		rows = append(rows, map[string]string{
			"application_id":      item.ApplicationID,
			"registration_number": item.RegistrationNumber,
			"outcome":             string(item.Outcome),
			"reason":              item.Reason,
		})
	}
	return export.Dataset{
		Headers: []string{"application_id", "registration_number", "outcome", "reason"},
		Rows:    rows,
		Meta: []export.MetaEntry{
			{Key: "total", Value: strconv.Itoa(summary.Total)},
			{Key: "migrated", Value: strconv.Itoa(summary.Migrated)},
			{Key: "skipped", Value: strconv.Itoa(summary.Skipped)},
			{Key: "failed", Value: strconv.Itoa(summary.Failed)},
		},
	}
}

// BatchDataset flattens a progression batch summary into a tabular dataset.
func BatchDataset(summary *models.StudentBatchSummary) export.Dataset {
	rows := make([]map[string]string, 0, len(summary.Items))
	for _, item := range summary.Items {
		rows = append(rows, map[string]string{
			"student_id": item.StudentID,
			"from_level": item.FromLevel,
			"to_level":   item.ToLevel,
			"outcome":    string(item.Outcome),
			"reason":     item.Reason,
		})
	}
	return export.Dataset{
		Headers: []string{"student_id", "from_level", "to_level", "outcome", "reason"},
		Rows:    rows,
		Meta: []export.MetaEntry{
			{Key: "total", Value: strconv.Itoa(summary.Total)},
			{Key: "progressed", Value: strconv.Itoa(summary.Progressed)},
			{Key: "skipped", Value: strconv.Itoa(summary.Skipped)},
			{Key: "errored", Value: strconv.Itoa(summary.Errored)},
		},
	}
}
