// Package grading ties the batch pipeline to storage, analytics, export and
// the per-session review list.
package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/joseph-ayodele/exam-grader/internal/analytics"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/export"
	"github.com/joseph-ayodele/exam-grader/internal/pipeline"
	"github.com/joseph-ayodele/exam-grader/internal/record"
	"github.com/joseph-ayodele/exam-grader/internal/repository"
	"github.com/joseph-ayodele/exam-grader/internal/review"
)

// BatchProcessor turns uploads into validated records.
type BatchProcessor interface {
	Process(ctx context.Context, uploads []pipeline.Upload, bc entity.BatchContext) (pipeline.BatchResult, error)
}

// Service handles grading business logic.
type Service struct {
	processor BatchProcessor
	repo      repository.ResultRepository
	analytics *analytics.Engine
	exporter  *export.Service
	pending   *review.Store
	logger    *slog.Logger
}

func NewService(
	processor BatchProcessor,
	repo repository.ResultRepository,
	engine *analytics.Engine,
	exporter *export.Service,
	pending *review.Store,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if pending == nil {
		pending = review.NewStore()
	}
	return &Service{
		processor: processor,
		repo:      repo,
		analytics: engine,
		exporter:  exporter,
		pending:   pending,
		logger:    logger,
	}
}

// UploadResult is the outcome of one graded upload.
type UploadResult struct {
	BatchID     string                  `json:"batch_id"`
	Message     string                  `json:"message"`
	Saved       int                     `json:"saved"`
	Records     []entity.ExamRecord     `json:"results"`
	Outcomes    []pipeline.ImageOutcome `json:"outcomes"`
	StoreErrors []string                `json:"store_errors,omitempty"`
}

// Upload grades the files, stores every accepted record and makes the batch
// the session's pending list.
func (s *Service) Upload(ctx context.Context, uploads []pipeline.Upload, bc entity.BatchContext) (UploadResult, error) {
	bc.Classification = normalizeClassification(bc.Classification)
	if err := common.ValidateStruct(bc.Classification); err != nil {
		return UploadResult{}, err
	}
	if len(uploads) == 0 {
		return UploadResult{}, fmt.Errorf("%w: no files uploaded", common.ErrInvalidInput)
	}

	ctx, rid := common.EnsureRequestID(ctx)
	bc.RequestID = rid

	batch, err := s.processor.Process(ctx, uploads, bc)
	if err != nil {
		return UploadResult{BatchID: batch.BatchID, Outcomes: batch.Outcomes}, err
	}

	saved, storeErrs := s.repo.Upsert(ctx, batch.Records, bc.Classification)
	out := UploadResult{
		BatchID:  batch.BatchID,
		Message:  fmt.Sprintf("Successfully processed %d files", len(batch.Records)),
		Saved:    saved,
		Records:  batch.Records,
		Outcomes: batch.Outcomes,
	}
	for _, e := range storeErrs {
		out.StoreErrors = append(out.StoreErrors, e.Error())
	}
	if saved == 0 && len(storeErrs) > 0 {
		return out, fmt.Errorf("%w: %w", common.ErrDatabase, errors.Join(storeErrs...))
	}

	if bc.SessionID != "" {
		s.pending.Put(bc.SessionID, bc.Classification, batch.Records)
	}

	s.logger.Info("grading.upload.ok",
		"req_id", rid,
		"batch_id", batch.BatchID,
		"accepted", len(batch.Records),
		"saved", saved,
		"store_failures", len(storeErrs),
	)
	return out, nil
}

// DeleteResult removes the results matching ref.
func (s *Service) DeleteResult(ctx context.Context, ref entity.ResultRef) error {
	ref = normalizeRef(ref)
	if err := common.ValidateStruct(ref); err != nil {
		return err
	}
	found, err := s.repo.Delete(ctx, ref)
	if err != nil {
		return common.WrapError(err, "delete result")
	}
	if !found {
		return common.ErrResultNotFound
	}
	s.logger.Info("grading.delete.ok", "roll_number", ref.RollNumber, "subject", ref.Subject)
	return nil
}

// UpdateResult overwrites the marks of the results matching ref. Parts are
// repaired the same way extracted records are.
func (s *Service) UpdateResult(ctx context.Context, ref entity.ResultRef, questions entity.Questions, total float64) error {
	ref = normalizeRef(ref)
	if err := common.ValidateStruct(ref); err != nil {
		return err
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return fmt.Errorf("%w: total_marks must be a number", common.ErrInvalidInput)
	}
	found, err := s.repo.Update(ctx, ref, record.RepairQuestions(questions), math.Max(total, 0))
	if err != nil {
		return common.WrapError(err, "update result")
	}
	if !found {
		return common.ErrResultNotFound
	}
	s.logger.Info("grading.update.ok", "roll_number", ref.RollNumber, "subject", ref.Subject)
	return nil
}

func (s *Service) Analyze(ctx context.Context, f entity.Filter) (entity.Analysis, error) {
	return s.analytics.Analyze(ctx, normalizeFilter(f))
}

// ViewMarks lists stored results with their question marks.
func (s *Service) ViewMarks(ctx context.Context, f entity.Filter) ([]entity.StoredResult, error) {
	rows, err := s.repo.ListMarks(ctx, normalizeFilter(f))
	if err != nil {
		return nil, err
	}
	return repository.GroupMarks(rows), nil
}

func (s *Service) FilterOptions(ctx context.Context) (entity.FilterOptions, error) {
	return s.repo.DistinctValues(ctx)
}

// Pending returns the session's pending records.
func (s *Service) Pending(session string) ([]entity.ExamRecord, entity.Classification) {
	return s.pending.Get(session)
}

// DeleteLast drops the last pending record of the session. Stored rows are
// left untouched.
func (s *Service) DeleteLast(session string) (entity.ExamRecord, error) {
	rec, ok := s.pending.DeleteLast(session)
	if !ok {
		return entity.ExamRecord{}, fmt.Errorf("%w: no pending results", common.ErrNotFound)
	}
	return rec, nil
}

// ExportPending renders the session's pending records as XLSX.
func (s *Service) ExportPending(ctx context.Context, session string) ([]byte, error) {
	records, _ := s.pending.Get(session)
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no results to export", common.ErrNotFound)
	}
	return s.exporter.ExportRecordsXLSX(ctx, records)
}

func normalizeClassification(c entity.Classification) entity.Classification {
	c.ClassYear = strings.TrimSpace(c.ClassYear)
	c.Subject = strings.TrimSpace(c.Subject)
	c.ExamType = strings.TrimSpace(c.ExamType)
	c.AcademicYear = strings.TrimSpace(c.AcademicYear)
	if c.AcademicYear == "" {
		c.AcademicYear = entity.CurrentAcademicYear()
	}
	return c
}

func normalizeRef(r entity.ResultRef) entity.ResultRef {
	r.RollNumber = strings.TrimSpace(r.RollNumber)
	r.ClassYear = strings.TrimSpace(r.ClassYear)
	r.Subject = strings.TrimSpace(r.Subject)
	r.ExamType = strings.TrimSpace(r.ExamType)
	r.AcademicYear = strings.TrimSpace(r.AcademicYear)
	return r
}

func normalizeFilter(f entity.Filter) entity.Filter {
	f.ClassYear = strings.TrimSpace(f.ClassYear)
	f.Subject = strings.TrimSpace(f.Subject)
	f.ExamType = strings.TrimSpace(f.ExamType)
	f.AcademicYear = strings.TrimSpace(f.AcademicYear)
	return f
}
