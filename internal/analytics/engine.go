// Package analytics aggregates stored results into per-exam reports.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/repository"
)

// Reader is the read side of the results store the engine needs.
type Reader interface {
	ListMarks(ctx context.Context, f entity.Filter) ([]entity.MarksRow, error)
	FindResults(ctx context.Context, f entity.Filter) ([]entity.StoredResult, error)
}

type Engine struct {
	store  Reader
	logger *slog.Logger
}

func NewEngine(store Reader, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Analyze reports on one class, subject and exam, optionally narrowed to an
// academic year. Subject stats cover every subject of the same class, exam and year.
func (e *Engine) Analyze(ctx context.Context, f entity.Filter) (entity.Analysis, error) {
	start := time.Now()

	rows, err := e.store.ListMarks(ctx, f)
	if err != nil {
		e.logger.Error("analytics.analyze.failed", "stage", "marks", "error", err)
		return entity.Analysis{}, fmt.Errorf("load marks: %w", err)
	}
	a := Compute(repository.GroupMarks(rows))
	a.ClassYear, a.Subject, a.ExamType, a.AcademicYear = f.ClassYear, f.Subject, f.ExamType, f.AcademicYear

	peers, err := e.store.FindResults(ctx, entity.Filter{ClassYear: f.ClassYear, ExamType: f.ExamType, AcademicYear: f.AcademicYear})
	if err != nil {
		e.logger.Error("analytics.analyze.failed", "stage", "subjects", "error", err)
		return entity.Analysis{}, fmt.Errorf("load subject results: %w", err)
	}
	a.SubjectStats = SubjectStatsOf(peers)

	e.logger.Info("analytics.analyze.ok",
		"class_year", f.ClassYear,
		"subject", f.Subject,
		"exam_type", f.ExamType,
		"academic_year", f.AcademicYear,
		"students", a.Overall.TotalStudents,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return a, nil
}
