package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/imageprep"
	"github.com/joseph-ayodele/exam-grader/internal/record"
)

// processImage runs one upload through every stage. It never returns an error:
// failures are reported through the outcome.
func (p *Processor) processImage(parent context.Context, batchID string, up Upload) (*entity.ExamRecord, ImageOutcome) {
	rid := common.RequestIDFromContext(parent)
	start := time.Now()
	log := p.logger.With("req_id", rid, "batch_id", batchID, "file", up.Filename)

	skip := func(status constants.ImageStatus, err error) (*entity.ExamRecord, ImageOutcome) {
		log.Warn("pipeline.image.skipped",
			"status", status,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, ImageOutcome{Filename: up.Filename, Status: status, Error: err.Error(), Err: err}
	}

	ext := constants.NormalizeExt(filepath.Ext(up.Filename))
	if !constants.IsAllowedExt(ext) {
		return skip(constants.ImageStatusUnsupported, fmt.Errorf("%w: %q", common.ErrUnsupportedFile, up.Filename))
	}

	ctx, cancel := common.WithTimeout(parent, p.imageTimeout)
	defer cancel()

	path, err := p.stage(up, ext)
	if err != nil {
		return skip(constants.ImageStatusPrepFailed, err)
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warn("pipeline.image.cleanup_failed", "path", path, "error", rmErr)
		}
	}()

	img, err := imageprep.Prepare(path, up.Filename, p.maxDim)
	if err != nil {
		return skip(constants.ImageStatusPrepFailed, err)
	}

	text, err := p.raw.Extract(ctx, img)
	if err != nil {
		return skip(constants.ImageStatusExtractFailed, err)
	}

	candidate, err := p.structured.Structure(ctx, text, img)
	if err != nil {
		return skip(constants.ImageStatusParseFailed, err)
	}

	rec, report, err := record.Inspect(candidate)
	if err != nil {
		return skip(constants.ImageStatusRejected, err)
	}
	if len(report.Repairs) > 0 {
		log.Info("pipeline.image.repaired",
			"repairs", report.Repairs,
			"synthesized", report.SynthesizedKeys,
		)
	}
	if d := rec.Discrepancy(); d != 0 {
		log.Warn("pipeline.image.total_mismatch",
			"roll_number", rec.RollNumber,
			"total_marks", rec.TotalMarks,
			"parts_sum", rec.PartsSum(),
			"discrepancy", d,
		)
	}

	log.Info("pipeline.image.ok",
		"roll_number", rec.RollNumber,
		"total_marks", rec.TotalMarks,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &rec, ImageOutcome{Filename: up.Filename, Status: constants.ImageStatusAccepted}
}

// stage writes the upload to a temp file owned by the caller.
func (p *Processor) stage(up Upload, ext string) (string, error) {
	f, err := os.CreateTemp(p.tempDir, "sheet-*."+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(up.Data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return path, nil
}
