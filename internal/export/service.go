package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

const sheet = "Results"

// Service renders exam records as XLSX workbooks.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// Headers returns the workbook header row: Roll Number, Q1a..Q6d, Total.
func Headers() []string {
	headers := []string{"Roll Number"}
	for _, q := range constants.QuestionKeys() {
		for _, p := range constants.Parts {
			headers = append(headers, q+p)
		}
	}
	return append(headers, "Total")
}

// ExportRecordsXLSX returns a workbook (as bytes) with one row per record,
// in the given order.
func (s *Service) ExportRecordsXLSX(ctx context.Context, records []entity.ExamRecord) ([]byte, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// rename the default sheet rather than adding a second one
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	headers := Headers()
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return nil, fmt.Errorf("xlsx header: %w", err)
	}

	for i, r := range records {
		row := make([]any, 0, len(headers))
		row = append(row, r.RollNumber)
		for _, q := range constants.QuestionKeys() {
			for _, v := range r.Questions[q].Values() {
				row = append(row, v)
			}
		}
		row = append(row, r.TotalMarks)

		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("xlsx row %d: %w", i+2, err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetColWidth(sheet, "A", "A", 16) // roll number
	_ = f.SetColWidth(sheet, "B", lastCol, 6)
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, Split: false, XSplit: 1, YSplit: 1, TopLeftCell: "B2", ActivePane: "bottomRight"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
