package extract

import (
	"context"

	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

// Image is a prepared answer sheet ready to be sent to an extractor.
type Image struct {
	Name     string // original file name, for logs
	MIMEType string
	Data     []byte
}

// RawExtractor is Stage 1: image -> free text.
// Implementations return common.ErrServiceUnavailable when the service cannot be
// reached and common.ErrNoText when it answers with nothing usable.
type RawExtractor interface {
	Extract(ctx context.Context, img Image) (string, error)
}

// StructuredExtractor is Stage 2: text + image -> candidate record.
// Implementations return common.ErrUnparseable when no structured payload can be
// located in the service response.
type StructuredExtractor interface {
	Structure(ctx context.Context, text string, img Image) (entity.Candidate, error)
}
