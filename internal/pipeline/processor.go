// Package pipeline runs uploaded answer sheets through extraction, structuring
// and validation, isolating failures per image.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/extract"
)

// Upload is one file received for grading.
type Upload struct {
	Filename string
	Data     []byte
}

// ImageOutcome records what happened to one upload.
type ImageOutcome struct {
	Filename string                `json:"filename"`
	Status   constants.ImageStatus `json:"status"`
	Error    string                `json:"error,omitempty"`
	Err      error                 `json:"-"`
}

// BatchResult holds the accepted records in input order plus one outcome per upload.
type BatchResult struct {
	BatchID  string              `json:"batch_id"`
	Records  []entity.ExamRecord `json:"records"`
	Outcomes []ImageOutcome      `json:"outcomes"`
}

// ProgressFunc is called after every finished image.
type ProgressFunc func(done, total int, outcome ImageOutcome)

// Processor coordinates raw extraction, structuring and validation per image.
type Processor struct {
	raw        extract.RawExtractor
	structured extract.StructuredExtractor
	logger     *slog.Logger

	workers      int
	imageTimeout time.Duration
	tempDir      string
	maxDim       int
	progress     ProgressFunc
}

type Option func(*Processor)

func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithImageTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.imageTimeout = d
		}
	}
}

// WithTempDir sets where uploads are staged; empty means os.TempDir.
func WithTempDir(dir string) Option {
	return func(p *Processor) { p.tempDir = dir }
}

func WithMaxImageDimension(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.maxDim = n
		}
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(p *Processor) { p.progress = fn }
}

// OptionsFrom maps the batch config section onto processor options.
func OptionsFrom(c common.BatchConfig) []Option {
	return []Option{
		WithWorkers(c.Workers),
		WithImageTimeout(c.ImageTimeout),
		WithTempDir(c.TempDir),
		WithMaxImageDimension(c.MaxImageDimension),
	}
}

func NewProcessor(raw extract.RawExtractor, structured extract.StructuredExtractor, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		raw:          raw,
		structured:   structured,
		logger:       logger,
		workers:      1,
		imageTimeout: 3 * time.Minute,
		maxDim:       2048,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process grades every upload. Failed images are skipped and reported in
// Outcomes. It returns common.ErrNoUsableRecords when nothing was accepted, and
// ctx.Err() with the partial result when cancelled.
func (p *Processor) Process(ctx context.Context, uploads []Upload, bc entity.BatchContext) (BatchResult, error) {
	if bc.RequestID != "" {
		ctx = common.WithRequestID(ctx, bc.RequestID)
	}
	ctx, rid := common.EnsureRequestID(ctx)
	batchID := uuid.NewString()
	start := time.Now()

	p.logger.Info("pipeline.batch.start",
		"req_id", rid,
		"batch_id", batchID,
		"files", len(uploads),
		"workers", p.workers,
		"class_year", bc.ClassYear,
		"subject", bc.Subject,
		"exam_type", bc.ExamType,
	)

	type slot struct {
		rec     *entity.ExamRecord
		outcome ImageOutcome
	}
	slots := make([]slot, len(uploads))

	var (
		mu   sync.Mutex
		done int
	)
	finish := func(i int, rec *entity.ExamRecord, o ImageOutcome) {
		slots[i] = slot{rec: rec, outcome: o}
		if p.progress == nil {
			return
		}
		mu.Lock()
		done++
		n := done
		mu.Unlock()
		p.progress(n, len(uploads), o)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := min(p.workers, max(len(uploads), 1))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					finish(i, nil, cancelled(uploads[i].Filename, ctx.Err()))
					continue
				}
				rec, o := p.processImage(ctx, batchID, uploads[i])
				finish(i, rec, o)
			}
		}()
	}

feed:
	for i := range uploads {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	res := BatchResult{BatchID: batchID, Outcomes: make([]ImageOutcome, len(uploads))}
	for i, s := range slots {
		if s.outcome.Status == "" {
			s.outcome = cancelled(uploads[i].Filename, ctx.Err())
		}
		res.Outcomes[i] = s.outcome
		if s.rec != nil {
			res.Records = append(res.Records, *s.rec)
		}
	}

	p.logger.Info("pipeline.batch.done",
		"req_id", rid,
		"batch_id", batchID,
		"files", len(uploads),
		"accepted", len(res.Records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if len(res.Records) == 0 {
		return res, common.ErrNoUsableRecords
	}
	return res, nil
}

// Accepted counts the uploads that produced a record.
func (r BatchResult) Accepted() int {
	return len(r.Records)
}

func cancelled(name string, err error) ImageOutcome {
	if err == nil {
		err = context.Canceled
	}
	return ImageOutcome{Filename: name, Status: constants.ImageStatusCancelled, Error: err.Error(), Err: err}
}
