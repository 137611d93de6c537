package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/export"
	"github.com/joseph-ayodele/exam-grader/internal/ingest"
	"github.com/joseph-ayodele/exam-grader/internal/llm/gemini"
	"github.com/joseph-ayodele/exam-grader/internal/pipeline"
	repo "github.com/joseph-ayodele/exam-grader/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

type options struct {
	dir, class, subject, exam, year, out string
	inmem                                bool
	workers                              int
}

func main() {
	var opts options
	flag.StringVar(&opts.dir, "dir", "", "directory of answer sheet images (required)")
	flag.StringVar(&opts.class, "class", "", "class year, e.g. TY (required)")
	flag.StringVar(&opts.subject, "subject", "", "subject (required)")
	flag.StringVar(&opts.exam, "exam", "", "exam type, e.g. MID1 (required)")
	flag.StringVar(&opts.year, "year", "", "academic year, defaults to the current year")
	flag.BoolVar(&opts.inmem, "inmem", false, "use in-memory SQLite database")
	flag.StringVar(&opts.out, "out", "", "output XLSX file path (optional, defaults to parent directory)")
	flag.IntVar(&opts.workers, "workers", 0, "parallel images (defaults to BATCH_WORKERS)")
	flag.Parse()

	if opts.dir == "" || opts.class == "" || opts.subject == "" || opts.exam == "" {
		printError("Error: --dir, --class, --subject and --exam are required\n")
		os.Exit(1)
	}
	if opts.out == "" {
		opts.out = filepath.Join(filepath.Dir(opts.dir), "exam_results.xlsx")
	}

	// Logs go to stderr so the progress bar owns stdout.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := run(opts, logger); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options, logger *slog.Logger) error {
	cfg, err := common.LoadConfigFile("")
	if err != nil {
		return err
	}
	if opts.inmem {
		cfg.Database.Driver = repo.DriverSQLite
		cfg.Database.DSN = ":memory:"
	}
	if opts.workers > 0 {
		cfg.Batch.Workers = opts.workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	cls := entity.Classification{ClassYear: opts.class, Subject: opts.subject, ExamType: opts.exam, AcademicYear: opts.year}
	if cls.AcademicYear == "" {
		cls.AcademicYear = entity.CurrentAcademicYear()
	}
	if err := common.ValidateStruct(cls); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	uploads, scanned, stats, err := ingest.ScanDirectory(ctx, opts.dir, true)
	if err != nil {
		return err
	}
	for _, r := range scanned {
		if r.Err != "" {
			color.Yellow("skipped %s: %s\n", r.Path, r.Err)
		}
	}
	if len(uploads) == 0 {
		return fmt.Errorf("no images found in %s", opts.dir)
	}

	db, err := repo.Open(ctx, repo.ConfigFrom(cfg.Database), logger)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	client, err := gemini.New(ctx, gemini.ConfigFrom(cfg.Gemini), logger)
	if err != nil {
		return err
	}
	defer client.Close()

	bar := progressBar(len(uploads), "Grading")
	popts := append(pipeline.OptionsFrom(cfg.Batch), pipeline.WithProgress(func(_, _ int, _ pipeline.ImageOutcome) {
		_ = bar.Add(1)
	}))
	processor := pipeline.NewProcessor(client, client, logger, popts...)

	batch, err := processor.Process(ctx, uploads, entity.BatchContext{Classification: cls})
	_ = bar.Finish()
	fmt.Println()
	printOutcomes(batch.Outcomes)
	if err != nil {
		return err
	}

	saved, storeErrs, err := persist(ctx, repo.NewResultRepository(db, logger), export.NewService(logger), batch.Records, cls, opts.out)
	for _, e := range storeErrs {
		color.Red("store: %v\n", e)
	}
	if err != nil {
		return err
	}

	color.Green("\n✓ Successfully processed %d files\n", len(batch.Records))
	fmt.Printf("- Images: %d (scanned %d entries)\n", len(uploads), stats.Scanned)
	fmt.Printf("- Stored: %d\n", saved)
	fmt.Printf("- Store failures: %d\n", len(storeErrs))
	fmt.Printf("- Output: %s\n", opts.out)
	return nil
}

// persist stores the records and writes the XLSX. It fails without writing the
// file when no record could be stored.
func persist(ctx context.Context, results repo.ResultRepository, exporter *export.Service,
	records []entity.ExamRecord, cls entity.Classification, out string) (int, []error, error) {
	saved, storeErrs := results.Upsert(ctx, records, cls)
	if saved == 0 && len(storeErrs) > 0 {
		return 0, storeErrs, fmt.Errorf("%w: stored 0 of %d records", common.ErrDatabase, len(records))
	}

	data, err := exporter.ExportRecordsXLSX(ctx, records)
	if err != nil {
		return saved, storeErrs, fmt.Errorf("exporting: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return saved, storeErrs, fmt.Errorf("writing %s: %w", out, err)
	}
	return saved, storeErrs, nil
}

func printOutcomes(outcomes []pipeline.ImageOutcome) {
	for _, o := range outcomes {
		if o.Status == constants.ImageStatusAccepted {
			color.Green("  %-10s %s\n", o.Status, o.Filename)
			continue
		}
		color.Yellow("  %-10s %s  %s\n", o.Status, o.Filename, o.Error)
	}
}

func progressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
