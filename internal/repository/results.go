package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

// ResultRepository stores exam results as one summary row plus six question rows.
type ResultRepository interface {
	// Upsert writes every record in its own transaction and returns how many
	// succeeded together with the per-record failures.
	Upsert(ctx context.Context, records []entity.ExamRecord, cls entity.Classification) (int, []error)
	Delete(ctx context.Context, ref entity.ResultRef) (bool, error)
	Update(ctx context.Context, ref entity.ResultRef, questions entity.Questions, total float64) (bool, error)
	FindResults(ctx context.Context, f entity.Filter) ([]entity.StoredResult, error)
	DistinctValues(ctx context.Context) (entity.FilterOptions, error)
	ListMarks(ctx context.Context, f entity.Filter) ([]entity.MarksRow, error)
}

type resultRepository struct {
	db     *DB
	locks  *keyLocks
	logger *slog.Logger
}

func NewResultRepository(db *DB, logger *slog.Logger) ResultRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &resultRepository{
		db:     db,
		locks:  newKeyLocks(),
		logger: logger,
	}
}

func (r *resultRepository) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.Dialect)
}

func (r *resultRepository) Upsert(ctx context.Context, records []entity.ExamRecord, cls entity.Classification) (int, []error) {
	rid := common.RequestIDFromContext(ctx)
	start := time.Now()

	var (
		saved int
		errs  []error
	)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		key := cls.Key(rec.RollNumber)
		created, err := r.upsertOne(ctx, key, rec)
		if err != nil {
			r.logger.Error("repository.upsert.failed",
				"req_id", rid, "key", key.String(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", key.RollNumber, err))
			continue
		}
		r.logger.Debug("repository.upsert.ok", "req_id", rid, "key", key.String(), "created", created)
		saved++
	}

	r.logger.Info("repository.upsert.done",
		"req_id", rid,
		"records", len(records),
		"saved", saved,
		"failed", len(errs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return saved, errs
}

func (r *resultRepository) upsertOne(ctx context.Context, key entity.ResultKey, rec entity.ExamRecord) (bool, error) {
	unlock := r.locks.lock(lockKey(key.RollNumber, key.ClassYear, key.Subject, key.ExamType))
	defer unlock()

	var created bool
	err := r.withTx(ctx, func(tx dialect.Tx) error {
		ids, err := r.matchingIDs(ctx, tx, keyPredicates(key))
		if err != nil {
			return err
		}

		var id int64
		if len(ids) > 0 {
			id = ids[0]
			if err := r.replaceMarks(ctx, tx, id, rec.Questions, rec.TotalMarks); err != nil {
				return err
			}
			return nil
		}

		id, err = r.insertResult(ctx, tx, key, rec.TotalMarks)
		if err != nil {
			return err
		}
		created = true
		return r.insertQuestions(ctx, tx, id, rec.Questions)
	})
	return created, err
}

func (r *resultRepository) Delete(ctx context.Context, ref entity.ResultRef) (bool, error) {
	unlock := r.locks.lock(lockKey(ref.RollNumber, ref.ClassYear, ref.Subject, ref.ExamType))
	defer unlock()

	var found bool
	err := r.withTx(ctx, func(tx dialect.Tx) error {
		ids, err := r.matchingIDs(ctx, tx, refPredicates(ref))
		if err != nil || len(ids) == 0 {
			return err
		}
		found = true

		b := r.builder()
		q, args := b.Delete(tableQuestionMarks).Where(entsql.In("result_id", int64Args(ids)...)).Query()
		if err := tx.Exec(ctx, q, args, nil); err != nil {
			return fmt.Errorf("delete question rows: %w", err)
		}
		q, args = b.Delete(tableResults).Where(entsql.In("id", int64Args(ids)...)).Query()
		if err := tx.Exec(ctx, q, args, nil); err != nil {
			return fmt.Errorf("delete results: %w", err)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("repository.delete.failed", "roll_number", ref.RollNumber, "error", err)
		return false, err
	}
	r.logger.Info("repository.delete.done", "roll_number", ref.RollNumber, "found", found)
	return found, nil
}

func (r *resultRepository) Update(ctx context.Context, ref entity.ResultRef, questions entity.Questions, total float64) (bool, error) {
	unlock := r.locks.lock(lockKey(ref.RollNumber, ref.ClassYear, ref.Subject, ref.ExamType))
	defer unlock()

	var found bool
	err := r.withTx(ctx, func(tx dialect.Tx) error {
		ids, err := r.matchingIDs(ctx, tx, refPredicates(ref))
		if err != nil || len(ids) == 0 {
			return err
		}
		found = true
		for _, id := range ids {
			if err := r.replaceMarks(ctx, tx, id, questions, total); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("repository.update.failed", "roll_number", ref.RollNumber, "error", err)
		return false, err
	}
	r.logger.Info("repository.update.done", "roll_number", ref.RollNumber, "found", found)
	return found, nil
}

func (r *resultRepository) FindResults(ctx context.Context, f entity.Filter) ([]entity.StoredResult, error) {
	b := r.builder()
	t := b.Table(tableResults)
	s := b.Select(
		t.C("id"), t.C("roll_number"), t.C("class_year"), t.C("subject"),
		t.C("exam_type"), t.C("academic_year"), t.C("total_marks"),
	).From(t)
	for _, p := range filterPredicates(t, f) {
		s.Where(p)
	}
	s.OrderBy(t.C("roll_number"), t.C("id"))

	q, args := s.Query()
	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: find results: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.StoredResult
	for rows.Next() {
		var sr entity.StoredResult
		if err := rows.Scan(&sr.ID, &sr.RollNumber, &sr.ClassYear, &sr.Subject,
			&sr.ExamType, &sr.AcademicYear, &sr.TotalMarks); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

func (r *resultRepository) DistinctValues(ctx context.Context) (entity.FilterOptions, error) {
	var (
		opts entity.FilterOptions
		err  error
	)
	if opts.ClassYears, err = r.distinct(ctx, "class_year"); err != nil {
		return opts, err
	}
	if opts.Subjects, err = r.distinct(ctx, "subject"); err != nil {
		return opts, err
	}
	if opts.ExamTypes, err = r.distinct(ctx, "exam_type"); err != nil {
		return opts, err
	}
	return opts, nil
}

func (r *resultRepository) distinct(ctx context.Context, column string) ([]string, error) {
	b := r.builder()
	q, args := b.Select(column).From(b.Table(tableResults)).Distinct().OrderBy(column).Query()

	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: distinct %s: %w", common.ErrDatabase, column, err)
	}
	defer rows.Close()

	out := []string{}
	if err := entsql.ScanSlice(&rows, &out); err != nil {
		return nil, fmt.Errorf("scan %s: %w", column, err)
	}
	return out, nil
}

func (r *resultRepository) ListMarks(ctx context.Context, f entity.Filter) ([]entity.MarksRow, error) {
	b := r.builder()
	t := b.Table(tableResults)
	qm := b.Table(tableQuestionMarks)
	s := b.Select(
		t.C("id"), t.C("roll_number"), t.C("subject"), t.C("academic_year"), t.C("total_marks"),
		qm.C("question_number"), qm.C("part_a"), qm.C("part_b"), qm.C("part_c"), qm.C("part_d"),
	).From(t).
		LeftJoin(qm).On(t.C("id"), qm.C("result_id"))
	for _, p := range filterPredicates(t, f) {
		s.Where(p)
	}
	s.OrderBy(t.C("roll_number"), t.C("id"), qm.C("question_number"))

	q, args := s.Query()
	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: list marks: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.MarksRow
	for rows.Next() {
		var (
			row            entity.MarksRow
			qn             sql.NullInt64
			pa, pb, pc, pd sql.NullFloat64
		)
		if err := rows.Scan(&row.ResultID, &row.RollNumber, &row.Subject, &row.AcademicYear,
			&row.TotalMarks, &qn, &pa, &pb, &pc, &pd); err != nil {
			return nil, fmt.Errorf("scan marks row: %w", err)
		}
		row.QuestionNumber = int(qn.Int64)
		row.Parts = entity.PartScore{A: pa.Float64, B: pb.Float64, C: pc.Float64, D: pd.Float64}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GroupMarks folds ListMarks rows into one result per summary row, keeping
// the row order. Results without question rows get zero marks.
func GroupMarks(rows []entity.MarksRow) []entity.StoredResult {
	var (
		out   []entity.StoredResult
		index = map[int64]int{}
	)
	for _, row := range rows {
		i, ok := index[row.ResultID]
		if !ok {
			i = len(out)
			index[row.ResultID] = i
			out = append(out, entity.StoredResult{
				ID:           row.ResultID,
				RollNumber:   row.RollNumber,
				Subject:      row.Subject,
				AcademicYear: row.AcademicYear,
				TotalMarks:   row.TotalMarks,
				Questions:    entity.ZeroQuestions(),
			})
		}
		if key, ok := constants.QuestionKey(row.QuestionNumber); ok {
			out[i].Questions[key] = row.Parts
		}
	}
	return out
}

// --- helpers ---

func (r *resultRepository) withTx(ctx context.Context, fn func(tx dialect.Tx) error) error {
	tx, err := r.db.Driver.Tx(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", common.ErrDatabase, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Warn("repository.tx.rollback_failed", "error", rbErr)
		}
		if errors.Is(err, common.ErrDatabase) {
			return err
		}
		return fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", common.ErrDatabase, err)
	}
	return nil
}

func (r *resultRepository) matchingIDs(ctx context.Context, ex dialect.ExecQuerier, preds []*entsql.Predicate) ([]int64, error) {
	b := r.builder()
	t := b.Table(tableResults)
	s := b.Select(t.C("id")).From(t)
	for _, p := range preds {
		s.Where(p)
	}
	s.OrderBy(t.C("id"))

	q, args := s.Query()
	var rows entsql.Rows
	if err := ex.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("lookup result: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *resultRepository) insertResult(ctx context.Context, tx dialect.Tx, key entity.ResultKey, total float64) (int64, error) {
	q, args := r.builder().Insert(tableResults).
		Columns("roll_number", "class_year", "subject", "exam_type", "academic_year", "total_marks").
		Values(key.RollNumber, key.ClassYear, key.Subject, key.ExamType, key.AcademicYear, total).
		Returning("id").
		Query()

	var rows entsql.Rows
	if err := tx.Query(ctx, q, args, &rows); err != nil {
		return 0, fmt.Errorf("insert result: %w", err)
	}
	defer rows.Close()

	id, err := entsql.ScanInt64(&rows)
	if err != nil {
		return 0, fmt.Errorf("insert result: %w", err)
	}
	return id, nil
}

// replaceMarks sets the total and rewrites all six question rows of one result.
func (r *resultRepository) replaceMarks(ctx context.Context, tx dialect.Tx, id int64, questions entity.Questions, total float64) error {
	b := r.builder()
	q, args := b.Update(tableResults).Set("total_marks", total).Where(entsql.EQ("id", id)).Query()
	if err := tx.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("update total: %w", err)
	}
	q, args = b.Delete(tableQuestionMarks).Where(entsql.EQ("result_id", id)).Query()
	if err := tx.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("clear question rows: %w", err)
	}
	return r.insertQuestions(ctx, tx, id, questions)
}

func (r *resultRepository) insertQuestions(ctx context.Context, tx dialect.Tx, id int64, questions entity.Questions) error {
	ins := r.builder().Insert(tableQuestionMarks).
		Columns("result_id", "question_number", "part_a", "part_b", "part_c", "part_d")
	for _, key := range constants.QuestionKeys() {
		ps := questions[key]
		ins.Values(id, constants.QuestionNumber(key), ps.A, ps.B, ps.C, ps.D)
	}
	q, args := ins.Query()
	if err := tx.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("insert question rows: %w", err)
	}
	return nil
}

func keyPredicates(k entity.ResultKey) []*entsql.Predicate {
	return []*entsql.Predicate{
		entsql.EQ("roll_number", k.RollNumber),
		entsql.EQ("class_year", k.ClassYear),
		entsql.EQ("subject", k.Subject),
		entsql.EQ("exam_type", k.ExamType),
		entsql.EQ("academic_year", k.AcademicYear),
	}
}

func refPredicates(ref entity.ResultRef) []*entsql.Predicate {
	preds := []*entsql.Predicate{
		entsql.EQ("roll_number", ref.RollNumber),
		entsql.EQ("class_year", ref.ClassYear),
		entsql.EQ("subject", ref.Subject),
		entsql.EQ("exam_type", ref.ExamType),
	}
	if ref.AcademicYear != "" {
		preds = append(preds, entsql.EQ("academic_year", ref.AcademicYear))
	}
	return preds
}

func filterPredicates(t *entsql.SelectTable, f entity.Filter) []*entsql.Predicate {
	var preds []*entsql.Predicate
	add := func(col, v string) {
		if v != "" {
			preds = append(preds, entsql.EQ(t.C(col), v))
		}
	}
	add("class_year", f.ClassYear)
	add("subject", f.Subject)
	add("exam_type", f.ExamType)
	add("academic_year", f.AcademicYear)
	return preds
}

func lockKey(parts ...string) string {
	var n int
	for _, p := range parts {
		n += len(p) + 1
	}
	buf := make([]byte, 0, n)
	for _, p := range parts {
		buf = append(buf, p...)
		buf = append(buf, 0)
	}
	return string(buf)
}

func int64Args(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
