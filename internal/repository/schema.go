package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
)

const (
	tableResults       = "results"
	tableQuestionMarks = "question_marks"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS results (
		id            BIGSERIAL PRIMARY KEY,
		roll_number   TEXT NOT NULL,
		class_year    TEXT NOT NULL,
		subject       TEXT NOT NULL,
		exam_type     TEXT NOT NULL,
		academic_year TEXT NOT NULL,
		total_marks   DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT results_key UNIQUE (roll_number, class_year, subject, exam_type, academic_year)
	)`,
	`CREATE TABLE IF NOT EXISTS question_marks (
		id              BIGSERIAL PRIMARY KEY,
		result_id       BIGINT NOT NULL REFERENCES results(id) ON DELETE CASCADE,
		question_number INTEGER NOT NULL CHECK (question_number BETWEEN 1 AND 6),
		part_a          DOUBLE PRECISION NOT NULL DEFAULT 0,
		part_b          DOUBLE PRECISION NOT NULL DEFAULT 0,
		part_c          DOUBLE PRECISION NOT NULL DEFAULT 0,
		part_d          DOUBLE PRECISION NOT NULL DEFAULT 0,
		CONSTRAINT question_marks_key UNIQUE (result_id, question_number)
	)`,
	`CREATE INDEX IF NOT EXISTS results_class_exam_idx ON results (class_year, exam_type, subject)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS results (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		roll_number   TEXT NOT NULL,
		class_year    TEXT NOT NULL,
		subject       TEXT NOT NULL,
		exam_type     TEXT NOT NULL,
		academic_year TEXT NOT NULL,
		total_marks   REAL NOT NULL DEFAULT 0,
		created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (roll_number, class_year, subject, exam_type, academic_year)
	)`,
	`CREATE TABLE IF NOT EXISTS question_marks (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		result_id       INTEGER NOT NULL REFERENCES results(id) ON DELETE CASCADE,
		question_number INTEGER NOT NULL CHECK (question_number BETWEEN 1 AND 6),
		part_a          REAL NOT NULL DEFAULT 0,
		part_b          REAL NOT NULL DEFAULT 0,
		part_c          REAL NOT NULL DEFAULT 0,
		part_d          REAL NOT NULL DEFAULT 0,
		UNIQUE (result_id, question_number)
	)`,
	`CREATE INDEX IF NOT EXISTS results_class_exam_idx ON results (class_year, exam_type, subject)`,
}

// Migrate creates the results and question_marks tables when missing.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if d.Dialect == dialect.SQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if err := d.Driver.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	d.logger.Info("database schema ready", "dialect", d.Dialect)
	return nil
}
