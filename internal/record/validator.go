// Package record turns loosely-typed extraction candidates into ExamRecords.
//
// Validation has two separate branches. Structural problems reject the whole
// record. Non-numeric or out-of-range marks are repaired in place and never reject.
package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

const (
	fieldRollNumber = "roll_number"
	fieldQuestions  = "questions"
	fieldTotalMarks = "total_marks"
)

var requiredFields = []string{fieldRollNumber, fieldQuestions, fieldTotalMarks}

// Reason classifies a structural rejection.
type Reason string

const (
	ReasonMalformedShape     Reason = "MalformedShape"
	ReasonMissingField       Reason = "MissingField"
	ReasonMalformedQuestions Reason = "MalformedQuestions"
	ReasonMalformedQuestion  Reason = "MalformedQuestion"
)

// RejectionError is returned for candidates that cannot be salvaged.
// Field names the missing field or the offending question key.
type RejectionError struct {
	Reason Reason
	Field  string
}

func (e *RejectionError) Error() string {
	if e.Field == "" {
		return "record rejected: " + string(e.Reason)
	}
	return fmt.Sprintf("record rejected: %s(%s)", e.Reason, e.Field)
}

func (e *RejectionError) Unwrap() error {
	return common.ErrValidation
}

// Report lists the repairs applied to an accepted candidate.
type Report struct {
	Repairs             []string
	SynthesizedKeys     []string
	DefaultedRollNumber bool
}

// Validate checks candidate and returns the repaired record or a *RejectionError.
func Validate(candidate entity.Candidate) (entity.ExamRecord, error) {
	rec, _, err := Inspect(candidate)
	return rec, err
}

// Inspect is Validate plus a report of what was repaired.
func Inspect(candidate entity.Candidate) (entity.ExamRecord, Report, error) {
	var report Report

	doc, err := checkShape(candidate)
	if err != nil {
		return entity.ExamRecord{}, report, err
	}
	if err := checkRequired(doc); err != nil {
		return entity.ExamRecord{}, report, err
	}
	rawQuestions, err := checkQuestions(doc[fieldQuestions])
	if err != nil {
		return entity.ExamRecord{}, report, err
	}

	// All structural checks run before any repair so a rejected record is never half-built.
	blocks := make(map[string]map[string]any, constants.QuestionCount)
	for _, key := range constants.QuestionKeys() {
		raw, ok := rawQuestions[key]
		if !ok {
			report.SynthesizedKeys = append(report.SynthesizedKeys, key)
			continue
		}
		block, err := checkQuestion(key, raw)
		if err != nil {
			return entity.ExamRecord{}, report, err
		}
		blocks[key] = block
	}

	rec := entity.ExamRecord{
		Questions: entity.ZeroQuestions(),
	}
	rec.RollNumber, report.DefaultedRollNumber = repairRollNumber(doc[fieldRollNumber])
	if report.DefaultedRollNumber {
		report.Repairs = append(report.Repairs, fieldRollNumber+": defaulted")
	}
	for _, key := range constants.QuestionKeys() {
		block, ok := blocks[key]
		if !ok {
			continue
		}
		ps, repairs := repairPartScore(key, block)
		rec.Questions[key] = ps
		report.Repairs = append(report.Repairs, repairs...)
	}
	total, ok := repairTotal(doc[fieldTotalMarks])
	if !ok {
		report.Repairs = append(report.Repairs, fmt.Sprintf("%s: %v -> 0", fieldTotalMarks, doc[fieldTotalMarks]))
	}
	rec.TotalMarks = total

	return rec, report, nil
}

// RepairQuestions fills missing question keys and clamps every part into range.
// It is used for edits that arrive already typed.
func RepairQuestions(qs entity.Questions) entity.Questions {
	out := entity.ZeroQuestions()
	for _, key := range constants.QuestionKeys() {
		ps, ok := qs[key]
		if !ok {
			continue
		}
		out[key] = entity.PartScore{
			A: ClampPart(ps.A),
			B: ClampPart(ps.B),
			C: ClampPart(ps.C),
			D: ClampPart(ps.D),
		}
	}
	return out
}

// ClampPart maps values outside [0, MaxPartScore] to 0.
func ClampPart(v float64) float64 {
	if math.IsNaN(v) || v < 0 || v > constants.MaxPartScore {
		return 0
	}
	return v
}

// --- structural checks (fatal) ---

func checkShape(candidate entity.Candidate) (map[string]any, error) {
	doc, ok := candidate.(map[string]any)
	if !ok || doc == nil {
		return nil, &RejectionError{Reason: ReasonMalformedShape}
	}
	return doc, nil
}

func checkRequired(doc map[string]any) error {
	for _, field := range requiredFields {
		if _, ok := doc[field]; !ok {
			return &RejectionError{Reason: ReasonMissingField, Field: field}
		}
	}
	return nil
}

func checkQuestions(v any) (map[string]any, error) {
	qs, ok := v.(map[string]any)
	if !ok || qs == nil {
		return nil, &RejectionError{Reason: ReasonMalformedQuestions, Field: fieldQuestions}
	}
	return qs, nil
}

func checkQuestion(key string, v any) (map[string]any, error) {
	block, ok := v.(map[string]any)
	if !ok || block == nil {
		return nil, &RejectionError{Reason: ReasonMalformedQuestion, Field: key}
	}
	for _, part := range constants.Parts {
		if _, ok := block[part]; !ok {
			return nil, &RejectionError{Reason: ReasonMalformedQuestion, Field: key}
		}
	}
	return block, nil
}

// --- numeric repairs (never fatal) ---

func repairRollNumber(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return s, false
		}
	case float64:
		if t >= 0 && t == math.Trunc(t) && t < 1e15 {
			return padRoll(strconv.FormatInt(int64(t), 10)), false
		}
	case json.Number:
		if _, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return padRoll(t.String()), false
		}
	}
	return constants.DefaultRollNumber, true
}

// padRoll restores leading zeros lost when a numeric roll number was emitted as a number.
func padRoll(s string) string {
	if len(s) < constants.RollNumberLength {
		return strings.Repeat("0", constants.RollNumberLength-len(s)) + s
	}
	return s
}

func repairPartScore(key string, block map[string]any) (entity.PartScore, []string) {
	var (
		vals    [4]float64
		repairs []string
	)
	for i, part := range constants.Parts {
		n, ok := toNumber(block[part])
		clamped := ClampPart(n)
		if !ok || clamped != n {
			repairs = append(repairs, fmt.Sprintf("%s.%s: %v -> 0", key, part, block[part]))
		}
		vals[i] = clamped
	}
	return entity.PartScore{A: vals[0], B: vals[1], C: vals[2], D: vals[3]}, repairs
}

func repairTotal(v any) (float64, bool) {
	n, ok := toNumber(v)
	if !ok || n < 0 {
		return 0, false
	}
	return n, true
}

// toNumber accepts JSON numbers and numeric strings.
func toNumber(v any) (float64, bool) {
	var (
		n   float64
		err error
	)
	switch t := v.(type) {
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case json.Number:
		n, err = t.Float64()
	case string:
		n, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
