package entity

import (
	"strconv"
	"time"
)

// Classification tags every record of one upload batch.
type Classification struct {
	ClassYear    string `json:"class_year" validate:"required,max=64"`
	Subject      string `json:"subject" validate:"required,max=128"`
	ExamType     string `json:"exam_type" validate:"required,max=64"`
	AcademicYear string `json:"academic_year" validate:"required,numeric,len=4"`
}

// CurrentAcademicYear returns the calendar year used when none is given.
func CurrentAcademicYear() string {
	return strconv.Itoa(time.Now().Year())
}

// BatchContext is passed explicitly to every batch entry point.
type BatchContext struct {
	Classification
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ResultKey uniquely identifies a stored result.
type ResultKey struct {
	RollNumber   string `json:"roll_number"`
	ClassYear    string `json:"class_year"`
	Subject      string `json:"subject"`
	ExamType     string `json:"exam_type"`
	AcademicYear string `json:"academic_year"`
}

// Key builds the storage key of a record within this classification.
func (c Classification) Key(rollNumber string) ResultKey {
	return ResultKey{
		RollNumber:   rollNumber,
		ClassYear:    c.ClassYear,
		Subject:      c.Subject,
		ExamType:     c.ExamType,
		AcademicYear: c.AcademicYear,
	}
}

func (k ResultKey) String() string {
	return k.RollNumber + "|" + k.ClassYear + "|" + k.Subject + "|" + k.ExamType + "|" + k.AcademicYear
}

// ResultRef selects stored results for delete and update.
// An empty AcademicYear matches every year.
type ResultRef struct {
	RollNumber   string `json:"roll_number" validate:"required"`
	ClassYear    string `json:"class_year" validate:"required"`
	Subject      string `json:"subject" validate:"required"`
	ExamType     string `json:"exam_type" validate:"required"`
	AcademicYear string `json:"academic_year,omitempty" validate:"omitempty,numeric,len=4"`
}

// Filter narrows read queries. Empty fields are not constrained.
type Filter struct {
	ClassYear    string `json:"class_year"`
	Subject      string `json:"subject"`
	ExamType     string `json:"exam_type"`
	AcademicYear string `json:"academic_year,omitempty"`
}

// StoredResult is a persisted summary row, optionally with its question rows.
type StoredResult struct {
	ID           int64     `json:"id"`
	RollNumber   string    `json:"roll_number"`
	ClassYear    string    `json:"class_year"`
	Subject      string    `json:"subject"`
	ExamType     string    `json:"exam_type"`
	AcademicYear string    `json:"academic_year"`
	TotalMarks   float64   `json:"total_marks"`
	Questions    Questions `json:"questions,omitempty"`
}

// MarksRow is one row of the summary LEFT JOIN question_marks listing.
// QuestionNumber is zero when the result has no question rows.
type MarksRow struct {
	ResultID       int64
	RollNumber     string
	Subject        string
	AcademicYear   string
	TotalMarks     float64
	QuestionNumber int
	Parts          PartScore
}

// FilterOptions lists the distinct values present in storage.
type FilterOptions struct {
	ClassYears []string `json:"class_years"`
	Subjects   []string `json:"subjects"`
	ExamTypes  []string `json:"exam_types"`
}
