package entity

import (
	"github.com/joseph-ayodele/exam-grader/constants"
)

// Candidate is the untyped document returned by the structured extractor.
// Nothing about its shape is assumed until it has been validated.
type Candidate = any

// PartScore holds the marks awarded for the four parts of one question.
type PartScore struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
	D float64 `json:"d"`
}

// Sum returns the total marks of the four parts.
func (p PartScore) Sum() float64 {
	return p.A + p.B + p.C + p.D
}

// Values returns the parts in a, b, c, d order.
func (p PartScore) Values() [4]float64 {
	return [4]float64{p.A, p.B, p.C, p.D}
}

// Questions maps Q1..Q6 to their part scores.
type Questions map[string]PartScore

// ExamRecord is one student's validated result for one exam.
type ExamRecord struct {
	RollNumber string    `json:"roll_number"`
	Questions  Questions `json:"questions"`
	TotalMarks float64   `json:"total_marks"`
}

// PartsSum adds up every part of every canonical question.
func (r ExamRecord) PartsSum() float64 {
	var sum float64
	for _, key := range constants.QuestionKeys() {
		sum += r.Questions[key].Sum()
	}
	return sum
}

// Discrepancy is the reported total minus the sum of the parts.
// The reported total is kept as is; callers only use this for reporting.
func (r ExamRecord) Discrepancy() float64 {
	return r.TotalMarks - r.PartsSum()
}

// ZeroQuestions returns all six questions with zero marks.
func ZeroQuestions() Questions {
	qs := make(Questions, constants.QuestionCount)
	for _, key := range constants.QuestionKeys() {
		qs[key] = PartScore{}
	}
	return qs
}
