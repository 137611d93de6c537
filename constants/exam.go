package constants

// Question is one of the fixed question keys on an answer sheet.
type Question string

const (
	Q1 Question = "Q1"
	Q2 Question = "Q2"
	Q3 Question = "Q3"
	Q4 Question = "Q4"
	Q5 Question = "Q5"
	Q6 Question = "Q6"
)

var allQuestions = []Question{Q1, Q2, Q3, Q4, Q5, Q6}

// Parts are the sub-question labels of every question, in sheet order.
var Parts = []string{"a", "b", "c", "d"}

const (
	QuestionCount = 6
	MaxPartScore  = 8.0
	MaxTotalMarks = 40.0
	PassingScore  = 20.0

	// DefaultRollNumber is stored when the roll number cannot be read off the sheet.
	DefaultRollNumber = "000000000000"
	RollNumberLength  = 12

	TopPerformers     = 5
	NeedsImprovement  = 5
	DistributionWidth = 8
)

// ScoreBuckets are the inclusive upper bounds of the score distribution ranges
// [0-8], [9-16], [17-24], [25-32], [33-40].
var ScoreBuckets = scoreBuckets(DistributionWidth, MaxTotalMarks)

func scoreBuckets(width, total float64) []float64 {
	var out []float64
	for upper := width; upper < total; upper += width {
		out = append(out, upper)
	}
	return append(out, total)
}

// QuestionKeys returns the canonical question keys as strings.
func QuestionKeys() []string {
	out := make([]string, len(allQuestions))
	for i, q := range allQuestions {
		out[i] = string(q)
	}
	return out
}

// QuestionNumber maps Q1..Q6 to 1..6, and anything else to 0.
func QuestionNumber(key string) int {
	for i, q := range allQuestions {
		if string(q) == key {
			return i + 1
		}
	}
	return 0
}

// QuestionKey maps 1..6 to Q1..Q6.
func QuestionKey(n int) (string, bool) {
	if n < 1 || n > len(allQuestions) {
		return "", false
	}
	return string(allQuestions[n-1]), true
}
