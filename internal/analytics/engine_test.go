package analytics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

func result(roll, subject string, total float64) entity.StoredResult {
	return entity.StoredResult{RollNumber: roll, Subject: subject, TotalMarks: total, Questions: entity.ZeroQuestions()}
}

func TestCompute_Empty(t *testing.T) {
	a := Compute(nil)

	assert.Equal(t, entity.OverallStats{}, a.Overall)
	assert.Empty(t, a.Toppers)
	assert.NotNil(t, a.Toppers)
	assert.Empty(t, a.NeedsImprovement)
	assert.NotNil(t, a.NeedsImprovement)
	require.Len(t, a.QuestionStats, constants.QuestionCount)
	for _, qs := range a.QuestionStats {
		assert.Zero(t, qs.AverageTotal)
	}
	require.Len(t, a.Distribution, len(constants.ScoreBuckets))
	for _, b := range a.Distribution {
		assert.Zero(t, b.Count)
	}
}

func TestCompute_SingleStudent(t *testing.T) {
	r := result("A23000000001", "DBMS", 28)
	r.Questions["Q1"] = entity.PartScore{A: 2, B: 1, C: 0, D: 1}

	a := Compute([]entity.StoredResult{r})

	assert.Equal(t, 1, a.Overall.TotalStudents)
	assert.Equal(t, 1, a.Overall.PassCount)
	assert.Equal(t, 100.0, a.Overall.PassPercentage)
	assert.Equal(t, 28.0, a.Overall.AverageMarks)
	assert.Equal(t, 28.0, a.Overall.HighestMarks)
	assert.Equal(t, 28.0, a.Overall.LowestMarks)

	q1 := a.QuestionStats[0]
	assert.Equal(t, "Q1", q1.Question)
	assert.Equal(t, 2.0, q1.AverageA)
	assert.Equal(t, 1.0, q1.AverageD)
	assert.Equal(t, 4.0, q1.AverageTotal)

	assert.Equal(t, []entity.Performer{{RollNumber: "A23000000001", TotalMarks: 28}}, a.Toppers)
	assert.Empty(t, a.NeedsImprovement)
	assert.Equal(t, 1, a.Distribution[3].Count)
}

func TestCompute_PassThresholdAndRounding(t *testing.T) {
	a := Compute([]entity.StoredResult{
		result("A", "X", 20),
		result("B", "X", 19.99),
		result("C", "X", 10),
	})

	assert.Equal(t, 1, a.Overall.PassCount)
	assert.Equal(t, 33.33, a.Overall.PassPercentage)
	assert.Equal(t, 16.66, a.Overall.AverageMarks)
}

func TestDistribution_Edges(t *testing.T) {
	cases := []struct {
		total float64
		want  int
	}{
		{0, 0},
		{8, 0},
		{8.5, 1},
		{16, 1},
		{17, 2},
		{24, 2},
		{32, 3},
		{33, 4},
		{40, 4},
		{45, 4},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, bucketIndex(c.total), "total %v", c.total)
	}

	labels := make([]string, 0, len(constants.ScoreBuckets))
	for _, b := range distribution(nil) {
		labels = append(labels, b.Label)
	}
	assert.Equal(t, []string{"0-8", "9-16", "17-24", "25-32", "33-40"}, labels)
}

func TestToppers_TiesByRoll(t *testing.T) {
	var rs []entity.StoredResult
	for _, r := range []struct {
		roll  string
		total float64
	}{
		{"F", 30}, {"B", 35}, {"A", 35}, {"E", 10}, {"D", 30}, {"C", 40}, {"G", 5},
	} {
		rs = append(rs, result(r.roll, "X", r.total))
	}

	got := toppers(rs)
	require.Len(t, got, constants.TopPerformers)
	var rolls []string
	for _, p := range got {
		rolls = append(rolls, p.RollNumber)
	}
	assert.Equal(t, []string{"C", "A", "B", "D", "F"}, rolls)
}

func TestNeedsImprovement_StrictlyBelowAverage(t *testing.T) {
	rs := []entity.StoredResult{
		result("A", "X", 10),
		result("B", "X", 20),
		result("C", "X", 30),
		result("D", "X", 4),
	}
	// average is 16
	a := Compute(rs)
	assert.Equal(t, []entity.Performer{{RollNumber: "D", TotalMarks: 4}, {RollNumber: "A", TotalMarks: 10}}, a.NeedsImprovement)

	same := Compute([]entity.StoredResult{result("A", "X", 12), result("B", "X", 12)})
	assert.Empty(t, same.NeedsImprovement)
}

func TestSubjectStatsOf(t *testing.T) {
	stats := SubjectStatsOf([]entity.StoredResult{
		result("A", "DBMS", 30),
		result("B", "CN", 12),
		result("C", "DBMS", 21),
	})
	assert.Equal(t, []entity.SubjectStats{
		{Subject: "CN", Count: 1, Highest: 12, Lowest: 12, Average: 12},
		{Subject: "DBMS", Count: 2, Highest: 30, Lowest: 21, Average: 25.5},
	}, stats)
}

type fakeReader struct {
	rows    []entity.MarksRow
	results []entity.StoredResult
	err     error
	filters []entity.Filter
}

func (f *fakeReader) ListMarks(_ context.Context, flt entity.Filter) ([]entity.MarksRow, error) {
	f.filters = append(f.filters, flt)
	return f.rows, f.err
}

func (f *fakeReader) FindResults(_ context.Context, flt entity.Filter) ([]entity.StoredResult, error) {
	f.filters = append(f.filters, flt)
	return f.results, nil
}

func TestEngine_Analyze(t *testing.T) {
	var rows []entity.MarksRow
	for q := 1; q <= constants.QuestionCount; q++ {
		rows = append(rows, entity.MarksRow{
			ResultID: 1, RollNumber: "A23000000001", Subject: "DBMS", AcademicYear: "2025",
			TotalMarks: 28, QuestionNumber: q, Parts: entity.PartScore{A: 2, B: 1, C: 0, D: 1},
		})
	}
	reader := &fakeReader{
		rows:    rows,
		results: []entity.StoredResult{result("A23000000001", "DBMS", 28), result("A23000000001", "CN", 18)},
	}

	a, err := NewEngine(reader, nil).Analyze(context.Background(), entity.Filter{ClassYear: "TY", Subject: "DBMS", ExamType: "MID1"})
	require.NoError(t, err)

	assert.Equal(t, "DBMS", a.Subject)
	assert.Equal(t, 1, a.Overall.TotalStudents)
	assert.Equal(t, 28.0, a.Overall.AverageMarks)
	assert.Equal(t, 100.0, a.Overall.PassPercentage)
	assert.Equal(t, 4.0, a.QuestionStats[5].AverageTotal)
	require.Len(t, a.SubjectStats, 2)
	assert.Equal(t, "CN", a.SubjectStats[0].Subject)

	require.Len(t, reader.filters, 2)
	assert.Equal(t, entity.Filter{ClassYear: "TY", Subject: "DBMS", ExamType: "MID1"}, reader.filters[0])
	assert.Equal(t, entity.Filter{ClassYear: "TY", ExamType: "MID1"}, reader.filters[1])
}

func TestEngine_AnalyzeStoreError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewEngine(&fakeReader{err: boom}, nil).Analyze(context.Background(), entity.Filter{ClassYear: "TY", Subject: "DBMS", ExamType: "MID1"})
	assert.ErrorIs(t, err, boom)
}

func TestEngine_AnalyzeAcademicYear(t *testing.T) {
	reader := &fakeReader{}
	f := entity.Filter{ClassYear: "TY", Subject: "DBMS", ExamType: "MID1", AcademicYear: "2024"}

	a, err := NewEngine(reader, nil).Analyze(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, "2024", a.AcademicYear)

	require.Len(t, reader.filters, 2)
	assert.Equal(t, f, reader.filters[0])
	assert.Equal(t, entity.Filter{ClassYear: "TY", ExamType: "MID1", AcademicYear: "2024"}, reader.filters[1])
}
