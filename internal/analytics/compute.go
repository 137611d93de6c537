package analytics

import (
	"fmt"
	"math"
	"sort"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

// Compute aggregates a set of stored results. Every figure is rounded to two
// decimals; an empty set yields zero stats and empty performer lists.
func Compute(results []entity.StoredResult) entity.Analysis {
	a := entity.Analysis{
		QuestionStats:    questionStats(results),
		Distribution:     distribution(results),
		Toppers:          []entity.Performer{},
		NeedsImprovement: []entity.Performer{},
		SubjectStats:     []entity.SubjectStats{},
	}
	if len(results) == 0 {
		return a
	}

	var (
		sum    float64
		passed int
		hi     = math.Inf(-1)
		lo     = math.Inf(1)
	)
	for _, r := range results {
		sum += r.TotalMarks
		hi = math.Max(hi, r.TotalMarks)
		lo = math.Min(lo, r.TotalMarks)
		if r.TotalMarks >= constants.PassingScore {
			passed++
		}
	}
	n := len(results)
	avg := sum / float64(n)

	a.Overall = entity.OverallStats{
		TotalStudents:  n,
		PassCount:      passed,
		PassPercentage: round2(float64(passed) * 100 / float64(n)),
		AverageMarks:   round2(avg),
		HighestMarks:   round2(hi),
		LowestMarks:    round2(lo),
	}
	a.Toppers = toppers(results)
	a.NeedsImprovement = needsImprovement(results, avg)
	return a
}

// SubjectStatsOf groups results by subject, sorted by subject name.
func SubjectStatsOf(results []entity.StoredResult) []entity.SubjectStats {
	type acc struct {
		n      int
		sum    float64
		hi, lo float64
	}
	by := map[string]*acc{}
	for _, r := range results {
		s, ok := by[r.Subject]
		if !ok {
			s = &acc{hi: r.TotalMarks, lo: r.TotalMarks}
			by[r.Subject] = s
		}
		s.n++
		s.sum += r.TotalMarks
		s.hi = math.Max(s.hi, r.TotalMarks)
		s.lo = math.Min(s.lo, r.TotalMarks)
	}

	out := make([]entity.SubjectStats, 0, len(by))
	for subject, s := range by {
		out = append(out, entity.SubjectStats{
			Subject: subject,
			Count:   s.n,
			Highest: round2(s.hi),
			Lowest:  round2(s.lo),
			Average: round2(s.sum / float64(s.n)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out
}

func questionStats(results []entity.StoredResult) []entity.QuestionStats {
	out := make([]entity.QuestionStats, 0, constants.QuestionCount)
	for _, key := range constants.QuestionKeys() {
		qs := entity.QuestionStats{Question: key}
		if len(results) == 0 {
			out = append(out, qs)
			continue
		}

		var (
			parts [4]float64
			total float64
			hi    = math.Inf(-1)
			lo    = math.Inf(1)
		)
		for _, r := range results {
			ps := r.Questions[key]
			for i, v := range ps.Values() {
				parts[i] += v
			}
			s := ps.Sum()
			total += s
			hi = math.Max(hi, s)
			lo = math.Min(lo, s)
		}
		n := float64(len(results))
		qs.AverageA = round2(parts[0] / n)
		qs.AverageB = round2(parts[1] / n)
		qs.AverageC = round2(parts[2] / n)
		qs.AverageD = round2(parts[3] / n)
		qs.AverageTotal = round2(total / n)
		qs.HighestTotal = round2(hi)
		qs.LowestTotal = round2(lo)
		out = append(out, qs)
	}
	return out
}

// distribution counts totals into the fixed ranges. A total lands in the first
// range whose upper bound it does not exceed; anything above the last bound
// counts in the last range.
func distribution(results []entity.StoredResult) []entity.ScoreBucket {
	buckets := make([]entity.ScoreBucket, len(constants.ScoreBuckets))
	lower := 0.0
	for i, upper := range constants.ScoreBuckets {
		buckets[i] = entity.ScoreBucket{
			Label: fmt.Sprintf("%g-%g", lower, upper),
			Min:   lower,
			Max:   upper,
		}
		lower = upper + 1
	}
	for _, r := range results {
		buckets[bucketIndex(r.TotalMarks)].Count++
	}
	return buckets
}

func bucketIndex(total float64) int {
	for i, upper := range constants.ScoreBuckets {
		if total <= upper {
			return i
		}
	}
	return len(constants.ScoreBuckets) - 1
}

// toppers returns the highest totals, ties broken by roll number.
func toppers(results []entity.StoredResult) []entity.Performer {
	sorted := performers(results)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TotalMarks != sorted[j].TotalMarks {
			return sorted[i].TotalMarks > sorted[j].TotalMarks
		}
		return sorted[i].RollNumber < sorted[j].RollNumber
	})
	return limit(sorted, constants.TopPerformers)
}

// needsImprovement returns the lowest totals strictly below avg, ascending.
func needsImprovement(results []entity.StoredResult, avg float64) []entity.Performer {
	var below []entity.Performer
	for _, p := range performers(results) {
		if p.TotalMarks < avg {
			below = append(below, p)
		}
	}
	sort.SliceStable(below, func(i, j int) bool {
		if below[i].TotalMarks != below[j].TotalMarks {
			return below[i].TotalMarks < below[j].TotalMarks
		}
		return below[i].RollNumber < below[j].RollNumber
	})
	return limit(below, constants.NeedsImprovement)
}

func performers(results []entity.StoredResult) []entity.Performer {
	out := make([]entity.Performer, 0, len(results))
	for _, r := range results {
		out = append(out, entity.Performer{RollNumber: r.RollNumber, TotalMarks: round2(r.TotalMarks)})
	}
	return out
}

func limit(ps []entity.Performer, n int) []entity.Performer {
	if len(ps) > n {
		ps = ps[:n]
	}
	if ps == nil {
		return []entity.Performer{}
	}
	return ps
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
