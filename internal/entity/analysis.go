package entity

// Analysis is the aggregate view of one class/subject/exam.
type Analysis struct {
	ClassYear        string          `json:"class_year"`
	Subject          string          `json:"subject"`
	ExamType         string          `json:"exam_type"`
	AcademicYear     string          `json:"academic_year,omitempty"`
	Overall          OverallStats    `json:"overall"`
	QuestionStats    []QuestionStats `json:"question_stats"`
	Distribution     []ScoreBucket   `json:"score_distribution"`
	Toppers          []Performer     `json:"toppers"`
	NeedsImprovement []Performer     `json:"need_improvement"`
	SubjectStats     []SubjectStats  `json:"subject_stats"`
}

type OverallStats struct {
	TotalStudents  int     `json:"total_students"`
	PassCount      int     `json:"pass_count"`
	PassPercentage float64 `json:"pass_percentage"`
	AverageMarks   float64 `json:"average_marks"`
	HighestMarks   float64 `json:"highest_marks"`
	LowestMarks    float64 `json:"lowest_marks"`
}

// QuestionStats summarises one question across all students.
type QuestionStats struct {
	Question     string  `json:"question"`
	AverageA     float64 `json:"average_a"`
	AverageB     float64 `json:"average_b"`
	AverageC     float64 `json:"average_c"`
	AverageD     float64 `json:"average_d"`
	AverageTotal float64 `json:"average_total"`
	HighestTotal float64 `json:"highest_total"`
	LowestTotal  float64 `json:"lowest_total"`
}

type ScoreBucket struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

type Performer struct {
	RollNumber string  `json:"roll_number"`
	TotalMarks float64 `json:"total_marks"`
}

type SubjectStats struct {
	Subject string  `json:"subject"`
	Count   int     `json:"count"`
	Highest float64 `json:"highest"`
	Lowest  float64 `json:"lowest"`
	Average float64 `json:"average"`
}
