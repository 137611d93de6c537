package llm

import "github.com/joseph-ayodele/exam-grader/constants"

// BuildExamJSONSchema returns the expected shape of a structured extraction as a
// JSON-Schema map. It is a diagnostic only: records are accepted or rejected by
// the record package, which is more forgiving than this schema.
func BuildExamJSONSchema() map[string]any {
	partProps := map[string]any{}
	for _, p := range constants.Parts {
		partProps[p] = markProp()
	}
	question := map[string]any{
		"type":       "object",
		"properties": partProps,
		"required":   constants.Parts,
	}

	qProps := map[string]any{}
	for _, k := range constants.QuestionKeys() {
		qProps[k] = question
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"roll_number": map[string]any{"type": "string", "minLength": 1},
			"questions": map[string]any{
				"type":                 "object",
				"properties":           qProps,
				"required":             constants.QuestionKeys(),
				"additionalProperties": false,
			},
			"total_marks": map[string]any{"type": "number", "minimum": 0},
		},
		"required": []string{"roll_number", "questions", "total_marks"},
	}
}

func markProp() map[string]any {
	return map[string]any{
		"type":    "number",
		"minimum": 0,
		"maximum": constants.MaxPartScore,
	}
}
