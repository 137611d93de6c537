package llm

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sheetJSON(q3 string, total string) []byte {
	var qs []string
	for i := 1; i <= 6; i++ {
		block := `{"a": 2, "b": 1, "c": 0, "d": 1.5}`
		if i == 3 {
			block = q3
		}
		qs = append(qs, fmt.Sprintf(`"Q%d": %s`, i, block))
	}
	return []byte(fmt.Sprintf(`{"roll_number": "A23000000001", "questions": {%s}, "total_marks": %s}`, strings.Join(qs, ","), total))
}

func validateSheet(t *testing.T, data []byte) error {
	t.Helper()
	schema, err := CompileSchema(BuildExamJSONSchema())
	require.NoError(t, err)
	v, err := LocateJSON(string(data))
	if err != nil {
		return err
	}
	return ValidateValue(schema, v)
}

func TestExamSchema(t *testing.T) {
	require.NoError(t, validateSheet(t, sheetJSON(`{"a": 8, "b": 0, "c": 0, "d": 0}`, "27")))

	cases := map[string][]byte{
		"part above range": sheetJSON(`{"a": 9, "b": 0, "c": 0, "d": 0}`, "27"),
		"bare number":      sheetJSON(`7`, "27"),
		"missing part":     sheetJSON(`{"a": 1, "b": 0, "c": 0}`, "27"),
		"negative total":   sheetJSON(`{"a": 1, "b": 0, "c": 0, "d": 0}`, "-1"),
		"string part":      sheetJSON(`{"a": "1", "b": 0, "c": 0, "d": 0}`, "27"),
		"extra question":   []byte(strings.Replace(string(sheetJSON(`{"a": 1, "b": 0, "c": 0, "d": 0}`, "1")), `"Q1"`, `"Q7": {}, "Q1"`, 1)),
		"not json":         []byte(`{`),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, validateSheet(t, data))
		})
	}
}

func TestCompileSchema_Invalid(t *testing.T) {
	_, err := CompileSchema(map[string]any{"type": 12})
	assert.Error(t, err)
}
