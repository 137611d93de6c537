package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/exam-grader/internal/common"
)

var (
	reJSONFence = regexp.MustCompile("(?s)```json[ \\t]*\\r?\\n(.*?)\\r?\\n?```")
	reAnyFence  = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \\t]*\\r?\\n(.*?)\\r?\\n?```")
)

// LocateJSON finds the JSON payload in a model response and decodes it into a
// generic value. Candidates are tried in order: a ```json fence, any fence, the
// whole response, then the span from the first '{' to the last '}'.
// Numbers decode as json.Number.
func LocateJSON(text string) (any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, common.ErrNoText
	}

	for _, c := range jsonCandidates(text) {
		if v, err := decodeStrict(c); err == nil {
			return v, nil
		}
	}
	return nil, common.ErrUnparseable
}

func jsonCandidates(text string) []string {
	var out []string
	if m := reJSONFence.FindStringSubmatch(text); m != nil {
		out = append(out, m[1])
	}
	if m := reAnyFence.FindStringSubmatch(text); m != nil {
		out = append(out, m[1])
	}
	out = append(out, text)
	if i, j := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}'); i >= 0 && j > i {
		out = append(out, text[i:j+1])
	}
	return out
}

// decodeStrict decodes exactly one JSON value; trailing non-space content is an error.
func decodeStrict(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(s)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing content after JSON value")
	}
	return v, nil
}

// Marshal re-encodes a located value for logging and schema checks.
func Marshal(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil
	}
	return bytes.TrimSpace(buf.Bytes())
}
