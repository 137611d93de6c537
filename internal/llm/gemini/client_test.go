package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/extract"
)

type fakeGenerator struct {
	texts []string
	err   error
	parts []genai.Part
	calls int
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.parts = parts
	if f.err != nil {
		return nil, f.err
	}
	content := &genai.Content{}
	for _, t := range f.texts {
		content.Parts = append(content.Parts, genai.Text(t))
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content}},
	}, nil
}

var sheet = extract.Image{Name: "sheet.png", MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}

func TestExtract(t *testing.T) {
	gen := &fakeGenerator{texts: []string{"Roll No: A23000000001\n", "Q1: 5 0 8 5"}}
	c := newClient(Config{Timeout: time.Second}, gen, &fakeGenerator{}, nil)

	text, err := c.Extract(context.Background(), sheet)
	require.NoError(t, err)
	assert.Equal(t, "Roll No: A23000000001\nQ1: 5 0 8 5", text)

	require.Len(t, gen.parts, 2)
	blob, ok := gen.parts[0].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/png", blob.MIMEType)
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
		want error
	}{
		{name: "service error", gen: &fakeGenerator{err: errors.New("503 backend")}, want: common.ErrServiceUnavailable},
		{name: "blank text", gen: &fakeGenerator{texts: []string{"  \n"}}, want: common.ErrNoText},
		{name: "no candidates", gen: &fakeGenerator{}, want: common.ErrNoText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(Config{}, tt.gen, &fakeGenerator{}, nil)
			_, err := c.Extract(context.Background(), sheet)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, tt.gen.calls)
		})
	}
}

func TestStructure(t *testing.T) {
	gen := &fakeGenerator{texts: []string{"Sure!\n```json\n{\"roll_number\": \"A23000000001\", \"questions\": {}, \"total_marks\": 12}\n```"}}
	c := newClient(Config{}, &fakeGenerator{}, gen, nil)

	cand, err := c.Structure(context.Background(), "Roll No: A23000000001", sheet)
	require.NoError(t, err)

	doc, ok := cand.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "A23000000001", doc["roll_number"])

	require.Len(t, gen.parts, 2)
	prompt, ok := gen.parts[0].(genai.Text)
	require.True(t, ok)
	assert.Contains(t, string(prompt), "Roll No: A23000000001")
}

func TestStructure_Failures(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
		want error
	}{
		{name: "service error", gen: &fakeGenerator{err: context.DeadlineExceeded}, want: common.ErrServiceUnavailable},
		{name: "empty", gen: &fakeGenerator{texts: []string{""}}, want: common.ErrNoText},
		{name: "prose only", gen: &fakeGenerator{texts: []string{"The sheet is unreadable."}}, want: common.ErrUnparseable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(Config{}, &fakeGenerator{}, tt.gen, nil)
			_, err := c.Structure(context.Background(), "text", sheet)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGenerate_CancelledContext(t *testing.T) {
	gen := &fakeGenerator{texts: []string{"x"}}
	c := newClient(Config{RequestsPerMinute: 1}, gen, gen, nil)

	// Drain the single token so the next call has to wait.
	_, err := c.Extract(context.Background(), sheet)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Extract(ctx, sheet)
	assert.ErrorIs(t, err, common.ErrServiceUnavailable)
	assert.Equal(t, 1, gen.calls)
}
