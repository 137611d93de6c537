package gemini

import (
	"os"
	"time"

	"github.com/joseph-ayodele/exam-grader/internal/common"
)

// Config for the Gemini adapters.
type Config struct {
	APIKey               string        // if empty, falls back to env GEMINI_API_KEY
	Model                string        // e.g., "gemini-2.0-flash"
	ExtractTemperature   float32       // stage one, 0 for literal transcription
	StructureTemperature float32       // stage two
	MaxOutputTokens      int32         // per response
	Timeout              time.Duration // per call
	RequestsPerMinute    int           // 0 disables the limiter
}

// ConfigFrom maps the application config section onto the client config.
func ConfigFrom(c common.GeminiConfig) Config {
	return Config{
		APIKey:               c.APIKey,
		Model:                c.Model,
		ExtractTemperature:   c.ExtractTemperature,
		StructureTemperature: c.StructureTemperature,
		MaxOutputTokens:      c.MaxOutputTokens,
		Timeout:              c.Timeout,
		RequestsPerMinute:    c.RequestsPerMinute,
	}
}

func (c Config) withDefaults() Config {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Model == "" {
		c.Model = "gemini-2.0-flash"
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 2048
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}
