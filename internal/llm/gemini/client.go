// Package gemini implements the raw and structured extraction adapters on top
// of the Gemini generative API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/extract"
	"github.com/joseph-ayodele/exam-grader/internal/llm"
)

// generator is the part of *genai.GenerativeModel the adapters use.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Client implements extract.RawExtractor and extract.StructuredExtractor.
// It never retries; a failed call is reported to the caller as is.
type Client struct {
	cfg       Config
	api       *genai.Client
	extractor generator
	structure generator
	limiter   *rate.Limiter
	schema    *jsonschema.Schema
	log       *slog.Logger
}

var (
	_ extract.RawExtractor        = (*Client)(nil)
	_ extract.StructuredExtractor = (*Client)(nil)
)

// New dials the Gemini API and prepares one model per stage.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	api, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	extractModel := api.GenerativeModel(cfg.Model)
	extractModel.GenerationConfig = genai.GenerationConfig{
		Temperature:     ptrFloat32(cfg.ExtractTemperature),
		TopP:            ptrFloat32(1),
		TopK:            ptrInt32(1),
		MaxOutputTokens: ptrInt32(cfg.MaxOutputTokens),
	}

	structureModel := api.GenerativeModel(cfg.Model)
	structureModel.GenerationConfig = genai.GenerationConfig{
		Temperature:     ptrFloat32(cfg.StructureTemperature),
		TopP:            ptrFloat32(1),
		TopK:            ptrInt32(32),
		MaxOutputTokens: ptrInt32(cfg.MaxOutputTokens),
	}
	structureModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(llm.BuildStructuringPrompt())},
	}

	c := newClient(cfg, extractModel, structureModel, logger)
	c.api = api
	return c, nil
}

func newClient(cfg Config, extractor, structure generator, logger *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	c := &Client{
		cfg:       cfg,
		extractor: extractor,
		structure: structure,
		limiter:   limiter,
		log:       logger,
	}
	schema, err := llm.CompileSchema(llm.BuildExamJSONSchema())
	if err != nil {
		logger.Warn("gemini.schema.compile_failed", "error", err)
	} else {
		c.schema = schema
	}
	return c
}

// Close releases the underlying API connection.
func (c *Client) Close() error {
	if c.api == nil {
		return nil
	}
	return c.api.Close()
}

// Extract transcribes the answer sheet image into free text.
func (c *Client) Extract(ctx context.Context, img extract.Image) (string, error) {
	rid := common.RequestIDFromContext(ctx)
	start := time.Now()

	c.log.Info("gemini.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.ExtractTemperature,
		"file", img.Name,
		"mime", img.MIMEType,
		"bytes", len(img.Data),
	)

	resp, err := c.generate(ctx, c.extractor,
		imagePart(img),
		genai.Text(llm.BuildExtractionPrompt()),
	)
	if err != nil {
		c.log.Error("gemini.extract.error",
			"req_id", rid, "file", img.Name, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	text := strings.TrimSpace(firstText(resp))
	if text == "" {
		c.log.Error("gemini.extract.no_text",
			"req_id", rid, "file", img.Name,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", common.ErrNoText
	}

	c.log.Info("gemini.extract.ok",
		"req_id", rid,
		"file", img.Name,
		"text_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// Structure turns stage-one text plus the image into a loosely-typed candidate.
// The candidate is not validated here beyond a logged schema diagnostic.
func (c *Client) Structure(ctx context.Context, text string, img extract.Image) (entity.Candidate, error) {
	rid := common.RequestIDFromContext(ctx)
	start := time.Now()

	c.log.Info("gemini.structure.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.StructureTemperature,
		"file", img.Name,
		"text_len", len(text),
	)

	resp, err := c.generate(ctx, c.structure,
		genai.Text(llm.BuildStructuringUserPrompt(text)),
		imagePart(img),
	)
	if err != nil {
		c.log.Error("gemini.structure.error",
			"req_id", rid, "file", img.Name, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	content := strings.TrimSpace(firstText(resp))
	if content == "" {
		c.log.Error("gemini.structure.no_text",
			"req_id", rid, "file", img.Name,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, common.ErrNoText
	}

	candidate, err := llm.LocateJSON(content)
	if err != nil {
		c.log.Error("gemini.structure.unparseable",
			"req_id", rid, "file", img.Name, "error", err,
			"content_len", len(content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	if c.schema != nil {
		if vErr := llm.ValidateValue(c.schema, candidate); vErr != nil {
			c.log.Warn("gemini.structure.schema_mismatch",
				"req_id", rid, "file", img.Name, "error", vErr,
				"content", string(llm.Marshal(candidate)),
			)
		}
	}

	c.log.Info("gemini.structure.ok",
		"req_id", rid,
		"file", img.Name,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return candidate, nil
}

// generate waits for the limiter and runs one bounded call. Every failure of
// the call itself is reported as ErrServiceUnavailable.
func (c *Client) generate(ctx context.Context, g generator, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", common.ErrServiceUnavailable, err)
	}

	callCtx, cancel := common.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := g.GenerateContent(callCtx, parts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrServiceUnavailable, err)
	}
	return resp, nil
}

func imagePart(img extract.Image) genai.Part {
	return genai.Blob{
		MIMEType: llm.PickMIME(img.MIMEType, "", img.Data),
		Data:     img.Data,
	}
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
func ptrInt32(v int32) *int32       { return &v }
