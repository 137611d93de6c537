// Package server exposes the grading service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/pipeline"
	"github.com/joseph-ayodele/exam-grader/internal/services/grading"
)

const (
	headerSessionID = "X-Session-ID"
	headerRequestID = "X-Request-ID"
	xlsxMIME        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// GradingService is what the HTTP layer calls into.
type GradingService interface {
	Upload(ctx context.Context, uploads []pipeline.Upload, bc entity.BatchContext) (grading.UploadResult, error)
	DeleteResult(ctx context.Context, ref entity.ResultRef) error
	UpdateResult(ctx context.Context, ref entity.ResultRef, questions entity.Questions, total float64) error
	Analyze(ctx context.Context, f entity.Filter) (entity.Analysis, error)
	ViewMarks(ctx context.Context, f entity.Filter) ([]entity.StoredResult, error)
	FilterOptions(ctx context.Context) (entity.FilterOptions, error)
	Pending(session string) ([]entity.ExamRecord, entity.Classification)
	DeleteLast(session string) (entity.ExamRecord, error)
	ExportPending(ctx context.Context, session string) ([]byte, error)
}

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(ctx context.Context) error

type HTTPServer struct {
	app    *fiber.App
	svc    GradingService
	health HealthFunc
	cookie string
	logger *slog.Logger
}

// NewHTTPServer builds the fiber app and registers every route.
func NewHTTPServer(svc GradingService, health HealthFunc, cfg common.ServerConfig, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = "session_id"
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 64
	}

	s := &HTTPServer{svc: svc, health: health, cookie: cfg.SessionCookie, logger: logger}
	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             cfg.MaxUploadMB * 1024 * 1024,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))
	s.app.Use(s.requestContext)
	s.routes()
	return s
}

// App exposes the underlying fiber app, mostly for tests.
func (s *HTTPServer) App() *fiber.App { return s.app }

func (s *HTTPServer) Listen(addr string) error {
	s.logger.Info("http.listen", "addr", addr)
	return s.app.Listen(addr)
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *HTTPServer) routes() {
	s.app.Get("/healthz", s.healthz)

	api := s.app.Group("/api")
	api.Post("/upload", s.upload)
	api.Get("/results", s.pending)
	api.Post("/results/delete-last", s.deleteLast)
	api.Get("/results/export", s.export)
	api.Delete("/results", s.deleteResult)
	api.Put("/results", s.updateResult)
	api.Get("/analysis", s.analysis)
	api.Get("/view-marks", s.viewMarks)
	api.Get("/filters", s.filters)
}

// requestContext tags every request with a request id and a review session,
// then logs the outcome.
func (s *HTTPServer) requestContext(c *fiber.Ctx) error {
	start := time.Now()

	rid := strings.TrimSpace(c.Get(headerRequestID))
	if rid == "" {
		rid = uuid.NewString()
	}
	c.Set(headerRequestID, rid)

	session := strings.TrimSpace(c.Get(headerSessionID))
	if session == "" {
		session = c.Cookies(s.cookie)
	}
	if session == "" {
		session = uuid.NewString()
		c.Cookie(&fiber.Cookie{Name: s.cookie, Value: session, HTTPOnly: true, SameSite: fiber.CookieSameSiteLaxMode})
	}
	c.Set(headerSessionID, session)

	ctx := common.WithRequestID(c.UserContext(), rid)
	ctx = common.WithSessionID(ctx, session)
	c.SetUserContext(ctx)

	err := c.Next()
	if err != nil {
		// resolve the status now so the log line carries it
		if herr := s.handleError(c, err); herr != nil {
			return herr
		}
	}
	s.logger.Info("http.request",
		"req_id", rid,
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *HTTPServer) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	status := common.HTTPStatus(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("http.error", "req_id", common.RequestIDFromContext(c.UserContext()), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": common.UserMessage(err)})
}

func sessionOf(c *fiber.Ctx) string {
	return common.SessionIDFromContext(c.UserContext())
}

func (s *HTTPServer) healthz(c *fiber.Ctx) error {
	if s.health != nil {
		if err := s.health(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "error": err.Error()})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *HTTPServer) upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "expected multipart form")
	}
	files := append(form.File["files[]"], form.File["files"]...)
	if len(files) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no files uploaded")
	}

	uploads := make([]pipeline.Upload, 0, len(files))
	for _, fh := range files {
		data, err := readPart(fh)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("read %s: %v", fh.Filename, err))
		}
		uploads = append(uploads, pipeline.Upload{Filename: fh.Filename, Data: data})
	}

	bc := entity.BatchContext{
		Classification: entity.Classification{
			ClassYear:    c.FormValue("class"),
			Subject:      c.FormValue("subject"),
			ExamType:     c.FormValue("examType"),
			AcademicYear: c.FormValue("academicYear"),
		},
		RequestID: common.RequestIDFromContext(c.UserContext()),
		SessionID: sessionOf(c),
	}

	res, err := s.svc.Upload(c.UserContext(), uploads, bc)
	if err != nil {
		status := common.HTTPStatus(err)
		if status >= fiber.StatusInternalServerError {
			s.logger.Error("http.error", "req_id", bc.RequestID, "path", c.Path(), "error", err)
		}
		return c.Status(status).JSON(fiber.Map{
			"error":    common.UserMessage(err),
			"outcomes": res.Outcomes,
		})
	}
	return c.JSON(res)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *HTTPServer) pending(c *fiber.Ctx) error {
	records, cls := s.svc.Pending(sessionOf(c))
	return c.JSON(fiber.Map{"results": records, "classification": cls})
}

func (s *HTTPServer) deleteLast(c *fiber.Ctx) error {
	rec, err := s.svc.DeleteLast(sessionOf(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Last result deleted", "deleted": rec})
}

func (s *HTTPServer) export(c *fiber.Ctx) error {
	data, err := s.svc.ExportPending(c.UserContext(), sessionOf(c))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, xlsxMIME)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="exam_results.xlsx"`)
	return c.Send(data)
}

func (s *HTTPServer) deleteResult(c *fiber.Ctx) error {
	var ref entity.ResultRef
	if err := c.BodyParser(&ref); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := s.svc.DeleteResult(c.UserContext(), ref); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Result deleted successfully"})
}

type updateRequest struct {
	entity.ResultRef
	Questions  entity.Questions `json:"questions"`
	TotalMarks *float64         `json:"total_marks"`
}

func (s *HTTPServer) updateResult(c *fiber.Ctx) error {
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if req.TotalMarks == nil {
		return fiber.NewError(fiber.StatusBadRequest, "total_marks is required")
	}
	if err := s.svc.UpdateResult(c.UserContext(), req.ResultRef, req.Questions, *req.TotalMarks); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Result updated successfully"})
}

func filterFrom(c *fiber.Ctx) entity.Filter {
	return entity.Filter{
		ClassYear:    c.Query("year"),
		Subject:      c.Query("subject"),
		ExamType:     c.Query("examType"),
		AcademicYear: c.Query("academicYear"),
	}
}

func (s *HTTPServer) analysis(c *fiber.Ctx) error {
	a, err := s.svc.Analyze(c.UserContext(), filterFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(a)
}

func (s *HTTPServer) viewMarks(c *fiber.Ctx) error {
	marks, err := s.svc.ViewMarks(c.UserContext(), filterFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"results": marks})
}

func (s *HTTPServer) filters(c *fiber.Ctx) error {
	opts, err := s.svc.FilterOptions(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(opts)
}
