package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/analytics"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/export"
	"github.com/joseph-ayodele/exam-grader/internal/pipeline"
	"github.com/joseph-ayodele/exam-grader/internal/repository"
	"github.com/joseph-ayodele/exam-grader/internal/review"
	"github.com/joseph-ayodele/exam-grader/internal/services/grading"
)

// stubProcessor accepts every upload as one record named after the file.
type stubProcessor struct{}

func (stubProcessor) Process(_ context.Context, uploads []pipeline.Upload, _ entity.BatchContext) (pipeline.BatchResult, error) {
	res := pipeline.BatchResult{BatchID: "b1"}
	for _, up := range uploads {
		if strings.HasPrefix(up.Filename, "bad") {
			res.Outcomes = append(res.Outcomes, pipeline.ImageOutcome{Filename: up.Filename, Status: constants.ImageStatusExtractFailed})
			continue
		}
		qs := entity.ZeroQuestions()
		qs["Q1"] = entity.PartScore{A: 4, B: 4, C: 4, D: 4}
		res.Records = append(res.Records, entity.ExamRecord{RollNumber: strings.TrimSuffix(up.Filename, ".png"), Questions: qs, TotalMarks: 28})
		res.Outcomes = append(res.Outcomes, pipeline.ImageOutcome{Filename: up.Filename, Status: constants.ImageStatusAccepted})
	}
	if len(res.Records) == 0 {
		return res, common.ErrNoUsableRecords
	}
	return res, nil
}

func newTestServer(t *testing.T, health HealthFunc) *HTTPServer {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{Driver: repository.DriverSQLite, DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))

	repo := repository.NewResultRepository(db, nil)
	svc := grading.NewService(stubProcessor{}, repo, analytics.NewEngine(repo, nil), export.NewService(nil), review.NewStore(), nil)
	return NewHTTPServer(svc, health, common.ServerConfig{SessionCookie: "session_id", MaxUploadMB: 4}, nil)
}

func uploadRequest(t *testing.T, session string, files ...string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, name := range files {
		part, err := w.CreateFormFile("files[]", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("image"))
		require.NoError(t, err)
	}
	require.NoError(t, w.WriteField("class", "TY"))
	require.NoError(t, w.WriteField("subject", "DBMS"))
	require.NoError(t, w.WriteField("examType", "MID1"))
	require.NoError(t, w.WriteField("academicYear", "2025"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if session != "" {
		req.Header.Set(headerSessionID, session)
	}
	return req
}

func do(t *testing.T, s *HTTPServer, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, body
}

func jsonRequest(t *testing.T, method, path string, v any) *http.Request {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestUploadAndAnalysis(t *testing.T) {
	s := newTestServer(t, nil)

	resp, body := do(t, s, uploadRequest(t, "sess-1", "A1.png", "bad.png", "A2.png"))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var up grading.UploadResult
	require.NoError(t, json.Unmarshal(body, &up))
	assert.Equal(t, "Successfully processed 2 files", up.Message)
	assert.Len(t, up.Records, 2)
	assert.Len(t, up.Outcomes, 3)

	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, "/api/analysis?year=TY&subject=DBMS&examType=MID1", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var a entity.Analysis
	require.NoError(t, json.Unmarshal(body, &a))
	assert.Equal(t, 2, a.Overall.TotalStudents)
	assert.Equal(t, 28.0, a.Overall.AverageMarks)

	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, "/api/filters", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var opts entity.FilterOptions
	require.NoError(t, json.Unmarshal(body, &opts))
	assert.Equal(t, []string{"DBMS"}, opts.Subjects)

	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, "/api/view-marks?year=TY", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var marks struct {
		Results []entity.StoredResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(body, &marks))
	require.Len(t, marks.Results, 2)
	assert.Equal(t, entity.PartScore{A: 4, B: 4, C: 4, D: 4}, marks.Results[0].Questions["Q1"])
}

func TestUpload_NoUsableRecords(t *testing.T) {
	s := newTestServer(t, nil)

	resp, body := do(t, s, uploadRequest(t, "", "bad.png"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "No valid data extracted from files")
	assert.NotEmpty(t, resp.Header.Get(headerSessionID))
}

func TestUpload_MissingFields(t *testing.T) {
	s := newTestServer(t, nil)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("files[]", "A1.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("x"))
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, _ := do(t, s, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPendingReviewFlow(t *testing.T) {
	s := newTestServer(t, nil)
	resp, _ := do(t, s, uploadRequest(t, "sess-2", "A1.png", "A2.png"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	get := func(method, path string) (*http.Response, []byte) {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set(headerSessionID, "sess-2")
		return do(t, s, req)
	}

	resp, body := get(http.MethodGet, "/api/results")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending struct {
		Results []entity.ExamRecord `json:"results"`
	}
	require.NoError(t, json.Unmarshal(body, &pending))
	assert.Len(t, pending.Results, 2)

	resp, _ = get(http.MethodPost, "/api/results/delete-last")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = get(http.MethodGet, "/api/results/export")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxMIME, resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, body)

	// another session sees nothing
	req := httptest.NewRequest(http.MethodGet, "/api/results/export", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "other"})
	resp, _ = do(t, s, req)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteAndUpdateResult(t *testing.T) {
	s := newTestServer(t, nil)
	resp, _ := do(t, s, uploadRequest(t, "", "A1.png"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ref := map[string]any{"roll_number": "A1", "class_year": "TY", "subject": "DBMS", "exam_type": "MID1"}

	update := map[string]any{"total_marks": 30, "questions": map[string]any{"Q2": map[string]any{"a": 5}}}
	for k, v := range ref {
		update[k] = v
	}
	resp, body := do(t, s, jsonRequest(t, http.MethodPut, "/api/results", update))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	missing := map[string]any{"roll_number": "ZZ", "class_year": "TY", "subject": "DBMS", "exam_type": "MID1"}
	resp, body = do(t, s, jsonRequest(t, http.MethodDelete, "/api/results", missing))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "Result not found")

	resp, _ = do(t, s, jsonRequest(t, http.MethodDelete, "/api/results", ref))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, s, jsonRequest(t, http.MethodDelete, "/api/results", map[string]any{"roll_number": "A1"}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	resp, _ := do(t, newTestServer(t, func(context.Context) error { return nil }), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newTestServer(t, func(context.Context) error { return errors.New("db down") })
	resp, body := do(t, down, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "db down")
}
