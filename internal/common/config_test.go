package common

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("GEMINI_MODEL", "")
	t.Setenv("BATCH_WORKERS", "")

	cfg := LoadConfig()
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
	assert.Equal(t, float32(0), cfg.Gemini.ExtractTemperature)
	assert.Equal(t, float32(1), cfg.Gemini.StructureTemperature)
	assert.Equal(t, 1, cfg.Batch.Workers)
	assert.Equal(t, 3*time.Minute, cfg.Batch.ImageTimeout)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_URL", "file:grades.db")
	t.Setenv("BATCH_WORKERS", "4")
	t.Setenv("GEMINI_TIMEOUT", "15s")
	t.Setenv("GEMINI_STRUCTURE_TEMPERATURE", "0.5")
	t.Setenv("DB_MAX_CONNS", "not a number")

	cfg := LoadConfig()
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:grades.db", cfg.Database.DSN)
	assert.Equal(t, 4, cfg.Batch.Workers)
	assert.Equal(t, 15*time.Second, cfg.Gemini.Timeout)
	assert.Equal(t, float32(0.5), cfg.Gemini.StructureTemperature)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
}

func TestLoadConfigFile_Overlay(t *testing.T) {
	t.Setenv("DB_URL", "postgres://env")
	t.Setenv("HTTP_ADDR", ":7000")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
  dsn: ":memory:"
batch:
  workers: 3
  image_timeout: 90s
`), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, ":memory:", cfg.Database.DSN)
	assert.Equal(t, 3, cfg.Batch.Workers)
	assert.Equal(t, 90*time.Second, cfg.Batch.ImageTimeout)
	assert.Equal(t, ":7000", cfg.Server.HTTPAddr)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_URL", ":memory:")
	t.Setenv("GEMINI_API_KEY", "key")

	cfg := LoadConfig()
	require.NoError(t, cfg.Validate())

	cfg.Database.Driver = "mysql"
	cfg.Gemini.APIKey = ""
	err := cfg.Validate()
	require.Error(t, err)

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONFIG_ERROR", appErr.Code)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "Driver")
	assert.Contains(t, err.Error(), "APIKey")
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrResultNotFound, http.StatusNotFound},
		{WrapError(ErrNotFound, "pending"), http.StatusNotFound},
		{ValidationErrors{{Field: "x"}}, http.StatusBadRequest},
		{ErrUnsupportedFile, http.StatusBadRequest},
		{ErrNoUsableRecords, http.StatusUnprocessableEntity},
		{ErrServiceUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HTTPStatus(c.err), "%v", c.err)
	}
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Result not found", UserMessage(WrapError(ErrResultNotFound, "delete")))
	assert.Equal(t, "invalid configuration", UserMessage(NewAppError("CONFIG_ERROR", "invalid configuration", nil)))
	assert.Equal(t, "", UserMessage(nil))

	stored := fmt.Errorf("%w: A1: insert result: constraint failed: UNIQUE", ErrDatabase)
	assert.Equal(t, "Database error, please try again later", UserMessage(stored))
	assert.NotContains(t, UserMessage(stored), "constraint")
	assert.Equal(t, "Internal server error", UserMessage(errors.New("scan marks row: sql: no rows")))
	assert.Equal(t, "invalid input: no files uploaded", UserMessage(fmt.Errorf("%w: no files uploaded", ErrInvalidInput)))
}
