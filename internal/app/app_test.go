package app_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/xiaowei/internal/app"
	"github.com/xhad/xiaowei/internal/models"
	"github.com/xhad/xiaowei/pkg/config"
)

func loadConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	for _, env := range []string{"OLLAMA_BASE_URL", "DATABASE_URL", "SPEECH_API_URL", "SPEECH_API_KEY", "PORT"} {
		t.Setenv(env, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	return cfg
}

func TestBuildInMemory(t *testing.T) {
	cfg := loadConfig(t, "embedder:\n  type: hash\n  dimension: 32\n")
	ctx := context.Background()

	a, err := app.Build(ctx, cfg)
	require.NoError(t, err)
	defer a.Close()

	content := base64.StdEncoding.EncodeToString([]byte("今天天气很好。我喜欢跑步。"))
	uploaded, err := a.Assistant.UploadDocument(ctx, 1, "weather.txt", content, "text/plain")
	require.NoError(t, err)

	results, err := a.Retrieval.Query(ctx, "天气", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uploaded.DocumentID, results[0].DocumentID)
	assert.Equal(t, "今天天气很好。我喜欢跑步。", results[0].Content)

	_, err = a.Assistant.Speak(ctx, "你好")
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)

	rec := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildWithSpeech(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, "speech:\n  base_url: http://localhost:9\n  audio_dir: "+dir+"\n")

	a, err := app.Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	url, err := a.Assistant.SaveRecording(context.Background(), []byte("webm"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "webm", rec.Body.String())
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := loadConfig(t, "index:\n  type: pgvector\n")

	_, err := app.Build(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index.type")
}
