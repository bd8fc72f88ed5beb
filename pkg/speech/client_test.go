package speech_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/xiaowei/internal/models"
	"github.com/xhad/xiaowei/pkg/speech"
)

func newClient(t *testing.T, handler http.HandlerFunc) (*speech.Client, *speech.FileAudioStore) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store, err := speech.NewFileAudioStore(t.TempDir(), "/audio")
	require.NoError(t, err)

	client, err := speech.NewClient(speech.Config{
		BaseURL:           server.URL,
		APIKey:            "secret",
		RequestsPerSecond: 100,
	}, store)
	require.NoError(t, err)
	return client, store
}

func TestSpeak(t *testing.T) {
	var got map[string]string
	client, store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake-mp3"))
	})

	audioURL, err := client.Speak(context.Background(), "你好", "")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"model": "tts-1", "input": "你好", "voice": "alloy"}, got)
	assert.True(t, strings.HasPrefix(audioURL, "/audio/tts/"))
	assert.True(t, strings.HasSuffix(audioURL, ".mp3"))

	data, err := os.ReadFile(filepath.Join(store.Dir, strings.TrimPrefix(audioURL, "/audio/")))
	require.NoError(t, err)
	assert.Equal(t, "ID3fake-mp3", string(data))
}

func TestSpeakProviderError(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := client.Speak(context.Background(), "hello", "nova")
	assert.ErrorIs(t, err, models.ErrSpeechFailed)
	assert.Contains(t, err.Error(), "text to speech failed")

	_, err = client.Speak(context.Background(), " ", "nova")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestTranscribeStoredRecording(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "zh", r.FormValue("language"))

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "webm-bytes", string(data))

		json.NewEncoder(w).Encode(map[string]string{"text": "今天天气怎么样", "language": "chinese"})
	})

	audioURL, err := client.SaveRecording(context.Background(), []byte("webm-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(audioURL, "/audio/audio/"))

	result, err := client.Transcribe(context.Background(), audioURL, "zh")
	require.NoError(t, err)
	assert.Equal(t, "今天天气怎么样", result.Text)
	assert.Equal(t, "chinese", result.Language)
}

func TestTranscribeRemoteRecording(t *testing.T) {
	recordings := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote-audio"))
	}))
	defer recordings.Close()

	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "hello"})
	})

	result, err := client.Transcribe(context.Background(), recordings.URL+"/clip.mp3", "")
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Text)
	assert.Equal(t, "unknown", result.Language)
}

func TestTranscribeInvalidURL(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called")
	})

	_, err := client.Transcribe(context.Background(), "invalid-url", "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestSaveRecordingRejectsEmpty(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := client.SaveRecording(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestFileAudioStoreStaysInDir(t *testing.T) {
	store, err := speech.NewFileAudioStore(t.TempDir(), "/audio/")
	require.NoError(t, err)

	url, err := store.Save(context.Background(), "../../escape.mp3", []byte("x"), "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "/audio/escape.mp3", url)

	_, err = os.Stat(filepath.Join(store.Dir, "escape.mp3"))
	assert.NoError(t, err)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	store, err := speech.NewFileAudioStore(t.TempDir(), "/audio")
	require.NoError(t, err)

	_, err = speech.NewClient(speech.Config{}, store)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
