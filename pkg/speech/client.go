// Package speech talks to an OpenAI-compatible speech provider for
// text-to-speech and transcription.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/xiaowei/internal/models"
	"golang.org/x/time/rate"
)

// MaxAudioSize bounds recordings sent for transcription.
const MaxAudioSize = 16 << 20

type Config struct {
	BaseURL           string
	APIKey            string
	TTSModel          string
	STTModel          string
	RequestsPerSecond float64
	Timeout           time.Duration
}

type Transcription struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type Client struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	audio   AudioStore
}

func NewClient(config Config, audio AudioStore) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("%w: speech base URL is required", models.ErrInvalidInput)
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: speech base URL: %v", models.ErrInvalidInput, err)
	}
	if audio == nil {
		return nil, fmt.Errorf("%w: audio store is required", models.ErrInvalidInput)
	}
	if config.TTSModel == "" {
		config.TTSModel = "tts-1"
	}
	if config.STTModel == "" {
		config.STTModel = "whisper-1"
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &Client{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		audio:   audio,
	}, nil
}

func (c *Client) endpoint(p string) string {
	return strings.TrimSuffix(c.config.BaseURL, "/") + "/" + p
}

// Speak synthesizes text with voice and returns the URL of the stored mp3.
func (c *Client) Speak(ctx context.Context, text, voice string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: text is empty", models.ErrInvalidInput)
	}
	if voice == "" {
		voice = "alloy"
	}

	log.Printf("[TTS] Starting text-to-speech conversion: %d chars, voice %s", len([]rune(text)), voice)

	body, err := json.Marshal(map[string]string{
		"model": c.config.TTSModel,
		"input": text,
		"voice": voice,
	})
	if err != nil {
		return "", fmt.Errorf("%w: text to speech failed: %v", models.ErrSpeechFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("v1/audio/speech"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: text to speech failed: %v", models.ErrSpeechFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	audio, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("%w: text to speech failed: %v", models.ErrSpeechFailed, err)
	}
	log.Printf("[TTS] Audio generated, size: %d bytes", len(audio))

	audioURL, err := c.audio.Save(ctx, fmt.Sprintf("tts/%s.mp3", uuid.New().String()), audio, "audio/mpeg")
	if err != nil {
		return "", fmt.Errorf("%w: text to speech failed: %v", models.ErrSpeechFailed, err)
	}
	return audioURL, nil
}

// Transcribe fetches the recording at audioURL and returns its text. An empty
// language lets the provider detect it.
func (c *Client) Transcribe(ctx context.Context, audioURL, language string) (*Transcription, error) {
	audio, err := c.fetchAudio(ctx, audioURL)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", path.Base(audioURL))
	if err != nil {
		return nil, fmt.Errorf("%w: speech to text failed: %v", models.ErrSpeechFailed, err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("%w: speech to text failed: %v", models.ErrSpeechFailed, err)
	}
	fields := map[string]string{
		"model":           c.config.STTModel,
		"response_format": "verbose_json",
	}
	if language != "" {
		fields["language"] = language
	}
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("%w: speech to text failed: %v", models.ErrSpeechFailed, err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("%w: speech to text failed: %v", models.ErrSpeechFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("v1/audio/transcriptions"), &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: speech to text failed: %v", models.ErrSpeechFailed, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: speech to text failed: %v", models.ErrSpeechFailed, err)
	}

	var result Transcription
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: speech to text failed: decode response: %v", models.ErrSpeechFailed, err)
	}
	if result.Language == "" {
		result.Language = "unknown"
	}
	return &result, nil
}

// SaveRecording stores an uploaded webm recording and returns its URL.
func (c *Client) SaveRecording(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: no audio data provided", models.ErrInvalidInput)
	}
	if len(data) > MaxAudioSize {
		return "", fmt.Errorf("%w: audio exceeds %d bytes", models.ErrInvalidInput, MaxAudioSize)
	}
	return c.audio.Save(ctx, fmt.Sprintf("audio/%s.webm", uuid.New().String()), data, "audio/webm")
}

func (c *Client) fetchAudio(ctx context.Context, audioURL string) ([]byte, error) {
	if r, ok := c.audio.(audioReader); ok {
		data, found, err := r.Read(ctx, audioURL)
		if found {
			if err != nil {
				return nil, fmt.Errorf("%w: speech to text failed: %v", models.ErrSpeechFailed, err)
			}
			return data, nil
		}
	}

	u, err := url.Parse(audioURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: invalid audio URL %q", models.ErrInvalidInput, audioURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid audio URL %q", models.ErrInvalidInput, audioURL)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: speech to text failed: download audio: %v", models.ErrSpeechFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: speech to text failed: download audio: status %d", models.ErrSpeechFailed, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxAudioSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: speech to text failed: download audio: %v", models.ErrSpeechFailed, err)
	}
	if len(data) > MaxAudioSize {
		return nil, fmt.Errorf("%w: audio exceeds %d bytes", models.ErrInvalidInput, MaxAudioSize)
	}
	return data, nil
}

// do waits for the limiter, sends req with credentials and returns the body
// of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Speech] Service request failed: %s %s: %s", req.URL.Path, resp.Status, strings.TrimSpace(string(body)))
		return nil, fmt.Errorf("service request failed: %s", resp.Status)
	}
	return body, nil
}
