// Package server exposes the assistant over HTTP: JSON endpoints for chat,
// knowledge base, avatar and speech operations, plus a websocket chat channel.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xhad/xiaowei/internal/models"
	"github.com/xhad/xiaowei/pkg/assistant"
	"github.com/xhad/xiaowei/pkg/speech"
)

// Assistant is the application surface the server exposes.
type Assistant interface {
	Chat(ctx context.Context, userID int64, text string, includeKnowledge bool) (*assistant.ChatReply, error)
	CheckWakeWord(ctx context.Context, text string) (bool, string)
	History(ctx context.Context, userID int64, limit int) ([]models.Conversation, error)
	UploadDocument(ctx context.Context, userID int64, name, content, fileType string) (*assistant.UploadResult, error)
	ImportURL(ctx context.Context, userID int64, url string) ([]assistant.UploadResult, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	GetDocument(ctx context.Context, id int64) (*models.Document, error)
	DeleteDocument(ctx context.Context, id int64) error
	ActiveAvatar(ctx context.Context) models.AvatarConfig
	CreateAvatar(ctx context.Context, cfg models.AvatarConfig) (int64, error)
	Speak(ctx context.Context, text string) (string, error)
	Transcribe(ctx context.Context, audioURL, language string) (*speech.Transcription, error)
	SaveRecording(ctx context.Context, data []byte) (string, error)
}

type Config struct {
	Port           int
	ChatTimeout    time.Duration
	DefaultUserID  int64
	AllowedOrigins []string
	AudioDir       string
	AudioBase      string // URL prefix audio files are served under
}

type Server struct {
	config    Config
	assistant Assistant
	mux       *http.ServeMux
}

// UserHeader carries the caller's user id. Authentication happens upstream.
const UserHeader = "X-User-ID"

func New(config Config, a Assistant) *Server {
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.ChatTimeout <= 0 {
		config.ChatTimeout = 2 * time.Minute
	}
	if config.DefaultUserID == 0 {
		config.DefaultUserID = 1
	}
	if config.AudioBase == "" {
		config.AudioBase = "/audio"
	}

	s := &Server{
		config:    config,
		assistant: a,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)

	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("POST /api/wake", s.handleWake)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)

	s.mux.HandleFunc("POST /api/docs", s.handleUpload)
	s.mux.HandleFunc("POST /api/docs/url", s.handleImportURL)
	s.mux.HandleFunc("GET /api/docs", s.handleListDocuments)
	s.mux.HandleFunc("GET /api/docs/{id}", s.handleGetDocument)
	s.mux.HandleFunc("DELETE /api/docs/{id}", s.handleDeleteDocument)

	s.mux.HandleFunc("GET /api/avatar", s.handleGetAvatar)
	s.mux.HandleFunc("POST /api/avatar", s.handleCreateAvatar)

	s.mux.HandleFunc("POST /api/tts", s.handleTTS)
	s.mux.HandleFunc("POST /api/stt", s.handleSTT)
	s.mux.HandleFunc("POST /api/audio", s.handleAudioUpload)

	// Add a simple health check endpoint
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.config.AudioDir != "" {
		prefix := strings.TrimSuffix(s.config.AudioBase, "/") + "/"
		s.mux.Handle("GET "+prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(s.config.AudioDir))))
	}
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] Listening on port %d", s.config.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Printf("[Server] Shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) userID(r *http.Request) int64 {
	if raw := r.Header.Get(UserHeader); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return s.config.DefaultUserID
}

type chatRequest struct {
	Text             string `json:"text"`
	IncludeKnowledge *bool  `json:"includeKnowledge"`
}

func (s *Server) chat(ctx context.Context, userID int64, req chatRequest) (*assistant.ChatReply, error) {
	includeKnowledge := true
	if req.IncludeKnowledge != nil {
		includeKnowledge = *req.IncludeKnowledge
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.ChatTimeout)
	defer cancel()
	return s.assistant.Chat(ctx, userID, req.Text, includeKnowledge)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}

	reply, err := s.chat(r.Context(), s.userID(r), req)
	if err != nil {
		log.Printf("[Server] Chat error: %v", err)
		writeError(w, chatError(err))
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleWake(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decode(w, r, &req) {
		return
	}

	ok, opening := s.assistant.CheckWakeWord(r.Context(), req.Text)
	resp := struct {
		IsWakeWord     bool    `json:"isWakeWord"`
		OpeningMessage *string `json:"openingMessage"`
	}{IsWakeWord: ok}
	if ok {
		resp.OpeningMessage = &opening
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, fmt.Errorf("%w: limit must be a non-negative integer", models.ErrInvalidInput))
			return
		}
		limit = n
	}

	history, err := s.assistant.History(r.Context(), s.userID(r), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if history == nil {
		history = []models.Conversation{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileName    string `json:"fileName"`
		FileContent string `json:"fileContent"` // base64
		FileType    string `json:"fileType"`
	}
	if !decode(w, r, &req) {
		return
	}

	result, err := s.assistant.UploadDocument(r.Context(), s.userID(r), req.FileName, req.FileContent, req.FileType)
	if err != nil {
		log.Printf("[Server] Document upload error: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*assistant.UploadResult
	}{true, result})
}

func (s *Server) handleImportURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !decode(w, r, &req) {
		return
	}

	results, err := s.assistant.ImportURL(r.Context(), s.userID(r), req.URL)
	if err != nil {
		log.Printf("[Server] URL import error: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": results})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.assistant.ListDocuments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := s.assistant.GetDocument(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.assistant.DeleteDocument(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleGetAvatar(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.assistant.ActiveAvatar(r.Context()))
}

func (s *Server) handleCreateAvatar(w http.ResponseWriter, r *http.Request) {
	var cfg models.AvatarConfig
	if !decode(w, r, &cfg) {
		return
	}
	id, err := s.assistant.CreateAvatar(r.Context(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decode(w, r, &req) {
		return
	}
	audioURL, err := s.assistant.Speak(r.Context(), req.Text)
	if err != nil {
		log.Printf("[TTS] Error: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"audioUrl": audioURL})
}

func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AudioURL string `json:"audioUrl"`
		Language string `json:"language"`
	}
	if !decode(w, r, &req) {
		return
	}
	result, err := s.assistant.Transcribe(r.Context(), req.AudioURL, req.Language)
	if err != nil {
		log.Printf("[Server] STT error: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAudioUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AudioData string `json:"audioData"` // base64
	}
	if !decode(w, r, &req) {
		return
	}
	if req.AudioData == "" {
		writeError(w, fmt.Errorf("%w: no audio data provided", models.ErrInvalidInput))
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		writeError(w, fmt.Errorf("%w: audio data is not base64", models.ErrInvalidInput))
		return
	}

	audioURL, err := s.assistant.SaveRecording(r.Context(), data)
	if err != nil {
		log.Printf("[Server] Audio upload error: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": audioURL})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid document id", models.ErrInvalidInput))
		return 0, false
	}
	return id, true
}

// maxBodySize bounds JSON request bodies, which may carry base64 uploads.
const maxBodySize = 32 << 20

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, fmt.Errorf("%w: malformed request body", models.ErrInvalidInput))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Server] Error encoding response: %v", err)
	}
}

// chatError hides pipeline internals behind the generic failure.
func chatError(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrServiceUnavailable):
		return err
	default:
		return models.ErrProcessingFailed
	}
}

// statusFor maps an error to its HTTP status and the message safe to show.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrUnsupportedType):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, models.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "Service unavailable"
	case errors.Is(err, models.ErrProcessingFailed):
		return http.StatusInternalServerError, "Chat processing failed"
	case errors.Is(err, models.ErrIngestionFailed):
		return http.StatusInternalServerError, "Failed to upload document"
	case errors.Is(err, models.ErrSpeechFailed):
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	writeJSON(w, status, map[string]string{"error": msg})
}
