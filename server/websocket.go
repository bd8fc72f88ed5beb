package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Message is the envelope for every websocket frame in both directions.
//
// Client to server types: "chat" (Content is the text, Data may carry
// {"includeKnowledge": bool}), "wake" and "import" (Content is a URL).
// Server to client types: "session", "status", "wake", "response" and "error".
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

type inbound struct {
	Type    string          `json:"type"`
	Content string          `json:"content"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// wsConn serialises writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
	id   string
}

func (c *wsConn) send(msgType, content string, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := Message{
		Type:    msgType,
		Content: content,
		Data:    data,
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("[Server] Error sending message on session %s: %v", c.id, err)
	}
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin allows same-host requests and any origin listed in
// AllowedOrigins; "*" allows everything.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Server] WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &wsConn{conn: conn, id: uuid.New().String()}
	userID := s.userID(r)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	log.Printf("[Server] WebSocket session %s opened for user %d", c.id, userID)
	c.send("session", c.id, nil)

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Server] Error reading message: %v", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.send("error", "malformed message", nil)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, c, userID, msg)
		}()
	}
}

func (s *Server) handleMessage(ctx context.Context, c *wsConn, userID int64, msg inbound) {
	switch msg.Type {
	case "chat", "":
		req := chatRequest{Text: msg.Content}
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				c.send("error", "malformed chat options", nil)
				return
			}
			req.Text = msg.Content
		}

		c.send("status", "thinking", nil)
		reply, err := s.chat(ctx, userID, req)
		if err != nil {
			log.Printf("[Server] Chat error on session %s: %v", c.id, err)
			_, text := statusFor(chatError(err))
			c.send("error", text, nil)
			return
		}
		c.send("response", reply.Answer, reply)

	case "wake":
		ok, opening := s.assistant.CheckWakeWord(ctx, msg.Content)
		c.send("wake", opening, map[string]bool{"isWakeWord": ok})

	case "import":
		c.send("status", fmt.Sprintf("Processing URL: %s", msg.Content), nil)
		results, err := s.assistant.ImportURL(ctx, userID, msg.Content)
		if err != nil {
			log.Printf("[Server] URL import error on session %s: %v", c.id, err)
			_, text := statusFor(err)
			c.send("error", text, nil)
			return
		}
		c.send("status", fmt.Sprintf("Imported %d documents", len(results)), results)

	default:
		c.send("error", fmt.Sprintf("unknown message type %q", msg.Type), nil)
	}
}
