package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/PaulBabatuyi/collab-chat/internal/auth"
	"github.com/PaulBabatuyi/collab-chat/internal/controller"
	"github.com/PaulBabatuyi/collab-chat/internal/event"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxFrameSize   = 64 << 10
	sendBufferSize = 256
)

var errSendBufferFull = errors.New("send buffer full")

// wsSession adapts a WebSocket connection to registry.Session. Frames are
// queued and written by a single writer goroutine.
type wsSession struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

func newWSSession(conn *websocket.Conn) *wsSession {
	return &wsSession{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (s *wsSession) ID() string { return s.id }

// Emit queues e without blocking. A slow client whose buffer is full loses
// the frame.
func (s *wsSession) Emit(e event.Envelope) error {
	msg, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	select {
	case s.send <- msg:
		return nil
	default:
		return errSendBufferFull
	}
}

func (s *wsSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

func (s *wsSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			// flush what is already queued, then say goodbye
			for {
				select {
				case msg := <-s.send:
					_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				default:
					_ = s.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
					return
				}
			}
		}
	}
}

// readPump hands every inbound frame to conn until the socket fails.
func (s *wsSession) readPump(conn *controller.Conn, logger *slog.Logger) {
	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", "session_id", s.id, "error", err)
			}
			return
		}
		var env event.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			_ = s.Emit(mustEnvelope(event.Error, event.ErrorPayload{Message: "Malformed frame."}))
			continue
		}
		conn.Handle(env)
	}
}

func mustEnvelope(kind event.Kind, payload any) event.Envelope {
	env, err := event.New(kind, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// wsGateway serves the browser transport.
type wsGateway struct {
	ctl      *controller.Controller
	jwt      *auth.JWTManager
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func newWSGateway(ctl *controller.Controller, jwt *auth.JWTManager, origins []string, logger *slog.Logger) *wsGateway {
	allowAll := slices.Contains(origins, "*")
	return &wsGateway{
		ctl:    ctl,
		jwt:    jwt,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || slices.Contains(origins, origin)
			},
		},
	}
}

// wsToken reads the credential from the token query parameter or the
// Authorization header.
func wsToken(c *gin.Context) (string, error) {
	if t := c.Query("token"); t != "" {
		return t, nil
	}
	return auth.BearerToken(c.GetHeader("Authorization"))
}

func (g *wsGateway) serve(c *gin.Context) {
	token, err := wsToken(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}
	claims, err := g.jwt.VerifyToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := newWSSession(ws)
	go sess.writePump()

	conn, err := g.ctl.Connect(c.Request.Context(), identity(claims), sess)
	if err != nil {
		g.logger.Error("connect failed", "user_id", claims.UserID(), "error", err)
		sess.close()
		return
	}

	sess.readPump(conn, g.logger)
	conn.Close()
	sess.close()
}
