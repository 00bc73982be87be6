package realtime

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/d60-Lab/review-feed/pkg/auth"
	"github.com/d60-Lab/review-feed/pkg/logger"
	"github.com/d60-Lab/review-feed/pkg/response"
)

const maxMessageSize = 8 << 10

// TokenVerifier authenticates the websocket handshake.
type TokenVerifier interface {
	Parse(token string) (*auth.Claims, error)
}

// Endpoint upgrades authenticated requests into hub sessions.
type Endpoint struct {
	hub      *Hub
	tokens   TokenVerifier
	upgrader websocket.Upgrader
}

func NewEndpoint(hub *Hub, tokens TokenVerifier, allowedOrigins []string) *Endpoint {
	return &Endpoint{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

func bearer(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// Handle 握手：先鉴权，失败直接 401，不注册会话
// @Summary 实时通道（websocket）
// @Tags realtime
// @Param token query string false "JWT（也可用 Authorization: Bearer）"
// @Param topics query string false "逗号分隔的订阅主题，如 category:phones"
// @Success 101
// @Failure 401 {object} response.Response
// @Router /ws [get]
func (e *Endpoint) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = bearer(c.GetHeader("Authorization"))
	}
	claims, err := e.tokens.Parse(token)
	if err != nil {
		logger.Info("websocket handshake rejected", zap.String("ip", c.ClientIP()), zap.Error(err))
		response.Unauthorized(c, "Token inválido ou ausente")
		return
	}

	conn, err := e.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s := NewSession(claims.UserID, claims.Username, e.hub.cfg.SessionBuffer)
	s.conn = conn
	e.hub.Register(s)
	for _, t := range strings.Split(c.Query("topics"), ",") {
		if t = strings.TrimSpace(t); ValidTopic(t) {
			e.hub.Subscribe(s, t)
		}
	}

	go e.writePump(s)
	go e.readPump(s)
}

func (e *Endpoint) readPump(s *Session) {
	cfg := e.hub.cfg
	defer func() {
		e.hub.Unregister(s)
		_ = s.conn.Close()
	}()
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read error", zap.String("session", s.id), zap.Error(err))
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		e.hub.HandleMessage(s, msg.Event, msg.Data)
	}
}

func (e *Endpoint) writePump(s *Session) {
	cfg := e.hub.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				e.hub.Unregister(s)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				e.hub.Unregister(s)
				return
			}
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(cfg.WriteWait))
			return
		}
	}
}
