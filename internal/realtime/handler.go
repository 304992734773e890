package realtime

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"smart-stick/tracker/internal/auth"
	"smart-stick/tracker/internal/log"
	"smart-stick/tracker/internal/metrics"
)

const (
	MsgTypeJoin   = "join"
	MsgTypeLeave  = "leave"
	MsgTypeJoined = "joined"
	MsgTypeLeft   = "left"
	MsgTypePing   = "ping"
	MsgTypePong   = "pong"
	MsgTypeError  = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// ClientMessage is what a companion client sends over the socket.
type ClientMessage struct {
	Type string `json:"type"`
	Room string `json:"room,omitempty"`
}

type ServerMessage struct {
	Type  string `json:"type"`
	Room  string `json:"room,omitempty"`
	Error string `json:"error,omitempty"`
}

type TokenValidator interface {
	Validate(token string) (auth.Principal, error)
}

type Handler struct {
	hub      *Hub
	tokens   TokenValidator
	upgrader websocket.Upgrader
}

// NewHandler serves the realtime socket. An empty allowedOrigins list
// accepts any origin.
func NewHandler(hub *Hub, tokens TokenValidator, allowedOrigins []string) *Handler {
	return &Handler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowedOrigins) == 0 {
					return true
				}
				return slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	principal, err := h.tokens.Validate(token)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Authentication error"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error(err, "WebSocket upgrade failed")
		return
	}

	client := newClient(principal.StickID)
	metrics.RealtimeClients.Inc()
	log.Debug("Realtime client connected", "stickId", principal.StickID, "userId", principal.UserID)

	go h.writePump(conn, client)
	h.readPump(conn, client)

	h.hub.leaveAll(client)
	client.close()
	metrics.RealtimeClients.Dec()
	log.Debug("Realtime client disconnected", "stickId", principal.StickID)
}

func (h *Handler) readPump(conn *websocket.Conn, c *Client) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Realtime read error", "stickId", c.stickID, "error", err.Error())
			}
			return
		}

		select {
		case <-c.done:
			return
		default:
		}

		h.handleMessage(c, msg)
	}
}

func (h *Handler) handleMessage(c *Client, msg ClientMessage) {
	switch msg.Type {
	case MsgTypeJoin:
		if msg.Room == "" || msg.Room != c.stickID {
			log.Warn("Rejected join for foreign room", "stickId", c.stickID, "room", msg.Room)
			h.reply(c, ServerMessage{Type: MsgTypeError, Room: msg.Room, Error: "unauthorized room"})
			return
		}
		h.hub.join(msg.Room, c)
		h.reply(c, ServerMessage{Type: MsgTypeJoined, Room: msg.Room})
	case MsgTypeLeave:
		h.hub.leave(msg.Room, c)
		h.reply(c, ServerMessage{Type: MsgTypeLeft, Room: msg.Room})
	case MsgTypePing:
		h.reply(c, ServerMessage{Type: MsgTypePong})
	default:
		h.reply(c, ServerMessage{Type: MsgTypeError, Error: "unknown message type"})
	}
}

func (h *Handler) reply(c *Client, msg ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.close()
	}
}

func (h *Handler) writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
