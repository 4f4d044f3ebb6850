package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"pairspace-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsReadLimit = 4096

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub           *services.WSHub
	coupleService *services.CoupleService
	upgrader      websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. With no allowed
// origins any origin may connect.
func NewWebSocketHandler(hub *services.WSHub, coupleService *services.CoupleService, allowedOrigins []string) *WebSocketHandler {
	origins := make(map[string]bool)
	for _, o := range allowedOrigins {
		origins[strings.TrimSpace(o)] = true
	}
	return &WebSocketHandler{
		hub:           hub,
		coupleService: coupleService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || origins[origin]
			},
		},
	}
}

// HandleWebSocket handles GET /ws?token=
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", CodeAuth, http.StatusUnauthorized)
		return
	}

	couple, err := h.coupleService.ResolveByToken(r.Context(), token)
	if err != nil {
		respondError(w, "invalid token", CodeAuth, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	conn.SetReadLimit(wsReadLimit)

	coupleID := couple.CoupleID
	client := h.hub.Register(coupleID, conn)
	defer h.hub.Unregister(coupleID, client)

	hello := services.WSMessage{Type: "hello", CoupleID: coupleID, Online: h.hub.Online(coupleID)}
	if err := client.Send(hello); err != nil {
		log.Error().Err(err).Str("couple_id", coupleID).Msg("Failed to send hello message")
		return
	}

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("couple_id", coupleID).Msg("WebSocket error")
			}
			return
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Debug().Err(err).Str("couple_id", coupleID).Msg("Failed to parse WebSocket message")
			h.sendError(client, "Invalid message format")
			continue
		}

		switch msg.Type {
		case "ping":
			if err := client.Send(services.WSMessage{Type: "pong"}); err != nil {
				return
			}
		default:
			h.sendError(client, "Unknown message type")
		}
	}
}

// sendError sends an error message to the WebSocket connection
func (h *WebSocketHandler) sendError(client *services.WSClient, message string) {
	if err := client.Send(services.WSMessage{Type: "error", Message: message}); err != nil {
		log.Debug().Err(err).Msg("Failed to send WebSocket error")
	}
}
