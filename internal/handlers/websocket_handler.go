package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"quizroom/internal/handlers/dto"
	"quizroom/internal/service"
	ws "quizroom/internal/websocket"
	"quizroom/pkg/jwt"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict origins in prod
	},
}

type WebSocketHandler struct {
	hub       *ws.Hub
	rooms     *service.RoomService
	jwtSecret string
}

func NewWebSocketHandler(hub *ws.Hub, rooms *service.RoomService, jwtSecret string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:       hub,
		rooms:     rooms,
		jwtSecret: jwtSecret,
	}
}

// HandleWebSocket upgrades a connection into a room. Browsers cannot set an
// Authorization header on the upgrade request, so the token rides a query
// parameter instead.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		dto.JsonError(c, http.StatusUnauthorized, "Missing token")
		return
	}
	claims, err := jwt.ValidateToken(token, h.jwtSecret)
	if err != nil {
		dto.JsonError(c, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	roomID := c.Query("room_id")
	if roomID == "" {
		dto.JsonError(c, http.StatusBadRequest, "Missing room_id")
		return
	}

	room, err := h.rooms.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		dto.JsonError(c, http.StatusNotFound, "Room not found")
		return
	}

	member, err := h.rooms.JoinRoom(c.Request.Context(), roomID, claims.UserID, claims.DisplayName)
	if err != nil {
		dto.JsonAppError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn, member.UserID, member.DisplayName, roomID, room.HostID == member.UserID)

	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
