package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quizroom/internal/handlers/dto"
	"quizroom/internal/service"
)

type RoomHandler struct {
	rooms *service.RoomService
}

func NewRoomHandler(rooms *service.RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID := c.GetString("user_id")
	displayName := c.GetString("display_name")

	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	room, err := h.rooms.CreateRoom(c.Request.Context(), userID, displayName, req.Name, req.MaxPlayers, service.RoomSettings{
		Difficulty:      req.Difficulty,
		Topic:           req.Topic,
		IsPrivate:       req.IsPrivate,
		TimePerQuestion: req.TimePerQuestion,
		TotalQuestions:  req.TotalQuestions,
	})
	if err != nil {
		dto.JsonAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.RoomResponse{Room: room})
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.rooms.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.JsonError(c, http.StatusNotFound, "Room not found")
		return
	}
	c.JSON(http.StatusOK, dto.RoomResponse{Room: room})
}

func (h *RoomHandler) JoinRoom(c *gin.Context) {
	userID := c.GetString("user_id")
	displayName := c.GetString("display_name")
	roomID := c.Param("id")

	member, err := h.rooms.JoinRoom(c.Request.Context(), roomID, userID, displayName)
	if err != nil {
		dto.JsonAppError(c, err)
		return
	}

	room, err := h.rooms.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		dto.JsonAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.JoinRoomResponse{Room: room, Member: member})
}

func (h *RoomHandler) JoinByCode(c *gin.Context) {
	userID := c.GetString("user_id")
	displayName := c.GetString("display_name")

	var req dto.JoinByCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	room, member, err := h.rooms.JoinRoomByCode(c.Request.Context(), req.JoinCode, userID, displayName)
	if err != nil {
		dto.JsonAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.JoinRoomResponse{Room: room, Member: member})
}

func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	userID := c.GetString("user_id")

	if err := h.rooms.LeaveRoom(c.Request.Context(), c.Param("id"), userID); err != nil {
		dto.JsonAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) GetMembers(c *gin.Context) {
	members, err := h.rooms.RefreshMembers(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.JsonAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MembersResponse{Members: members, Count: len(members)})
}

func (h *RoomHandler) SetReady(c *gin.Context) {
	userID := c.GetString("user_id")

	var req dto.ReadyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.rooms.SetReady(c.Request.Context(), c.Param("id"), userID, req.Ready); err != nil {
		dto.JsonAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
