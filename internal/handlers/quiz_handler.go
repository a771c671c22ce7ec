package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"quizroom/internal/apperr"
	"quizroom/internal/handlers/dto"
	"quizroom/internal/service"
)

type QuizHandler struct {
	quiz *service.QuizService
}

func NewQuizHandler(quiz *service.QuizService) *QuizHandler {
	return &QuizHandler{quiz: quiz}
}

func (h *QuizHandler) StartQuiz(c *gin.Context) {
	userID := c.GetString("user_id")
	token := c.GetString("token")
	roomID := c.Param("id")

	var req dto.StartQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.quiz.StartQuiz(c.Request.Context(), roomID, userID, token, service.QuizSettings{
		TotalQuestions:  req.TotalQuestions,
		TimePerQuestion: req.TimePerQuestion,
		Topic:           req.Topic,
		Difficulty:      req.Difficulty,
		ContentFocus:    req.ContentFocus,
		EducationLevel:  req.EducationLevel,
	})
	if err != nil {
		// A double-start is not an error for the caller: the quiz is
		// running, so hand back the session that won the race.
		if errors.Is(err, apperr.ErrSessionAlreadyActive) {
			active, getErr := h.quiz.GetActiveSession(c.Request.Context(), roomID)
			if getErr == nil && active != nil {
				c.JSON(http.StatusOK, dto.SessionResponse{Session: active, AlreadyActive: true})
				return
			}
		}
		dto.JsonAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.SessionResponse{Session: session})
}

func (h *QuizHandler) EndQuiz(c *gin.Context) {
	userID := c.GetString("user_id")
	token := c.GetString("token")

	if err := h.quiz.EndQuiz(c.Request.Context(), c.Param("id"), userID, token); err != nil {
		dto.JsonAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *QuizHandler) GetActiveSession(c *gin.Context) {
	session, err := h.quiz.GetActiveSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.JsonAppError(c, err)
		return
	}
	if session == nil {
		dto.JsonError(c, http.StatusNotFound, "No active session")
		return
	}
	c.JSON(http.StatusOK, dto.SessionResponse{Session: session})
}

func (h *QuizHandler) GetQuestions(c *gin.Context) {
	questions, err := h.quiz.GetQuestions(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		dto.JsonAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.QuestionsResponse{Questions: questions})
}
