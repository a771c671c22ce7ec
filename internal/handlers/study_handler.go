package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"quizroom/internal/handlers/dto"
	"quizroom/internal/service"
)

const maxMaterialBytes = 10 << 20 // 10 MB

type StudyHandler struct {
	study *service.StudyService
}

func NewStudyHandler(study *service.StudyService) *StudyHandler {
	return &StudyHandler{study: study}
}

func (h *StudyHandler) StartStudy(c *gin.Context) {
	userID := c.GetString("user_id")

	var req dto.StudyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	study, err := h.study.StartStudySession(c.Request.Context(), c.Param("id"), userID, req.DurationMinutes, req.MaterialsRef)
	if err != nil {
		dto.JsonAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.StudyResponse{Study: study})
}

func (h *StudyHandler) EditStudy(c *gin.Context) {
	userID := c.GetString("user_id")

	var req dto.StudyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	study, err := h.study.EditStudyDuration(c.Request.Context(), c.Param("id"), userID, req.DurationMinutes)
	if err != nil {
		dto.JsonAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.StudyResponse{Study: study})
}

func (h *StudyHandler) EndStudy(c *gin.Context) {
	userID := c.GetString("user_id")

	if err := h.study.EndStudySession(c.Request.Context(), c.Param("id"), userID); err != nil {
		dto.JsonAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StudyHandler) GetStudy(c *gin.Context) {
	study, err := h.study.GetStudySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.JsonError(c, http.StatusNotFound, "No study session")
		return
	}
	c.JSON(http.StatusOK, dto.StudyResponse{Study: study})
}

// UploadMaterials accepts one multipart file, stores it, and returns the
// generated study notes.
func (h *StudyHandler) UploadMaterials(c *gin.Context) {
	userID := c.GetString("user_id")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		dto.JsonError(c, http.StatusBadRequest, "A file upload is required")
		return
	}
	if fileHeader.Size > maxMaterialBytes {
		dto.JsonError(c, http.StatusRequestEntityTooLarge, "File exceeds the 10 MB limit")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Failed to read upload")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxMaterialBytes+1))
	if err != nil {
		dto.JsonError(c, http.StatusBadRequest, "Failed to read upload")
		return
	}
	if len(data) > maxMaterialBytes {
		dto.JsonError(c, http.StatusRequestEntityTooLarge, "File exceeds the 10 MB limit")
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	ref, notes, err := h.study.UploadMaterials(c.Request.Context(), c.Param("id"), userID, data, fileHeader.Filename, mimeType)
	if err != nil {
		dto.JsonAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.UploadMaterialsResponse{
		MaterialsRef: ref,
		StudyNotes:   notes,
	})
}
