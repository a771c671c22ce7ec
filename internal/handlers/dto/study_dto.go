package dto

import "quizroom/internal/models"

type StudyRequest struct {
	DurationMinutes int    `json:"duration_minutes" binding:"required"`
	MaterialsRef    string `json:"materials_ref"`
}

type StudyResponse struct {
	Study *models.StudySession `json:"study"`
}

type UploadMaterialsResponse struct {
	MaterialsRef string `json:"materials_ref"`
	StudyNotes   string `json:"study_notes"`
}
