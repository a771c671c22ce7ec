package dto

import "quizroom/internal/models"

type StartQuizRequest struct {
	TotalQuestions  int    `json:"total_questions" binding:"required"`
	TimePerQuestion int    `json:"time_per_question"`
	Topic           string `json:"topic"`
	Difficulty      string `json:"difficulty"`
	ContentFocus    string `json:"content_focus"`
	EducationLevel  string `json:"education_level"`
}

type SessionResponse struct {
	Session *models.QuizSession `json:"session"`
	// AlreadyActive is set when the start call lost a race against another
	// start and the returned session is the one that won.
	AlreadyActive bool `json:"already_active,omitempty"`
}

type QuestionsResponse struct {
	Questions []models.Question `json:"questions"`
}
