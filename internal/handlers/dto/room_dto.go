package dto

import "quizroom/internal/models"

type CreateRoomRequest struct {
	Name            string `json:"name" binding:"required"`
	MaxPlayers      int    `json:"max_players" binding:"required"`
	Difficulty      string `json:"difficulty"`
	Topic           string `json:"topic"`
	IsPrivate       bool   `json:"is_private"`
	TimePerQuestion int    `json:"time_per_question"`
	TotalQuestions  int    `json:"total_questions"`
}

type RoomResponse struct {
	Room *models.Room `json:"room"`
}

type JoinByCodeRequest struct {
	JoinCode string `json:"join_code" binding:"required"`
}

type JoinRoomResponse struct {
	Room   *models.Room   `json:"room"`
	Member *models.Member `json:"member"`
}

type MembersResponse struct {
	Members []*models.Member `json:"members"`
	Count   int              `json:"count"`
}

type ReadyRequest struct {
	Ready bool `json:"ready"`
}
