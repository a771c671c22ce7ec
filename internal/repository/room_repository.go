package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"quizroom/internal/constants"
	"quizroom/internal/models"

	"github.com/google/uuid"
)

const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type RoomRepository struct {
	db *sql.DB
}

func NewRoomRepository(db *sql.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) CreateRoom(ctx context.Context, room *models.Room) error {
	room.ID = uuid.New().String()
	room.CreatedAt = time.Now()
	room.Status = constants.RoomStatusWaiting

	var err error
	room.JoinCode, err = r.generateUniqueJoinCode(ctx)
	if err != nil {
		return fmt.Errorf("failed to generate join code: %w", err)
	}

	query := `
		INSERT INTO rooms (id, name, join_code, host_id, max_players, current_players, difficulty, topic, is_private, time_per_question, total_questions, status, study_notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.db.ExecContext(ctx, query,
		room.ID,
		room.Name,
		room.JoinCode,
		room.HostID,
		room.MaxPlayers,
		room.CurrentPlayers,
		room.Difficulty,
		room.Topic,
		room.IsPrivate,
		room.TimePerQuestion,
		room.TotalQuestions,
		room.Status,
		room.StudyNotes,
		room.CreatedAt,
	)
	return err
}

func (r *RoomRepository) GetRoomByID(ctx context.Context, roomID string) (*models.Room, error) {
	return r.getRoom(ctx, `WHERE id = $1`, roomID)
}

func (r *RoomRepository) GetRoomByCode(ctx context.Context, joinCode string) (*models.Room, error) {
	return r.getRoom(ctx, `WHERE join_code = $1`, joinCode)
}

func (r *RoomRepository) getRoom(ctx context.Context, where string, arg any) (*models.Room, error) {
	query := `
		SELECT id, name, join_code, host_id, max_players, current_players, difficulty, topic, is_private, time_per_question, total_questions, status, study_notes, created_at, started_at, ended_at
		FROM rooms ` + where

	room := &models.Room{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&room.ID,
		&room.Name,
		&room.JoinCode,
		&room.HostID,
		&room.MaxPlayers,
		&room.CurrentPlayers,
		&room.Difficulty,
		&room.Topic,
		&room.IsPrivate,
		&room.TimePerQuestion,
		&room.TotalQuestions,
		&room.Status,
		&room.StudyNotes,
		&room.CreatedAt,
		&room.StartedAt,
		&room.EndedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("room not found: %w", sql.ErrNoRows)
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

// UpdateRoomStatus performs a conditional status change so that concurrent
// writers cannot regress the lifecycle. Returns false when no row matched
// the expected current status.
func (r *RoomRepository) UpdateRoomStatus(ctx context.Context, roomID, fromStatus, toStatus string) (bool, error) {
	query := `UPDATE rooms SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, toStatus, roomID, fromStatus)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *RoomRepository) StampRoomStarted(ctx context.Context, roomID string, startedAt time.Time) error {
	query := `UPDATE rooms SET started_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, startedAt, roomID)
	return err
}

func (r *RoomRepository) StampRoomEnded(ctx context.Context, roomID string, endedAt time.Time) error {
	query := `UPDATE rooms SET ended_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, endedAt, roomID)
	return err
}

// RevertRoomStatus is the compensation path for a failed session start. It
// bypasses the forward-only guard deliberately, since the forward step being
// undone never became visible as a usable session.
func (r *RoomRepository) RevertRoomStatus(ctx context.Context, roomID, status string) error {
	query := `UPDATE rooms SET status = $1, started_at = NULL WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, roomID)
	return err
}

func (r *RoomRepository) UpdateStudyNotes(ctx context.Context, roomID, notes string) error {
	query := `UPDATE rooms SET study_notes = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, notes, roomID)
	return err
}

// DeleteRoom exists for the create-room compensation only. Rooms are
// otherwise retained for history.
func (r *RoomRepository) DeleteRoom(ctx context.Context, roomID string) error {
	query := `DELETE FROM rooms WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, roomID)
	return err
}

func (r *RoomRepository) MemberExists(ctx context.Context, roomID, userID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, roomID, userID).Scan(&exists)
	return exists, err
}

// InsertMember tolerates already-exists races: the composite primary key
// enforces uniqueness at the store layer and a duplicate insert is a no-op.
func (r *RoomRepository) InsertMember(ctx context.Context, member *models.Member) error {
	query := `
		INSERT INTO room_members (room_id, user_id, display_name, ready, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (room_id, user_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		member.RoomID,
		member.UserID,
		member.DisplayName,
		member.Ready,
		member.JoinedAt,
	)
	return err
}

func (r *RoomRepository) DeleteMember(ctx context.Context, roomID, userID string) error {
	query := `DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`
	_, err := r.db.ExecContext(ctx, query, roomID, userID)
	return err
}

func (r *RoomRepository) GetMembers(ctx context.Context, roomID string) ([]*models.Member, error) {
	query := `
		SELECT room_id, user_id, display_name, ready, joined_at
		FROM room_members
		WHERE room_id = $1
		ORDER BY joined_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		member := &models.Member{}
		err := rows.Scan(
			&member.RoomID,
			&member.UserID,
			&member.DisplayName,
			&member.Ready,
			&member.JoinedAt,
		)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

func (r *RoomRepository) CountMembers(ctx context.Context, roomID string) (int, error) {
	query := `SELECT COUNT(*) FROM room_members WHERE room_id = $1`
	var count int
	err := r.db.QueryRowContext(ctx, query, roomID).Scan(&count)
	return count, err
}

// SyncCurrentPlayers re-derives the cached member count from the membership
// rows themselves, so the counter converges after any join/leave sequence.
func (r *RoomRepository) SyncCurrentPlayers(ctx context.Context, roomID string) (int, error) {
	query := `
		UPDATE rooms
		SET current_players = (SELECT COUNT(*) FROM room_members WHERE room_id = $1)
		WHERE id = $1
		RETURNING current_players
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, roomID).Scan(&count)
	return count, err
}

func (r *RoomRepository) SetMemberReady(ctx context.Context, roomID, userID string, ready bool) error {
	query := `UPDATE room_members SET ready = $1 WHERE room_id = $2 AND user_id = $3`
	result, err := r.db.ExecContext(ctx, query, ready, roomID, userID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("member not found")
	}
	return nil
}

func (r *RoomRepository) generateUniqueJoinCode(ctx context.Context) (string, error) {
	maxAttempts := 10
	for i := 0; i < maxAttempts; i++ {
		code, err := randomJoinCode(constants.JoinCodeLength)
		if err != nil {
			return "", err
		}

		var exists bool
		query := `SELECT EXISTS(SELECT 1 FROM rooms WHERE join_code = $1)`
		if err := r.db.QueryRowContext(ctx, query, code).Scan(&exists); err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique join code after %d attempts", 10)
}

func randomJoinCode(length int) (string, error) {
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(joinCodeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
