package database

import (
	"context"
	"database/sql"
	"fmt"

	"quizroom/config"

	_ "github.com/lib/pq"
)

type PostgresClient struct {
	db     *sql.DB
	config *config.DBConfig
}

func NewPostgresClient(cfg *config.DBConfig) (*PostgresClient, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{
		db:     db,
		config: cfg,
	}, nil
}

func (c *PostgresClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *PostgresClient) GetDB() *sql.DB {
	return c.db
}

func (c *PostgresClient) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS rooms (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			join_code VARCHAR(16) NOT NULL UNIQUE,
			host_id VARCHAR(255) NOT NULL,
			max_players INTEGER NOT NULL,
			current_players INTEGER NOT NULL DEFAULT 0,
			difficulty VARCHAR(50) NOT NULL DEFAULT 'medium',
			topic VARCHAR(255) NOT NULL DEFAULT '',
			is_private BOOLEAN NOT NULL DEFAULT FALSE,
			time_per_question INTEGER NOT NULL DEFAULT 30,
			total_questions INTEGER NOT NULL DEFAULT 10,
			status VARCHAR(50) NOT NULL DEFAULT 'waiting',
			study_notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			started_at TIMESTAMP,
			ended_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_rooms_join_code ON rooms(join_code);
		CREATE INDEX IF NOT EXISTS idx_rooms_status ON rooms(status);

		CREATE TABLE IF NOT EXISTS room_members (
			room_id VARCHAR(255) NOT NULL REFERENCES rooms(id),
			user_id VARCHAR(255) NOT NULL,
			display_name VARCHAR(255) NOT NULL DEFAULT '',
			ready BOOLEAN NOT NULL DEFAULT FALSE,
			joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (room_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_room_members_user_id ON room_members(user_id);

		CREATE TABLE IF NOT EXISTS quiz_sessions (
			id VARCHAR(255) PRIMARY KEY,
			room_id VARCHAR(255) NOT NULL REFERENCES rooms(id),
			total_questions INTEGER NOT NULL,
			current_question INTEGER NOT NULL DEFAULT 0,
			time_per_question INTEGER NOT NULL,
			status VARCHAR(50) NOT NULL DEFAULT 'pending',
			started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_quiz_sessions_room_id ON quiz_sessions(room_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_quiz_sessions_one_active
			ON quiz_sessions(room_id) WHERE status IN ('pending', 'generating', 'active');

		CREATE TABLE IF NOT EXISTS cheat_events (
			id VARCHAR(255) PRIMARY KEY,
			session_id VARCHAR(255) NOT NULL REFERENCES quiz_sessions(id),
			user_id VARCHAR(255) NOT NULL,
			violation VARCHAR(50) NOT NULL,
			duration_ms BIGINT NOT NULL,
			occurred_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_cheat_events_session_id ON cheat_events(session_id);

		CREATE TABLE IF NOT EXISTS session_events (
			id VARCHAR(255) PRIMARY KEY,
			session_id VARCHAR(255) NOT NULL,
			event_type VARCHAR(50) NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_session_events_session_id ON session_events(session_id);
	`

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}
