package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"flowsense/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/flowsense?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS assessments (
			id TEXT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			user_id TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			state TEXT NOT NULL,
			confidence TEXT NOT NULL,
			breakdown_json JSONB NOT NULL,
			recommendations_json JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assessments_user_ts ON assessments(user_id, ts)`,
		`CREATE TABLE IF NOT EXISTS baselines (
			user_id TEXT PRIMARY KEY,
			data_json JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SaveAssessment(ctx context.Context, a model.UnifiedFlowAssessment) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assessments (id, ts, user_id, score, state, confidence, breakdown_json, recommendations_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		a.ID,
		a.Timestamp.UTC(),
		a.UserID,
		a.Score,
		string(a.State),
		string(a.Confidence),
		encodeJSON(a.Breakdown),
		encodeJSON(a.Recommendations),
	)
	return err
}

func (s *postgresStore) SaveBaseline(ctx context.Context, b model.BiometricBaseline) error {
	if s.db == nil || b.UserID == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO baselines (user_id, data_json, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET data_json = EXCLUDED.data_json, updated_at = EXCLUDED.updated_at`,
		b.UserID,
		encodeJSON(b),
		nowUTC(),
	)
	return err
}

func (s *postgresStore) LoadBaseline(ctx context.Context, userID string) (*model.BiometricBaseline, error) {
	if s.db == nil {
		return nil, nil
	}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data_json FROM baselines WHERE user_id = $1`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeBaseline(data)
}
