package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"flowsense/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:flowsense.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS assessments (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			user_id TEXT NOT NULL,
			score REAL NOT NULL,
			state TEXT NOT NULL,
			confidence TEXT NOT NULL,
			breakdown_json TEXT NOT NULL,
			recommendations_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assessments_user_ts ON assessments(user_id, ts)`,
		`CREATE TABLE IF NOT EXISTS baselines (
			user_id TEXT PRIMARY KEY,
			data_json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveAssessment(ctx context.Context, a model.UnifiedFlowAssessment) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO assessments (id, ts, user_id, score, state, confidence, breakdown_json, recommendations_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
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

func (s *sqliteStore) SaveBaseline(ctx context.Context, b model.BiometricBaseline) error {
	if s.db == nil || b.UserID == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO baselines (user_id, data_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET data_json = excluded.data_json, updated_at = excluded.updated_at`,
		b.UserID,
		encodeJSON(b),
		nowUTC(),
	)
	return err
}

func (s *sqliteStore) LoadBaseline(ctx context.Context, userID string) (*model.BiometricBaseline, error) {
	if s.db == nil {
		return nil, nil
	}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data_json FROM baselines WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeBaseline(data)
}
