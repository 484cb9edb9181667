package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"flowsense/internal/config"
	"flowsense/internal/model"
)

// Store persists assessments and personal baselines. Baselines are the
// only state that must survive a restart; assessments are kept for
// history queries.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveAssessment(ctx context.Context, a model.UnifiedFlowAssessment) error
	SaveBaseline(ctx context.Context, b model.BiometricBaseline) error
	LoadBaseline(ctx context.Context, userID string) (*model.BiometricBaseline, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func decodeBaseline(data []byte) (*model.BiometricBaseline, error) {
	var b model.BiometricBaseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
