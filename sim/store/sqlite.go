package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists records in a SQLite database file.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	// A single connection serializes writers from concurrent campaigns.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) SaveCampaign(ctx context.Context, campaign Campaign) error {
	if campaign.ID == "" {
		return errors.New("campaign id is required")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO campaigns (id, name, experiment, seed, mode, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			experiment = excluded.experiment,
			seed = excluded.seed,
			mode = excluded.mode,
			started_at = excluded.started_at
	`, campaign.ID, campaign.Name, campaign.Experiment, campaign.Seed, campaign.Mode, campaign.StartedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) GetCampaign(ctx context.Context, id string) (Campaign, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Campaign{}, false, err
	}

	var (
		campaign  Campaign
		startedAt string
	)
	err = db.QueryRowContext(ctx, `
		SELECT id, name, experiment, seed, mode, started_at FROM campaigns WHERE id = ?
	`, id).Scan(&campaign.ID, &campaign.Name, &campaign.Experiment, &campaign.Seed, &campaign.Mode, &startedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, false, nil
		}
		return Campaign{}, false, err
	}
	campaign.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Campaign{}, false, fmt.Errorf("decode campaign %s started_at: %w", id, err)
	}
	return campaign, true, nil
}

func (s *SQLiteStore) SaveDecision(ctx context.Context, decision Decision) error {
	if err := validateDecision(decision); err != nil {
		return err
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}
	payload, err := encodeDecision(decision)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO decisions (campaign_id, step, method, learning_rate, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(campaign_id, step) DO UPDATE SET
			method = excluded.method,
			learning_rate = excluded.learning_rate,
			payload = excluded.payload
	`, decision.CampaignID, decision.Step, decision.Method, decision.LearningRate, payload)
	return err
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, campaignID string) ([]Decision, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT step, payload FROM decisions WHERE campaign_id = ? ORDER BY step ASC
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Decision, 0)
	for rows.Next() {
		var (
			step    int
			payload []byte
		)
		if err := rows.Scan(&step, &payload); err != nil {
			return nil, err
		}
		d, err := decodeDecision(payload)
		if err != nil {
			return nil, fmt.Errorf("decode decision %s/%d: %w", campaignID, step, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("sqlite store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			experiment TEXT NOT NULL,
			seed INTEGER NOT NULL,
			mode TEXT NOT NULL,
			started_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			campaign_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			method TEXT NOT NULL,
			learning_rate REAL NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (campaign_id, step)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}
