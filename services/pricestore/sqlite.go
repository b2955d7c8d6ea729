package pricestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"alpha_gateway/applog"
	"alpha_gateway/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps daily prices in a local SQLite file
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// OpenSQLite opens (creating if needed) the database at path
func OpenSQLite(path string, logger *applog.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if path == ":memory:" {
		// each pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("sqlite price store ready")
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS daily_price (
			code TEXT,
			date TEXT,
			open REAL,
			high REAL,
			low REAL,
			close REAL,
			volume INTEGER,
			PRIMARY KEY (code, date)
		)
	`)
	return err
}

// Upsert inserts or replaces rows in one transaction
func (s *SQLiteStore) Upsert(ctx context.Context, code string, rows []models.DailyBar) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO daily_price (code, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, code, r.Date, r.Open, r.High, r.Low, r.Close, r.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert %s %s: %w", code, r.Date, err)
		}
	}

	return tx.Commit()
}

// Query returns up to limit rows for code, newest first
func (s *SQLiteStore) Query(ctx context.Context, code string, limit int) ([]models.DailyBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM daily_price WHERE code = ? ORDER BY date DESC LIMIT ?
	`, code, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.DailyBar{}
	for rows.Next() {
		var (
			bar                    models.DailyBar
			open, high, low, close sql.NullFloat64
			volume                 sql.NullInt64
		)
		if err := rows.Scan(&bar.Date, &open, &high, &low, &close, &volume); err != nil {
			return nil, err
		}
		bar.Open, bar.High, bar.Low, bar.Close = open.Float64, high.Float64, low.Float64, close.Float64
		bar.Volume = volume.Int64
		out = append(out, bar)
	}
	return out, rows.Err()
}

// Count returns the number of stored rows for code
func (s *SQLiteStore) Count(ctx context.Context, code string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM daily_price WHERE code = ?`, code).Scan(&n)
	return n, err
}

// Path returns the database file location
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
