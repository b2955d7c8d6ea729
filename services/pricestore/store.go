// Package pricestore persists daily price bars keyed by (code, date).
package pricestore

import (
	"context"
	"fmt"
	"sort"

	"alpha_gateway/applog"
	"alpha_gateway/config"
	"alpha_gateway/models"
)

// DefaultQueryLimit is used when a caller passes a non-positive limit.
const DefaultQueryLimit = 500

// PriceStore is the local persistence contract shared by all backends.
// Query returns rows newest first.
type PriceStore interface {
	Upsert(ctx context.Context, code string, rows []models.DailyBar) error
	Query(ctx context.Context, code string, limit int) ([]models.DailyBar, error)
	Close() error
}

// Open constructs the backend named by cfg.Driver
func Open(ctx context.Context, cfg config.StoreConfig, logger *applog.Logger) (PriceStore, error) {
	var (
		store PriceStore
		err   error
	)
	switch cfg.Driver {
	case "", "sqlite":
		var s *SQLiteStore
		if s, err = OpenSQLite(cfg.SQLitePath, logger); err == nil {
			store = s
		}
	case "postgres":
		var s *PostgresStore
		if s, err = OpenPostgres(cfg.PostgresDSN, logger); err == nil {
			store = s
		}
	case "mongo", "mongodb":
		var s *MongoStore
		if s, err = OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, logger); err == nil {
			store = s
		}
	default:
		err = fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	return store, err
}

// Ascending returns a copy of rows sorted oldest first.
func Ascending(rows []models.DailyBar) []models.DailyBar {
	out := make([]models.DailyBar, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	return limit
}

// dedupByDate keeps the last row for each date, preserving first-seen order.
func dedupByDate(rows []models.DailyBar) []models.DailyBar {
	index := make(map[string]int, len(rows))
	out := make([]models.DailyBar, 0, len(rows))
	for _, r := range rows {
		if i, ok := index[r.Date]; ok {
			out[i] = r
			continue
		}
		index[r.Date] = len(out)
		out = append(out, r)
	}
	return out
}
