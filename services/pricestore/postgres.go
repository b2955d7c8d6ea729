package pricestore

import (
	"context"
	"fmt"

	"alpha_gateway/applog"
	"alpha_gateway/config"
	"alpha_gateway/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// dailyPrice is the gorm row model for the postgres backend
type dailyPrice struct {
	Code   string  `gorm:"primaryKey;size:32"`
	Date   string  `gorm:"primaryKey;size:32"`
	Open   float64 `gorm:"not null;default:0"`
	High   float64 `gorm:"not null;default:0"`
	Low    float64 `gorm:"not null;default:0"`
	Close  float64 `gorm:"not null;default:0"`
	Volume int64   `gorm:"not null;default:0"`
}

func (dailyPrice) TableName() string { return "daily_price" }

// PostgresStore keeps daily prices in PostgreSQL through gorm
type PostgresStore struct {
	db *gorm.DB
}

// OpenPostgres connects, verifies the connection and migrates the table
func OpenPostgres(dsn string, log *applog.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is not set")
	}
	log.Info().Str("dsn", config.MaskDSN(dsn)).Msg("connecting to postgres")

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return newPostgresStore(db)
}

func newPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if err := db.AutoMigrate(&dailyPrice{}); err != nil {
		return nil, fmt.Errorf("migrate daily_price: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Upsert inserts rows, updating every column on (code, date) conflicts.
// ON CONFLICT cannot touch a row twice per statement, so duplicates collapse first.
func (s *PostgresStore) Upsert(ctx context.Context, code string, rows []models.DailyBar) error {
	rows = dedupByDate(rows)
	if len(rows) == 0 {
		return nil
	}
	records := make([]dailyPrice, 0, len(rows))
	for _, r := range rows {
		records = append(records, dailyPrice{
			Code: code, Date: r.Date,
			Open: r.Open, High: r.High, Low: r.Low, Close: r.Close,
			Volume: r.Volume,
		})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}, {Name: "date"}},
			UpdateAll: true,
		}).
		CreateInBatches(records, 500).Error
}

// Query returns up to limit rows for code, newest first
func (s *PostgresStore) Query(ctx context.Context, code string, limit int) ([]models.DailyBar, error) {
	var records []dailyPrice
	err := s.db.WithContext(ctx).
		Where("code = ?", code).
		Order("date DESC").
		Limit(normalizeLimit(limit)).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.DailyBar, 0, len(records))
	for _, r := range records {
		out = append(out, models.DailyBar{
			Date: r.Date, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume,
		})
	}
	return out, nil
}

// Close releases the connection pool
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
