package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sensorcal/sensorcal/pkg/types"
)

// readingModel is the temperature_readings table. Labels are stored as their
// display strings so the table is readable without this code.
type readingModel struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	RunID       string    `gorm:"index;size:36;not null"`
	StoredAt    time.Time `gorm:"index;not null"`
	Timestamp   time.Time `gorm:"not null"`
	Measured    float64   `gorm:"not null"`
	Ideal       float64   `gorm:"not null"`
	Offset      float64   `gorm:"column:offset_value;not null"`
	Corrected   float64   `gorm:"not null"`
	Anomaly     string    `gorm:"size:16;not null"`
	Drift       float64   `gorm:"not null"`
	RULDays     float64   `gorm:"column:rul_days;not null"`
	Health      float64   `gorm:"not null"`
	Alert       string    `gorm:"size:16;not null"`
	Maintenance string    `gorm:"size:64;not null"`
}

// TableName customizes the table name.
func (readingModel) TableName() string {
	return "temperature_readings"
}

func toModel(runID string, stored time.Time, r types.EnrichedReading) readingModel {
	return readingModel{
		RunID:       runID,
		StoredAt:    stored,
		Timestamp:   r.Timestamp,
		Measured:    r.Measured,
		Ideal:       r.Ideal,
		Offset:      r.Offset,
		Corrected:   r.Corrected,
		Anomaly:     r.Anomaly.String(),
		Drift:       r.Drift,
		RULDays:     r.RULDays,
		Health:      r.Health,
		Alert:       r.Alert.String(),
		Maintenance: r.Maintenance.String(),
	}
}

func (m readingModel) toRow() (Row, error) {
	anomaly, err := types.ParseAnomaly(m.Anomaly)
	if err != nil {
		return Row{}, fmt.Errorf("store: row %d: %w", m.ID, err)
	}
	alert, err := types.ParseAlertLevel(m.Alert)
	if err != nil {
		return Row{}, fmt.Errorf("store: row %d: %w", m.ID, err)
	}
	maint, err := types.ParseMaintenance(m.Maintenance)
	if err != nil {
		return Row{}, fmt.Errorf("store: row %d: %w", m.ID, err)
	}
	return Row{
		ID:     m.ID,
		RunID:  m.RunID,
		Stored: m.StoredAt,
		EnrichedReading: types.EnrichedReading{
			Reading:     types.Reading{Timestamp: m.Timestamp, Measured: m.Measured, Ideal: m.Ideal},
			Offset:      m.Offset,
			Corrected:   m.Corrected,
			Anomaly:     anomaly,
			Drift:       m.Drift,
			RULDays:     m.RULDays,
			Health:      m.Health,
			Alert:       alert,
			Maintenance: maint,
		},
	}, nil
}

// insertBatch bounds the number of rows per INSERT statement.
const insertBatch = 500

// SQL is a gorm-backed Store.
type SQL struct {
	db *gorm.DB

	// appendMu serialises runs so IDs of one run stay contiguous.
	appendMu sync.Mutex
	now      func() time.Time
}

var gormConfig = &gorm.Config{
	Logger: logger.Default.LogMode(logger.Silent),
}

// OpenSQLite opens (creating if needed) a sqlite database at path.
// ":memory:" gives a private in-process database.
func OpenSQLite(path string) (*SQL, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create db dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %q: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: sqlite handle: %w", err)
	}
	// sqlite has a single writer, and ":memory:" is per connection.
	sqlDB.SetMaxOpenConns(1)

	slog.Info("store: sqlite opened", "path", path)
	return newSQL(db)
}

// OpenPostgres connects to postgres using dsn.
func OpenPostgres(dsn string) (*SQL, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: postgres handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	slog.Info("store: postgres connected")
	return newSQL(db)
}

func newSQL(db *gorm.DB) (*SQL, error) {
	if err := db.AutoMigrate(&readingModel{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &SQL{db: db, now: time.Now}, nil
}

// Append implements Store. All rows are inserted in one transaction.
func (s *SQL) Append(ctx context.Context, runID string, rows []types.EnrichedReading) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	stored := s.now().UTC()
	models := make([]readingModel, len(rows))
	for i, r := range rows {
		models[i] = toModel(runID, stored, r)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&models, insertBatch).Error
	})
	if err != nil {
		return 0, fmt.Errorf("store: append run %s: %w", runID, err)
	}
	return len(models), nil
}

// History implements Store.
func (s *SQL) History(ctx context.Context, limit int) ([]Row, error) {
	var models []readingModel
	q := s.db.WithContext(ctx)
	if limit > 0 {
		q = q.Order("id DESC").Limit(limit)
	} else {
		q = q.Order("id ASC")
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	if limit > 0 {
		for i, j := 0, len(models)-1; i < j; i, j = i+1, j-1 {
			models[i], models[j] = models[j], models[i]
		}
	}
	return toRows(models)
}

// Latest implements Store.
func (s *SQL) Latest(ctx context.Context) (Row, bool, error) {
	var m readingModel
	err := s.db.WithContext(ctx).Order("id DESC").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("store: latest: %w", err)
	}
	row, err := m.toRow()
	if err != nil {
		return Row{}, false, err
	}
	return row, true, nil
}

// Run implements Store.
func (s *SQL) Run(ctx context.Context, runID string) ([]Row, error) {
	var models []readingModel
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("store: run %s: %w", runID, err)
	}
	return toRows(models)
}

// Prune implements Store.
func (s *SQL) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("stored_at < ?", before.UTC()).
		Delete(&readingModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("store: prune: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Close implements Store.
func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRows(models []readingModel) ([]Row, error) {
	out := make([]Row, len(models))
	for i, m := range models {
		r, err := m.toRow()
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
