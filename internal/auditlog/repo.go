package auditlog

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Migrate() error {
	return r.db.AutoMigrate(&LogRecord{})
}

// Insert writes rec unless a record with the same correlation id exists, so a
// redelivered queue message does not produce a second row.
func (r *Repo) Insert(ctx context.Context, rec *LogRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "correlation_id"}},
			DoNothing: true,
		}).
		Create(rec).Error
}

func (r *Repo) GetByCorrelationID(ctx context.Context, correlationID string) (*LogRecord, error) {
	var rec LogRecord
	if err := r.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Ping reports whether the underlying database is reachable.
func (r *Repo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
