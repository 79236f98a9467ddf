package speedtest

import (
	"context"
	"time"

	"github.com/lanwatch/speedmon/internal/domain"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ResultRepository handles database operations for speed test results.
// Rows are append-only: the only deletion path is DeleteOlderThan, driven
// by the retention policy.
type ResultRepository interface {
	// Insert appends a result and populates its ID from the store.
	Insert(ctx context.Context, result *domain.SpeedTestResult) (int64, error)

	// QueryRange retrieves results with start <= timestamp <= end,
	// ascending by timestamp.
	QueryRange(ctx context.Context, start, end time.Time) ([]domain.SpeedTestResult, error)

	// Latest retrieves up to n most recent results, descending by timestamp.
	Latest(ctx context.Context, n int) ([]domain.SpeedTestResult, error)

	// AfterID retrieves results with id > lastID, ascending by id. The
	// export forwarder uses this as its cursor mechanism; id order keeps
	// every row visible even when timestamps are out of insertion order.
	AfterID(ctx context.Context, lastID int64) ([]domain.SpeedTestResult, error)

	// DeleteOlderThan removes rows older than retentionDays and returns
	// the count removed. retentionDays <= 0 deletes nothing.
	DeleteOlderThan(ctx context.Context, retentionDays int) (int64, error)

	// Count returns the total row count.
	Count(ctx context.Context) (int64, error)
}

// GormResultRepository is the GORM implementation of ResultRepository.
type GormResultRepository struct {
	db *gorm.DB

	// now supplies the cleanup cutoff clock; tests pin it.
	now func() time.Time
}

func NewGormResultRepository(db *gorm.DB) *GormResultRepository {
	return &GormResultRepository{db: db, now: time.Now}
}

// OverrideClock replaces the repository's clock (used in tests).
func (r *GormResultRepository) OverrideClock(now func() time.Time) {
	r.now = now
}

func (r *GormResultRepository) Insert(ctx context.Context, result *domain.SpeedTestResult) (int64, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(result).Error
	})
	if err != nil {
		return 0, errors.Wrap(err, "insert speed test result")
	}
	return result.ID, nil
}

func (r *GormResultRepository) QueryRange(ctx context.Context, start, end time.Time) ([]domain.SpeedTestResult, error) {
	var results []domain.SpeedTestResult
	err := r.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp <= ?", start, end).
		Order("timestamp ASC").
		Find(&results).Error
	if err != nil {
		return nil, errors.Wrap(err, "query result range")
	}
	return results, nil
}

func (r *GormResultRepository) Latest(ctx context.Context, n int) ([]domain.SpeedTestResult, error) {
	var results []domain.SpeedTestResult
	err := r.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(n).
		Find(&results).Error
	if err != nil {
		return nil, errors.Wrap(err, "query latest results")
	}
	return results, nil
}

func (r *GormResultRepository) AfterID(ctx context.Context, lastID int64) ([]domain.SpeedTestResult, error) {
	var results []domain.SpeedTestResult
	err := r.db.WithContext(ctx).
		Where("id > ?", lastID).
		Order("id ASC").
		Find(&results).Error
	if err != nil {
		return nil, errors.Wrap(err, "query results after id")
	}
	return results, nil
}

func (r *GormResultRepository) DeleteOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		zap.S().Debugf("retention days is %d, skipping cleanup", retentionDays)
		return 0, nil
	}

	cutoff := r.now().UTC().AddDate(0, 0, -retentionDays)
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("timestamp < ?", cutoff).Delete(&domain.SpeedTestResult{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, errors.Wrap(err, "cleanup old results")
	}
	zap.L().Info("cleanup deleted old results",
		zap.Int64("deleted", deleted),
		zap.Time("cutoff", cutoff))
	return deleted, nil
}

func (r *GormResultRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.SpeedTestResult{}).Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "count results")
	}
	return count, nil
}
