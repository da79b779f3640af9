package arrears

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrAlreadyResolved is returned when a resolve targets a record that is no
// longer open.
var ErrAlreadyResolved = errors.New("arrears record already resolved")

// Repository describes database operations available for arrears records and
// their audit actions.
type Repository interface {
	FindOpenByTenancy(ctx context.Context, tenancyID string) (*ArrearsRecord, error)
	ListOpen(ctx context.Context) ([]ArrearsRecord, error)
	Create(ctx context.Context, record *ArrearsRecord) error

	// UpdateTotals refreshes total_overdue, days_overdue and the derived
	// severity on an open record. first_overdue_date is never altered.
	UpdateTotals(ctx context.Context, recordID string, total decimal.Decimal, daysOverdue int) error

	// Resolve marks an open record resolved and appends the audit action in
	// the same transaction. Returns ErrAlreadyResolved when the record was
	// closed by a concurrent run.
	Resolve(ctx context.Context, recordID string, resolvedAt time.Time, reason string, action *ArrearsAction) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindOpenByTenancy(ctx context.Context, tenancyID string) (*ArrearsRecord, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var record ArrearsRecord
	err := r.db.WithContext(ctx).
		Where("tenancy_id = ? AND is_resolved = ?", tenancyID, false).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *gormRepository) ListOpen(ctx context.Context) ([]ArrearsRecord, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var records []ArrearsRecord
	err := r.db.WithContext(ctx).
		Where("is_resolved = ?", false).
		Order("tenancy_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *gormRepository) Create(ctx context.Context, record *ArrearsRecord) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *gormRepository) UpdateTotals(ctx context.Context, recordID string, total decimal.Decimal, daysOverdue int) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Model(&ArrearsRecord{}).
		Where("id = ? AND is_resolved = ?", recordID, false).
		Updates(map[string]any{
			"total_overdue": total,
			"days_overdue":  daysOverdue,
			"severity":      SeverityFor(daysOverdue),
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) Resolve(ctx context.Context, recordID string, resolvedAt time.Time, reason string, action *ArrearsAction) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ArrearsRecord{}).
			Where("id = ? AND is_resolved = ?", recordID, false).
			Updates(map[string]any{
				"is_resolved":     true,
				"resolved_at":     resolvedAt,
				"resolved_reason": reason,
				"updated_at":      resolvedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyResolved
		}

		return tx.Create(action).Error
	})
}
