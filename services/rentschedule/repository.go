package rentschedule

import (
	"context"
	"time"

	"casa-arrears/services/tenancy"

	"gorm.io/gorm"
)

// Repository describes read operations over the rent schedule. The reconciler
// only ever reads this table; payments are recorded elsewhere.
type Repository interface {
	// ListOverdue returns every unpaid obligation due strictly before today,
	// joined to its active tenancy's primary tenant and owner. Tenancies not
	// in active status are excluded.
	ListOverdue(ctx context.Context, today time.Time) ([]OverdueObligation, error)

	// CountOverdueByTenancy reports how many unpaid, past-due obligations
	// remain for a single tenancy.
	CountOverdueByTenancy(ctx context.Context, tenancyID string, today time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) ListOverdue(ctx context.Context, today time.Time) ([]OverdueObligation, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var rows []OverdueObligation
	err := r.db.WithContext(ctx).
		Table("rent_obligations").
		Select("rent_obligations.id, rent_obligations.tenancy_id, rent_obligations.due_date, rent_obligations.amount, tenancy_tenants.tenant_id, tenancies.owner_id").
		Joins("JOIN tenancies ON tenancies.id = rent_obligations.tenancy_id AND tenancies.status = ?", tenancy.Active).
		Joins("JOIN tenancy_tenants ON tenancy_tenants.tenancy_id = rent_obligations.tenancy_id AND tenancy_tenants.is_primary = ?", true).
		Where("rent_obligations.is_paid = ?", false).
		Where("rent_obligations.due_date < ?", today).
		Order("rent_obligations.tenancy_id ASC").
		Order("rent_obligations.due_date ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *gormRepository) CountOverdueByTenancy(ctx context.Context, tenancyID string, today time.Time) (int64, error) {
	if r == nil || r.db == nil {
		return 0, gorm.ErrInvalidDB
	}

	var count int64
	err := r.db.WithContext(ctx).
		Model(&RentObligation{}).
		Where("tenancy_id = ?", tenancyID).
		Where("is_paid = ?", false).
		Where("due_date < ?", today).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
