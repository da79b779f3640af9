package tenancy

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repository describes read operations over tenancies.
type Repository interface {
	FindByID(ctx context.Context, tenancyID string) (*Tenancy, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindByID(ctx context.Context, tenancyID string) (*Tenancy, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var t Tenancy
	err := r.db.WithContext(ctx).Where("id = ?", tenancyID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
