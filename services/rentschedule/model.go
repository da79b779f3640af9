package rentschedule

import "time"

// RentObligation is a single scheduled rent payment. Rows are created ahead
// of time by the rent scheduler; this process never writes them.
type RentObligation struct {
	ID        string     `gorm:"column:id;primaryKey"`
	TenancyID string     `gorm:"column:tenancy_id;index"`
	DueDate   time.Time  `gorm:"column:due_date"`
	Amount    int64      `gorm:"column:amount"` // minor currency units
	IsPaid    bool       `gorm:"column:is_paid"`
	PaidAt    *time.Time `gorm:"column:paid_at"`
	CreatedAt time.Time  `gorm:"column:created_at"`
}

func (RentObligation) TableName() string { return "rent_obligations" }

// OverdueObligation is an unpaid, past-due obligation annotated with its
// tenancy's primary tenant and owner.
type OverdueObligation struct {
	ID        string    `gorm:"column:id"`
	TenancyID string    `gorm:"column:tenancy_id"`
	TenantID  string    `gorm:"column:tenant_id"`
	OwnerID   string    `gorm:"column:owner_id"`
	DueDate   time.Time `gorm:"column:due_date"`
	Amount    int64     `gorm:"column:amount"`
}
