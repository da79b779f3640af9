package tenancy

import "time"

type Status string

var (
	Pending   Status = "pending"
	Active    Status = "active"
	Suspended Status = "suspended"
	Ended     Status = "ended"
)

func (s Status) String() string {
	switch s {
	case Pending, Active, Suspended, Ended:
		return string(s)
	default:
		return ""
	}
}

// Tenancy is a lease agreement between an owner and one or more tenants.
// Rows are owned by the tenancy service; this process reads them only.
type Tenancy struct {
	ID         string     `gorm:"column:id;primaryKey"`
	PropertyID string     `gorm:"column:property_id"`
	OwnerID    string     `gorm:"column:owner_id"`
	Status     Status     `gorm:"column:status"`
	StartDate  time.Time  `gorm:"column:start_date"`
	EndDate    *time.Time `gorm:"column:end_date"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at"`
}

func (Tenancy) TableName() string { return "tenancies" }

// TenancyTenant links a tenancy to its tenants. The primary tenant is the
// addressee for arrears notifications.
type TenancyTenant struct {
	TenancyID string `gorm:"column:tenancy_id;primaryKey"`
	TenantID  string `gorm:"column:tenant_id;primaryKey"`
	IsPrimary bool   `gorm:"column:is_primary"`
}

func (TenancyTenant) TableName() string { return "tenancy_tenants" }
