package arrears

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Severity string

var (
	Minor    Severity = "minor"
	Moderate Severity = "moderate"
	Serious  Severity = "serious"
	Critical Severity = "critical"
)

func (s Severity) String() string {
	switch s {
	case Minor, Moderate, Serious, Critical:
		return string(s)
	default:
		return ""
	}
}

// SeverityFor classifies arrears age. Recomputed from days_overdue on every
// upsert; no other path writes the column.
func SeverityFor(daysOverdue int) Severity {
	switch {
	case daysOverdue >= 30:
		return Critical
	case daysOverdue >= 14:
		return Serious
	case daysOverdue >= 7:
		return Moderate
	default:
		return Minor
	}
}

const (
	// ResolvedReasonPaid is the only resolution reason this process writes.
	ResolvedReasonPaid = "All overdue payments received"

	// ActionPaymentReceived is appended when a record is auto-resolved.
	ActionPaymentReceived = "payment_received"
)

// ArrearsRecord tracks one arrears episode for a tenancy. At most one
// unresolved record may exist per tenancy at any time; a resolved record is
// terminal and a new episode creates a fresh row.
type ArrearsRecord struct {
	ID               string          `gorm:"column:id;primaryKey"`
	TenancyID        string          `gorm:"column:tenancy_id;index"`
	TenantID         string          `gorm:"column:tenant_id"`
	FirstOverdueDate time.Time       `gorm:"column:first_overdue_date"`
	TotalOverdue     decimal.Decimal `gorm:"column:total_overdue;type:decimal(14,2)"`
	DaysOverdue      int             `gorm:"column:days_overdue"`
	Severity         Severity        `gorm:"column:severity"`
	IsResolved       bool            `gorm:"column:is_resolved"`
	ResolvedAt       *time.Time      `gorm:"column:resolved_at"`
	ResolvedReason   string          `gorm:"column:resolved_reason"`
	CreatedAt        time.Time       `gorm:"column:created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at"`
}

func (ArrearsRecord) TableName() string { return "arrears_records" }

// ArrearsAction is an append-only audit entry attached to an arrears record.
type ArrearsAction struct {
	ID              string         `gorm:"column:id;primaryKey"`
	ArrearsRecordID string         `gorm:"column:arrears_record_id;index"`
	ActionType      string         `gorm:"column:action_type"`
	Description     string         `gorm:"column:description"`
	IsAutomated     bool           `gorm:"column:is_automated"`
	Metadata        datatypes.JSON `gorm:"column:metadata"`
	CreatedAt       time.Time      `gorm:"column:created_at"`
}

func (ArrearsAction) TableName() string { return "arrears_actions" }
