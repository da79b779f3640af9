package arrears

import (
	"context"
	"fmt"
	"time"

	"casa-arrears/pkg/config"
	"casa-arrears/pkg/runlease"
	"casa-arrears/services/notification"
	"casa-arrears/services/rentschedule"
	"casa-arrears/services/tenancy"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionResolved = "resolved"
	ActionSkipped  = "skipped"

	leaseKey = "arrears:reconcile:lease"
)

// ItemResult is the per-tenancy outcome of a reconciliation run.
type ItemResult struct {
	TenancyID    string           `json:"tenancyId"`
	TenantID     string           `json:"tenantId"`
	Action       string           `json:"action"`
	TotalOverdue *decimal.Decimal `json:"totalOverdue,omitempty"`
	DaysOverdue  *int             `json:"daysOverdue,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// Summary is returned to the trigger caller after a full run.
type Summary struct {
	Processed int          `json:"processed"`
	Created   int          `json:"created"`
	Updated   int          `json:"updated"`
	Resolved  int          `json:"resolved"`
	Skipped   int          `json:"skipped"`
	Results   []ItemResult `json:"results"`
}

func (s *Summary) add(r ItemResult) {
	s.Results = append(s.Results, r)
	s.Processed++
	switch r.Action {
	case ActionCreated:
		s.Created++
	case ActionUpdated:
		s.Updated++
	case ActionResolved:
		s.Resolved++
	case ActionSkipped:
		s.Skipped++
	}
}

// Reconciler keeps arrears_records consistent with the current set of
// unpaid, overdue rent obligations. A run is a single pass: read the overdue
// schedule, aggregate per tenancy, upsert open records, then close records
// whose debt has cleared. Runs are idempotent and guarded by a Redis lease
// so overlapping invocations cannot double-write.
type Reconciler struct {
	schedule   rentschedule.Repository
	tenancies  tenancy.Repository
	records    Repository
	dispatcher notification.Dispatcher
	locker     runlease.Locker
	node       *snowflake.Node

	leaseTTL time.Duration
	clock    func() time.Time
}

type ReconcilerParams struct {
	fx.In
	Schedule   rentschedule.Repository
	Tenancies  tenancy.Repository
	Records    Repository
	Dispatcher notification.Dispatcher
	Locker     runlease.Locker
	Node       *snowflake.Node
	Config     *config.Config
	Clock      func() time.Time `optional:"true"`
}

func NewReconciler(p ReconcilerParams) *Reconciler {
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Reconciler{
		schedule:   p.Schedule,
		tenancies:  p.Tenancies,
		records:    p.Records,
		dispatcher: p.Dispatcher,
		locker:     p.Locker,
		node:       p.Node,
		leaseTTL:   p.Config.Reconcile.LeaseTTL,
		clock:      clock,
	}
}

// Run executes one reconciliation pass. It returns runlease.ErrHeld when an
// overlapping run holds the lease, and a read error when the schedule cannot
// be loaded; in both cases no state has been touched. Per-tenancy write
// failures do not fail the run, they surface as skipped result entries.
func (r *Reconciler) Run(ctx context.Context) (*Summary, error) {
	lease, err := r.locker.Acquire(ctx, leaseKey, r.leaseTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			zap.L().Warn("failed to release reconcile lease", zap.Error(err))
		}
	}()

	start := r.clock()
	today := start

	overdue, err := r.schedule.ListOverdue(ctx, today)
	if err != nil {
		zap.L().Error("failed to query overdue obligations", zap.Error(err))
		return nil, fmt.Errorf("list overdue obligations: %w", err)
	}

	aggregated := Aggregate(overdue, today)

	summary := &Summary{Results: make([]ItemResult, 0, len(aggregated))}

	if err := r.writeArrears(ctx, aggregated, summary); err != nil {
		return nil, err
	}
	if err := r.resolveCleared(ctx, aggregated, today, summary); err != nil {
		return nil, err
	}

	zap.L().Info("arrears reconciliation finished",
		zap.Int("processed", summary.Processed),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("resolved", summary.Resolved),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", time.Since(start)),
	)

	return summary, nil
}

// writeArrears upserts one open record per tenancy in arrears. Each tenancy
// is committed independently; a failed upsert is recorded and the loop moves
// on.
func (r *Reconciler) writeArrears(ctx context.Context, aggregated map[string]TenancyArrears, summary *Summary) error {
	for tenancyID, agg := range aggregated {
		if err := ctx.Err(); err != nil {
			return err
		}

		result := ItemResult{
			TenancyID:    tenancyID,
			TenantID:     agg.TenantID,
			TotalOverdue: &agg.TotalOverdue,
			DaysOverdue:  &agg.DaysOverdue,
		}

		action, err := r.upsertOne(ctx, agg)
		if err != nil {
			zap.L().Error("failed to upsert arrears record",
				zap.String("tenancy_id", tenancyID),
				zap.Error(err),
			)
			result.Action = ActionSkipped
			result.Error = err.Error()
			result.TotalOverdue = nil
			result.DaysOverdue = nil
			summary.add(result)
			continue
		}

		result.Action = action
		summary.add(result)
	}

	return nil
}

func (r *Reconciler) upsertOne(ctx context.Context, agg TenancyArrears) (string, error) {
	existing, err := r.records.FindOpenByTenancy(ctx, agg.TenancyID)
	if err != nil {
		return "", err
	}

	if existing != nil {
		if err := r.records.UpdateTotals(ctx, existing.ID, agg.TotalOverdue, agg.DaysOverdue); err != nil {
			return "", err
		}
		return ActionUpdated, nil
	}

	now := r.clock()
	record := &ArrearsRecord{
		ID:               r.node.Generate().String(),
		TenancyID:        agg.TenancyID,
		TenantID:         agg.TenantID,
		FirstOverdueDate: agg.FirstOverdueDate,
		TotalOverdue:     agg.TotalOverdue,
		DaysOverdue:      agg.DaysOverdue,
		Severity:         SeverityFor(agg.DaysOverdue),
		IsResolved:       false,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := r.records.Create(ctx, record); err != nil {
		return "", err
	}
	return ActionCreated, nil
}

// resolveCleared closes open records whose tenancy no longer appears in the
// overdue set. Each candidate is re-checked against the schedule first: a
// payment recorded between the initial scan and this step leaves the record
// open for the next run.
func (r *Reconciler) resolveCleared(ctx context.Context, aggregated map[string]TenancyArrears, today time.Time, summary *Summary) error {
	open, err := r.records.ListOpen(ctx)
	if err != nil {
		zap.L().Error("failed to list open arrears records", zap.Error(err))
		return fmt.Errorf("list open arrears records: %w", err)
	}

	for _, record := range open {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, still := aggregated[record.TenancyID]; still {
			continue
		}

		result := ItemResult{
			TenancyID: record.TenancyID,
			TenantID:  record.TenantID,
		}

		remaining, err := r.schedule.CountOverdueByTenancy(ctx, record.TenancyID, today)
		if err != nil {
			zap.L().Error("failed to re-check overdue obligations",
				zap.String("tenancy_id", record.TenancyID),
				zap.Error(err),
			)
			result.Action = ActionSkipped
			result.Error = err.Error()
			summary.add(result)
			continue
		}

		if remaining > 0 {
			// Race: new debt appeared since the scan. Not an error.
			zap.L().Info("outstanding debt found on re-check, leaving record open",
				zap.String("tenancy_id", record.TenancyID),
				zap.Int64("remaining", remaining),
			)
			result.Action = ActionSkipped
			summary.add(result)
			continue
		}

		if err := r.resolveOne(ctx, record); err != nil {
			if err == ErrAlreadyResolved {
				result.Action = ActionSkipped
				summary.add(result)
				continue
			}
			zap.L().Error("failed to resolve arrears record",
				zap.String("tenancy_id", record.TenancyID),
				zap.String("arrears_record_id", record.ID),
				zap.Error(err),
			)
			result.Action = ActionSkipped
			result.Error = err.Error()
			summary.add(result)
			continue
		}

		result.Action = ActionResolved
		summary.add(result)

		r.notifyResolved(ctx, record)
	}

	return nil
}

func (r *Reconciler) resolveOne(ctx context.Context, record ArrearsRecord) error {
	now := r.clock()
	action := &ArrearsAction{
		ID:              r.node.Generate().String(),
		ArrearsRecordID: record.ID,
		ActionType:      ActionPaymentReceived,
		Description:     "Arrears automatically resolved: all overdue payments received",
		IsAutomated:     true,
		CreatedAt:       now,
	}

	return r.records.Resolve(ctx, record.ID, now, ResolvedReasonPaid, action)
}

// notifyResolved enqueues tenant and owner notifications. Best effort: a
// failed hand-off is logged and never unwinds the resolution.
func (r *Reconciler) notifyResolved(ctx context.Context, record ArrearsRecord) {
	data := map[string]any{
		"tenancy_id":        record.TenancyID,
		"arrears_record_id": record.ID,
	}

	notifications := []notification.Notification{
		{
			UserID:   record.TenantID,
			Type:     notification.TypeArrearsResolved,
			Title:    "Arrears resolved",
			Body:     "All overdue rent for your tenancy has been received. Thank you.",
			Data:     data,
			Channels: notification.DefaultChannels,
		},
	}

	t, err := r.tenancies.FindByID(ctx, record.TenancyID)
	if err != nil || t == nil {
		zap.L().Warn("could not load tenancy for owner notification",
			zap.String("tenancy_id", record.TenancyID),
			zap.Error(err),
		)
	} else {
		notifications = append(notifications, notification.Notification{
			UserID:   t.OwnerID,
			Type:     notification.TypeArrearsResolved,
			Title:    "Tenant arrears cleared",
			Body:     "All overdue rent for your tenancy has been received.",
			Data:     data,
			Channels: notification.DefaultChannels,
		})
	}

	if err := r.dispatcher.Dispatch(ctx, notifications...); err != nil {
		zap.L().Warn("failed to enqueue arrears resolved notifications",
			zap.String("tenancy_id", record.TenancyID),
			zap.Error(err),
		)
	}
}
