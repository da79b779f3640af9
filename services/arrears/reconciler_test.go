package arrears

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"casa-arrears/pkg/config"
	"casa-arrears/pkg/runlease"
	"casa-arrears/services/notification"
	"casa-arrears/services/rentschedule"
	"casa-arrears/services/tenancy"
	"casa-arrears/services/testutil"
)

type fakeLease struct{}

func (fakeLease) Release(context.Context) error { return nil }

type fakeLocker struct {
	held bool
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (runlease.Lease, error) {
	if l.held {
		return nil, runlease.ErrHeld
	}
	return fakeLease{}, nil
}

type fakeDispatcher struct {
	sent []notification.Notification
	err  error
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, notifications ...notification.Notification) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, notifications...)
	return nil
}

type fixture struct {
	db         *gorm.DB
	reconciler *Reconciler
	dispatcher *fakeDispatcher
	locker     *fakeLocker
	records    Repository
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&tenancy.Tenancy{},
		&tenancy.TenancyTenant{},
		&rentschedule.RentObligation{},
		&ArrearsRecord{},
		&ArrearsAction{},
	)

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Reconcile.LeaseTTL = time.Minute

	now := time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC)
	dispatcher := &fakeDispatcher{}
	locker := &fakeLocker{}
	records := NewRepository(db)

	reconciler := NewReconciler(ReconcilerParams{
		Schedule:   rentschedule.NewRepository(db),
		Tenancies:  tenancy.NewRepository(db),
		Records:    records,
		Dispatcher: dispatcher,
		Locker:     locker,
		Node:       node,
		Config:     cfg,
		Clock:      func() time.Time { return now },
	})

	return &fixture{
		db:         db,
		reconciler: reconciler,
		dispatcher: dispatcher,
		locker:     locker,
		records:    records,
		now:        now,
	}
}

func (f *fixture) seedTenancy(t *testing.T, id, ownerID, tenantID string, status tenancy.Status) {
	t.Helper()
	require.NoError(t, f.db.Create(&tenancy.Tenancy{
		ID:      id,
		OwnerID: ownerID,
		Status:  status,
	}).Error)
	require.NoError(t, f.db.Create(&tenancy.TenancyTenant{
		TenancyID: id,
		TenantID:  tenantID,
		IsPrimary: true,
	}).Error)
}

func (f *fixture) seedObligation(t *testing.T, id, tenancyID string, due time.Time, amount int64, paid bool) {
	t.Helper()
	require.NoError(t, f.db.Create(&rentschedule.RentObligation{
		ID:        id,
		TenancyID: tenancyID,
		DueDate:   due,
		Amount:    amount,
		IsPaid:    paid,
	}).Error)
}

func (f *fixture) openRecords(t *testing.T, tenancyID string) []ArrearsRecord {
	t.Helper()
	var records []ArrearsRecord
	require.NoError(t, f.db.Where("tenancy_id = ? AND is_resolved = ?", tenancyID, false).Find(&records).Error)
	return records
}

func resultFor(t *testing.T, summary *Summary, tenancyID string) ItemResult {
	t.Helper()
	for _, r := range summary.Results {
		if r.TenancyID == tenancyID {
			return r
		}
	}
	t.Fatalf("no result for tenancy %s", tenancyID)
	return ItemResult{}
}

func TestRunCreatesRecordForNewArrears(t *testing.T) {
	f := newFixture(t)
	f.seedTenancy(t, "ten-1", "owner-1", "user-1", tenancy.Active)
	f.seedObligation(t, "ob-1", "ten-1", f.now.AddDate(0, 0, -5), 350, false)

	summary, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 1, summary.Created)

	res := resultFor(t, summary, "ten-1")
	require.Equal(t, ActionCreated, res.Action)
	require.Equal(t, "user-1", res.TenantID)
	require.True(t, res.TotalOverdue.Equal(decimal.NewFromInt(350)))
	require.Equal(t, 5, *res.DaysOverdue)

	records := f.openRecords(t, "ten-1")
	require.Len(t, records, 1)
	require.True(t, records[0].TotalOverdue.Equal(decimal.NewFromInt(350)))
	require.Equal(t, 5, records[0].DaysOverdue)
	require.Equal(t, Minor, records[0].Severity)
	require.False(t, records[0].IsResolved)
}

func TestRunUpdatesExistingOpenRecord(t *testing.T) {
	f := newFixture(t)
	f.seedTenancy(t, "ten-1", "owner-1", "user-1", tenancy.Active)
	f.seedObligation(t, "ob-1", "ten-1", f.now.AddDate(0, 0, -20), 500, false)

	_, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)

	// A second obligation falls overdue before the next run.
	f.seedObligation(t, "ob-2", "ten-1", f.now.AddDate(0, 0, -3), 500, false)

	summary, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)

	res := resultFor(t, summary, "ten-1")
	require.Equal(t, ActionUpdated, res.Action)

	records := f.openRecords(t, "ten-1")
	require.Len(t, records, 1)
	require.True(t, records[0].TotalOverdue.Equal(decimal.NewFromInt(1000)))
	require.Equal(t, 20, records[0].DaysOverdue)
	require.Equal(t, Serious, records[0].Severity)
	// first_overdue_date is fixed at episode start.
	require.Equal(t, f.now.AddDate(0, 0, -20).Format("2006-01-02"), records[0].FirstOverdueDate.Format("2006-01-02"))
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedTenancy(t, "ten-1", "owner-1", "user-1", tenancy.Active)
	f.seedObligation(t, "ob-1", "ten-1", f.now.AddDate(0, 0, -5), 350, false)

	_, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)

	first := f.openRecords(t, "ten-1")
	require.Len(t, first, 1)

	summary, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Updated)
	require.Equal(t, 0, summary.Created)

	second := f.openRecords(t, "ten-1")
	require.Len(t, second, 1)
	require.Equal(t, first[0].ID, second[0].ID)
	require.True(t, first[0].TotalOverdue.Equal(second[0].TotalOverdue))
	require.Equal(t, first[0].DaysOverdue, second[0].DaysOverdue)
}

func TestRunResolvesClearedRecord(t *testing.T) {
	f := newFixture(t)
	f.seedTenancy(t, "ten-1", "owner-1", "user-1", tenancy.Active)
	f.seedObligation(t, "ob-1", "ten-1", f.now.AddDate(0, 0, -5), 350, false)

	_, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&rentschedule.RentObligation{}).
		Where("id = ?", "ob-1").
		Update("is_paid", true).Error)

	summary, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Resolved)

	res := resultFor(t, summary, "ten-1")
	require.Equal(t, ActionResolved, res.Action)

	require.Empty(t, f.openRecords(t, "ten-1"))

	var record ArrearsRecord
	require.NoError(t, f.db.Where("tenancy_id = ?", "ten-1").First(&record).Error)
	require.True(t, record.IsResolved)
	require.NotNil(t, record.ResolvedAt)
	require.Equal(t, ResolvedReasonPaid, record.ResolvedReason)

	var action ArrearsAction
	require.NoError(t, f.db.Where("arrears_record_id = ?", record.ID).First(&action).Error)
	require.Equal(t, ActionPaymentReceived, action.ActionType)
	require.True(t, action.IsAutomated)

	// Tenant and owner are both told.
	require.Len(t, f.dispatcher.sent, 2)
	require.Equal(t, "user-1", f.dispatcher.sent[0].UserID)
	require.Equal(t, "owner-1", f.dispatcher.sent[1].UserID)
	require.Equal(t, notification.TypeArrearsResolved, f.dispatcher.sent[0].Type)
}

func TestRunMonotonicClosure(t *testing.T) {
	f := newFixture(t)
	f.seedTenancy(t, "ten-1", "owner-1", "user-1", tenancy.Active)
	f.seedObligation(t, "ob-1", "ten-1", f.now.AddDate(0, 0, -5), 350, false)

	_, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&rentschedule.RentObligation{}).
		Where("id = ?", "ob-1").
		Update("is_paid", true).Error)

	_, err = f.reconciler.Run(context.Background())
	require.NoError(t, err)

	summary, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, summary.Processed)

	var count int64
	require.NoError(t, f.db.Model(&ArrearsRecord{}).Where("tenancy_id = ?", "ten-1").Count(&count).Error)
	require.Equal(t, int64(1), count)
	require.Empty(t, f.openRecords(t, "ten-1"))
}

func TestRunSingleOpenRecordInvariant(t *testing.T) {
	f := newFixture(t)
	f.seedTenancy(t, "ten-1", "owner-1", "user-1", tenancy.Active)
	f.seedTenancy(t, "ten-2", "owner-2", "user-2", tenancy.Active)
	f.seedObligation(t, "ob-1", "ten-1", f.now.AddDate(0, 0, -5), 350, false)
	f.seedObligation(t, "ob-2", "ten-1", f.now.AddDate(0, 0, -35), 350, false)
	f.seedObligation(t, "ob-3", "ten-2", f.now.AddDate(0, 0, -2), 900, false)

	for i := 0; i < 3; i++ {
		_, err := f.reconciler.Run(context.Background())
		require.NoError(t, err)
	}

	for _, tenancyID := range []string{"ten-1", "ten-2"} {
		require.Len(t, f.openRecords(t, tenancyID), 1, "tenancy %s", tenancyID)
	}
}

func TestRunRaceRecheckLeavesRecordOpen(t *testing.T) {
	f := newFixture(t)
	// Suspended tenancies are excluded from the overdue scan, but their
	// unpaid obligations still fail the resolver's re-check.
	f.seedTenancy(t, "ten-1", "owner-1", "user-1", tenancy.Active)
	f.seedObligation(t, "ob-1", "ten-1", f.now.AddDate(0, 0, -5), 350, false)

	_, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&tenancy.Tenancy{}).
		Where("id = ?", "ten-1").
		Update("status", tenancy.Suspended).Error)

	summary, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)

	res := resultFor(t, summary, "ten-1")
	require.Equal(t, ActionSkipped, res.Action)
	require.Empty(t, res.Error)

	require.Len(t, f.openRecords(t, "ten-1"), 1)
	require.Empty(t, f.dispatcher.sent)
}

type flakyRecords struct {
	Repository
	failTenancy string
}

func (r *flakyRecords) FindOpenByTenancy(ctx context.Context, tenancyID string) (*ArrearsRecord, error) {
	if tenancyID == r.failTenancy {
		return nil, errors.New("connection reset")
	}
	return r.Repository.FindOpenByTenancy(ctx, tenancyID)
}

func TestRunPartialFailureIsolation(t *testing.T) {
	f := newFixture(t)
	f.seedTenancy(t, "ten-a", "owner-a", "user-a", tenancy.Active)
	f.seedTenancy(t, "ten-b", "owner-b", "user-b", tenancy.Active)
	f.seedObligation(t, "ob-a", "ten-a", f.now.AddDate(0, 0, -5), 350, false)
	f.seedObligation(t, "ob-b", "ten-b", f.now.AddDate(0, 0, -5), 700, false)

	node, err := snowflake.NewNode(10)
	require.NoError(t, err)
	cfg := &config.Config{}
	cfg.Reconcile.LeaseTTL = time.Minute

	reconciler := NewReconciler(ReconcilerParams{
		Schedule:   rentschedule.NewRepository(f.db),
		Tenancies:  tenancy.NewRepository(f.db),
		Records:    &flakyRecords{Repository: f.records, failTenancy: "ten-a"},
		Dispatcher: f.dispatcher,
		Locker:     f.locker,
		Node:       node,
		Config:     cfg,
		Clock:      func() time.Time { return f.now },
	})

	summary, err := reconciler.Run(context.Background())
	require.NoError(t, err)

	resA := resultFor(t, summary, "ten-a")
	require.Equal(t, ActionSkipped, resA.Action)
	require.Contains(t, resA.Error, "connection reset")

	resB := resultFor(t, summary, "ten-b")
	require.Equal(t, ActionCreated, resB.Action)
	require.Len(t, f.openRecords(t, "ten-b"), 1)
	require.Empty(t, f.openRecords(t, "ten-a"))
}

func TestRunLeaseHeld(t *testing.T) {
	f := newFixture(t)
	f.locker.held = true

	summary, err := f.reconciler.Run(context.Background())
	require.ErrorIs(t, err, runlease.ErrHeld)
	require.Nil(t, summary)
}

func TestRunNotificationFailureDoesNotBlockResolution(t *testing.T) {
	f := newFixture(t)
	f.seedTenancy(t, "ten-1", "owner-1", "user-1", tenancy.Active)
	f.seedObligation(t, "ob-1", "ten-1", f.now.AddDate(0, 0, -5), 350, false)

	_, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&rentschedule.RentObligation{}).
		Where("id = ?", "ob-1").
		Update("is_paid", true).Error)

	f.dispatcher.err = errors.New("queue unavailable")

	summary, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Resolved)
	require.Empty(t, f.openRecords(t, "ten-1"))
}
