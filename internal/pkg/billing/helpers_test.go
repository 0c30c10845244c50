package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/internal/pkg/cache"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, to, subject, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, to+"|"+subject)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// recordingActivity writes to the activity_logs table like the real repository.
type recordingActivity struct {
	db *gorm.DB
}

func (a *recordingActivity) Append(ctx context.Context, entry *models.ActivityLog) error {
	return a.db.WithContext(ctx).Create(entry).Error
}

type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []string
	err  error
}

func (e *recordingEnqueuer) EnqueueNotification(_ context.Context, to, subject, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, to+"|"+subject)
	return e.err
}

func (e *recordingEnqueuer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.jobs)
}

type testEnv struct {
	db       *gorm.DB
	repo     Repository
	svc      *Services
	now      time.Time
	notifier *recordingNotifier
	activity *recordingActivity
	enqueuer *recordingEnqueuer
	plans    map[models.PlanType]*models.Plan
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Plan{},
		&models.Business{},
		&models.CurrentPlan{},
		&models.Trial{},
		&models.Payment{},
		&models.WebhookEvent{},
		&models.ActivityLog{},
	))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	env := &testEnv{
		db:       db,
		repo:     NewRepository(db),
		now:      baseTime,
		notifier: &recordingNotifier{},
		activity: &recordingActivity{db: db},
		enqueuer: &recordingEnqueuer{},
	}
	env.seedPlans(t)
	env.wire(env.repo)
	return env
}

// wire rebuilds the services on repo, keeping the other collaborators.
func (e *testEnv) wire(repo Repository) {
	e.svc = New(Deps{
		Repo:     repo,
		Cache:    cache.NewMemoryStore(32, time.Hour),
		Clock:    ClockFunc(func() time.Time { return e.now }),
		Notifier: e.notifier,
		Enqueuer: e.enqueuer,
		Activity: e.activity,
	}, Config{
		TrialDays:           30,
		PlanDurationDays:    30,
		SweepConcurrency:    1,
		NotifyTimeout:       time.Second,
		CheckoutURLTemplate: "https://pay.example.com/checkout?ref={reference}&amount={amount}",
	})
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func (e *testEnv) seedPlans(t *testing.T) {
	t.Helper()
	e.plans = map[models.PlanType]*models.Plan{}
	for _, p := range []models.Plan{
		{Type: models.PlanFree, Name: "Free", MaxProducts: 5, MaxImagesPerProduct: 1, Price: 0, IsActive: true},
		{Type: models.PlanBasic, Name: "Basic", MaxProducts: 50, MaxImagesPerProduct: 5, Price: 14999, IsActive: true},
		{Type: models.PlanPremium, Name: "Premium", MaxProducts: models.UnlimitedProducts, MaxImagesPerProduct: 10, CanFeatureProducts: true, Price: 29999, IsActive: true},
	} {
		plan := p
		require.NoError(t, e.db.Create(&plan).Error)
		e.plans[plan.Type] = &plan
	}
}

func (e *testEnv) createBusiness(t *testing.T, name string) *models.Business {
	t.Helper()
	b := &models.Business{
		Name:       name,
		OwnerEmail: fmt.Sprintf("%s@example.com", name),
		Plan:       models.PlanFree,
		PlanStatus: models.PlanStatusInactive,
	}
	require.NoError(t, e.db.Create(b).Error)
	return b
}

// assignPlan writes a CurrentPlan row directly, bypassing the managers.
func (e *testEnv) assignPlan(t *testing.T, businessID uint, planType models.PlanType, active bool, expiresAt *time.Time) *models.CurrentPlan {
	t.Helper()
	cp := &models.CurrentPlan{
		BusinessID: businessID,
		PlanID:     e.plans[planType].ID,
		IsActive:   active,
		ExpiresAt:  expiresAt,
	}
	require.NoError(t, e.db.Create(cp).Error)
	status := models.PlanStatusInactive
	if active {
		status = models.PlanStatusActive
	}
	require.NoError(t, e.db.Model(&models.Business{}).Where("id = ?", businessID).Updates(map[string]interface{}{
		"plan":            planType,
		"plan_status":     status,
		"plan_expires_at": expiresAt,
	}).Error)
	return cp
}

func (e *testEnv) currentPlan(t *testing.T, businessID uint) *models.CurrentPlan {
	t.Helper()
	var cp models.CurrentPlan
	require.NoError(t, e.db.Preload("Plan").Where("business_id = ?", businessID).First(&cp).Error)
	return &cp
}

func (e *testEnv) business(t *testing.T, id uint) *models.Business {
	t.Helper()
	var b models.Business
	require.NoError(t, e.db.First(&b, id).Error)
	return &b
}

func (e *testEnv) activeTrials(t *testing.T, businessID uint) []models.Trial {
	t.Helper()
	var trials []models.Trial
	require.NoError(t, e.db.Where("business_id = ? AND is_active = ?", businessID, true).Find(&trials).Error)
	return trials
}

func (e *testEnv) countRows(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := e.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func timePtr(t time.Time) *time.Time { return &t }

var errInjected = errors.New("injected failure")

// faultyRepo injects errors into selected repository calls, including calls
// made inside transactions.
type faultyRepo struct {
	Repository
	listExpiredErr   error
	expireErrFor     uint
	markProcessedErr error
	createEventErr   error
}

func (f *faultyRepo) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	return f.Repository.WithTx(ctx, func(tx Repository) error {
		inner := *f
		inner.Repository = tx
		return fn(&inner)
	})
}

func (f *faultyRepo) ListExpiredPlans(ctx context.Context, now time.Time) ([]models.CurrentPlan, error) {
	if f.listExpiredErr != nil {
		return nil, f.listExpiredErr
	}
	return f.Repository.ListExpiredPlans(ctx, now)
}

func (f *faultyRepo) ExpireCurrentPlan(ctx context.Context, id uint, now time.Time) (bool, error) {
	if f.expireErrFor != 0 && f.expireErrFor == id {
		return false, errInjected
	}
	return f.Repository.ExpireCurrentPlan(ctx, id, now)
}

func (f *faultyRepo) MarkWebhookProcessed(ctx context.Context, id uint, note string, at time.Time) error {
	if f.markProcessedErr != nil {
		return f.markProcessedErr
	}
	return f.Repository.MarkWebhookProcessed(ctx, id, note, at)
}

func (f *faultyRepo) CreateWebhookEventIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	if f.createEventErr != nil {
		return false, nil, f.createEventErr
	}
	return f.Repository.CreateWebhookEventIfNotExists(ctx, event)
}
