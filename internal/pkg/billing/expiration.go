package billing

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/internal/pkg/metrics"
)

const (
	DefaultSweepConcurrency = 4
	DefaultNotifyTimeout    = 10 * time.Second
)

// Sweep failure stages.
const (
	StageDeactivate = "deactivate"
	StageNotify     = "notify"
	StageLog        = "log"
)

// Notifier delivers an owner notification synchronously.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SweepFailure struct {
	BusinessID uint   `json:"businessId"`
	Stage      string `json:"stage"`
	Err        string `json:"error"`
}

// SweepReport summarizes one sweep. Checked counts the candidate rows,
// Deactivated the rows this sweep actually lapsed.
type SweepReport struct {
	Checked     int            `json:"checked"`
	Deactivated int            `json:"deactivated"`
	Failures    []SweepFailure `json:"failures"`
}

// ExpirationScheduler lapses plans whose expiration has passed.
type ExpirationScheduler struct {
	repo          Repository
	notifier      Notifier
	activity      ActivityLogger
	metrics       *metrics.Metrics
	concurrency   int
	notifyTimeout time.Duration
}

func NewExpirationScheduler(repo Repository, notifier Notifier, activity ActivityLogger, m *metrics.Metrics, concurrency int, notifyTimeout time.Duration) *ExpirationScheduler {
	if concurrency < 1 {
		concurrency = DefaultSweepConcurrency
	}
	if notifyTimeout <= 0 {
		notifyTimeout = DefaultNotifyTimeout
	}
	return &ExpirationScheduler{
		repo:          repo,
		notifier:      notifier,
		activity:      activity,
		metrics:       m,
		concurrency:   concurrency,
		notifyTimeout: notifyTimeout,
	}
}

// Sweep deactivates every active plan that expired before now. Per-row
// failures are collected in the report; only a failing candidate query
// returns an error.
func (s *ExpirationScheduler) Sweep(ctx context.Context, now time.Time) (*SweepReport, error) {
	started := time.Now()

	rows, err := s.repo.ListExpiredPlans(ctx, now)
	if err != nil {
		err = transient("list expired plans", err)
		log.Errorf("[Expiration] Check failed: %v", err)
		s.appendLog(ctx, &models.ActivityLog{
			ActorID:    models.ActorSystem,
			Action:     models.ActionPlanExpirationCheckFailed,
			EntityType: "current_plan",
			Details:    mustJSON(map[string]interface{}{"error": err.Error(), "at": now}),
		})
		s.metrics.SweepFinished(0, 0, time.Since(started), err)
		return nil, err
	}

	report := &SweepReport{Checked: len(rows), Failures: []SweepFailure{}}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range rows {
		cp := rows[i]
		g.Go(func() error {
			lapsed, failures := s.expire(ctx, &cp, now)
			mu.Lock()
			defer mu.Unlock()
			if lapsed {
				report.Deactivated++
			}
			report.Failures = append(report.Failures, failures...)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(report.Failures, func(i, j int) bool {
		return report.Failures[i].BusinessID < report.Failures[j].BusinessID
	})
	s.metrics.SweepFinished(report.Deactivated, len(report.Failures), time.Since(started), nil)
	log.Infof("[Expiration] Sweep done: %d candidate(s), %d deactivated, %d failure(s)",
		report.Checked, report.Deactivated, len(report.Failures))
	return report, nil
}

func (s *ExpirationScheduler) expire(ctx context.Context, cp *models.CurrentPlan, now time.Time) (bool, []SweepFailure) {
	var failures []SweepFailure
	fail := func(stage string, err error) {
		log.Warnf("[Expiration] Business %d %s failed: %v", cp.BusinessID, stage, err)
		failures = append(failures, SweepFailure{BusinessID: cp.BusinessID, Stage: stage, Err: err.Error()})
	}

	lapsed := false
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		ok, err := tx.ExpireCurrentPlan(ctx, cp.ID, now)
		if err != nil || !ok {
			return err
		}
		if err := tx.MarkBusinessPlanInactive(ctx, cp.BusinessID); err != nil {
			return err
		}
		if _, err := tx.DeactivateExpiredTrials(ctx, cp.BusinessID, now); err != nil {
			return err
		}
		lapsed = true
		return nil
	})
	if err != nil {
		fail(StageDeactivate, transient("deactivate plan", err))
		return false, failures
	}
	if !lapsed {
		// another sweep got there first
		return false, nil
	}

	planName := "your"
	planType := ""
	if cp.Plan != nil {
		planName = cp.Plan.Name
		planType = string(cp.Plan.Type)
	}
	var expiredAt time.Time
	if cp.ExpiresAt != nil {
		expiredAt = *cp.ExpiresAt
	}

	if err := s.notify(ctx, cp, planName, expiredAt); err != nil {
		fail(StageNotify, err)
	}

	entry := &models.ActivityLog{
		ActorID:    models.ActorSystem,
		Action:     models.ActionPlanExpired,
		EntityType: "business",
		EntityID:   strconv.FormatUint(uint64(cp.BusinessID), 10),
		Details: mustJSON(map[string]interface{}{
			"plan":      planType,
			"planId":    cp.PlanID,
			"expiresAt": expiredAt,
		}),
	}
	if err := s.appendLog(ctx, entry); err != nil {
		fail(StageLog, err)
	}
	return true, failures
}

func (s *ExpirationScheduler) notify(ctx context.Context, cp *models.CurrentPlan, planName string, expiredAt time.Time) error {
	if s.notifier == nil {
		return nil
	}
	if cp.Business == nil || cp.Business.OwnerEmail == "" {
		return &NotificationError{BusinessID: cp.BusinessID, Err: errors.New("business has no owner email")}
	}

	nctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	subject, body := planExpiredMessage(cp.Business, planName, expiredAt)
	err := s.notifier.Send(nctx, cp.Business.OwnerEmail, subject, body)
	s.metrics.NotificationSent(err)
	if err != nil {
		return &NotificationError{BusinessID: cp.BusinessID, Err: err}
	}
	return nil
}

func (s *ExpirationScheduler) appendLog(ctx context.Context, entry *models.ActivityLog) error {
	if s.activity == nil {
		return nil
	}
	return s.activity.Append(ctx, entry)
}

func mustJSON(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
