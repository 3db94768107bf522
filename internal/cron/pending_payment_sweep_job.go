package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultStalePendingAfter  = 15 * time.Minute
	defaultExpirePendingAfter = 24 * time.Hour
	defaultSweepBatchSize     = 50
)

// PendingPaymentSweepJobParams configure the stale payment sweep.
type PendingPaymentSweepJobParams struct {
	Logger      *logger.Logger
	Sessions    staleSessionReader
	Reconciler  sessionReconciler
	StaleAfter  time.Duration
	ExpireAfter time.Duration
	BatchSize   int
}

type staleSessionReader interface {
	ListStaleSessions(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentSession, error)
}

type sessionReconciler interface {
	VerifySession(ctx context.Context, session models.PaymentSession) (*payments.ReconcileResult, error)
	Expire(ctx context.Context, session models.PaymentSession, gatewayStatus string) (*payments.ReconcileResult, error)
}

// NewPendingPaymentSweepJob builds the job that settles online checkouts
// whose callback never arrived.
func NewPendingPaymentSweepJob(params PendingPaymentSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("payment session reader required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStalePendingAfter
	}
	expireAfter := params.ExpireAfter
	if expireAfter <= 0 {
		expireAfter = defaultExpirePendingAfter
	}
	if expireAfter < staleAfter {
		return nil, fmt.Errorf("expire threshold %s is shorter than stale threshold %s", expireAfter, staleAfter)
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	return &pendingPaymentSweepJob{
		logg:        params.Logger,
		sessions:    params.Sessions,
		reconciler:  params.Reconciler,
		staleAfter:  staleAfter,
		expireAfter: expireAfter,
		batch:       batch,
		now:         time.Now,
	}, nil
}

type pendingPaymentSweepJob struct {
	logg        *logger.Logger
	sessions    staleSessionReader
	reconciler  sessionReconciler
	staleAfter  time.Duration
	expireAfter time.Duration
	batch       int
	now         func() time.Time
}

func (j *pendingPaymentSweepJob) Name() string { return "pending-payment-sweep" }

func (j *pendingPaymentSweepJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	sessions, err := j.sessions.ListStaleSessions(ctx, now.Add(-j.staleAfter), j.batch)
	if err != nil {
		return fmt.Errorf("list stale payment sessions: %w", err)
	}

	var errs error
	counts := map[string]int{}
	expireBefore := now.Add(-j.expireAfter)
	for _, session := range sessions {
		outcome, err := j.sweep(ctx, session, expireBefore)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sweep %s: %w", session.CorrelationID, err))
			counts["error"]++
			continue
		}
		counts[string(outcome)]++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"sessions": len(sessions),
		"paid":     counts[string(payments.OutcomePaid)],
		"failed":   counts[string(payments.OutcomeFailed)],
		"pending":  counts[string(payments.OutcomeNotCompleted)],
		"noop":     counts[string(payments.OutcomeNoop)],
		"errors":   counts["error"],
	}), "pending payment sweep complete")
	return errs
}

func (j *pendingPaymentSweepJob) sweep(ctx context.Context, session models.PaymentSession, expireBefore time.Time) (payments.Outcome, error) {
	result, err := j.reconciler.VerifySession(ctx, session)
	if err != nil {
		return "", err
	}
	if result.Outcome != payments.OutcomeNotCompleted || !session.CreatedAt.Before(expireBefore) {
		return result.Outcome, nil
	}
	expired, err := j.reconciler.Expire(ctx, session, result.GatewayStatus)
	if err != nil {
		return "", fmt.Errorf("expire: %w", err)
	}
	return expired.Outcome, nil
}
