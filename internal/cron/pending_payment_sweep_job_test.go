package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/esewa"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type fakeSessionReader struct {
	sessions []models.PaymentSession
	cutoff   time.Time
	limit    int
}

func (f *fakeSessionReader) ListStaleSessions(_ context.Context, cutoff time.Time, limit int) ([]models.PaymentSession, error) {
	f.cutoff = cutoff
	f.limit = limit
	return f.sessions, nil
}

type fakeSessionReconciler struct {
	verify  map[string]*payments.ReconcileResult
	errs    map[string]error
	expired []string
}

func (f *fakeSessionReconciler) VerifySession(_ context.Context, session models.PaymentSession) (*payments.ReconcileResult, error) {
	if err := f.errs[session.CorrelationID]; err != nil {
		return nil, err
	}
	return f.verify[session.CorrelationID], nil
}

func (f *fakeSessionReconciler) Expire(_ context.Context, session models.PaymentSession, _ string) (*payments.ReconcileResult, error) {
	f.expired = append(f.expired, session.CorrelationID)
	return &payments.ReconcileResult{Outcome: payments.OutcomeFailed, CorrelationID: session.CorrelationID}, nil
}

func staleSession(corr string, age time.Duration, now time.Time) models.PaymentSession {
	return models.PaymentSession{ID: uuid.New(), CorrelationID: corr, CreatedAt: now.Add(-age)}
}

func TestPendingPaymentSweepSettlesAndExpires(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	reader := &fakeSessionReader{sessions: []models.PaymentSession{
		staleSession("esewa-paid", 20*time.Minute, now),
		staleSession("esewa-young", time.Hour, now),
		staleSession("esewa-old", 25*time.Hour, now),
		staleSession("esewa-down", 30*time.Hour, now),
	}}
	reconciler := &fakeSessionReconciler{
		verify: map[string]*payments.ReconcileResult{
			"esewa-paid":  {Outcome: payments.OutcomePaid},
			"esewa-young": {Outcome: payments.OutcomeNotCompleted, GatewayStatus: esewa.StatusPending},
			"esewa-old":   {Outcome: payments.OutcomeNotCompleted, GatewayStatus: esewa.StatusNotFound},
		},
		errs: map[string]error{"esewa-down": errors.New("gateway timeout")},
	}
	jobIface, err := NewPendingPaymentSweepJob(PendingPaymentSweepJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Sessions:   reader,
		Reconciler: reconciler,
		BatchSize:  25,
	})
	require.NoError(t, err)
	job := jobIface.(*pendingPaymentSweepJob)
	job.now = func() time.Time { return now }

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "esewa-down")

	assert.Equal(t, now.Add(-defaultStalePendingAfter), reader.cutoff)
	assert.Equal(t, 25, reader.limit)
	// gateway errors never expire a group, it may have been paid
	assert.Equal(t, []string{"esewa-old"}, reconciler.expired)
}

func TestPendingPaymentSweepNoSessions(t *testing.T) {
	jobIface, err := NewPendingPaymentSweepJob(PendingPaymentSweepJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Sessions:   &fakeSessionReader{},
		Reconciler: &fakeSessionReconciler{},
	})
	require.NoError(t, err)
	require.NoError(t, jobIface.Run(context.Background()))
	assert.Equal(t, "pending-payment-sweep", jobIface.Name())
}

func TestNewPendingPaymentSweepJobValidates(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})
	_, err := NewPendingPaymentSweepJob(PendingPaymentSweepJobParams{Logger: logg, Reconciler: &fakeSessionReconciler{}})
	require.Error(t, err)

	_, err = NewPendingPaymentSweepJob(PendingPaymentSweepJobParams{
		Logger:      logg,
		Sessions:    &fakeSessionReader{},
		Reconciler:  &fakeSessionReconciler{},
		StaleAfter:  time.Hour,
		ExpireAfter: time.Minute,
	})
	require.Error(t, err)
}
