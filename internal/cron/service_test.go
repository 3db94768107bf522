package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type stubLock struct {
	busy     bool
	err      error
	acquired int
	released int
}

func (l *stubLock) Acquire(context.Context) (bool, error) {
	if l.err != nil || l.busy {
		return false, l.err
	}
	l.acquired++
	return true, nil
}

func (l *stubLock) Release(context.Context) error {
	l.released++
	return nil
}

type funcJob struct {
	name string
	run  func(context.Context) error
	runs int
}

func (j *funcJob) Name() string { return j.name }

func (j *funcJob) Run(ctx context.Context) error {
	j.runs++
	if j.run == nil {
		return nil
	}
	return j.run(ctx)
}

func newTestService(t *testing.T, lock Lock, params ServiceParams, jobs ...Job) *Service {
	t.Helper()
	params.Logger = logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
	params.Lock = lock
	params.Registry = NewRegistry(jobs...)
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc
}

func TestRunOnceRunsEveryJobAndCombinesFailures(t *testing.T) {
	lock := &stubLock{}
	ok := &funcJob{name: "retention"}
	bad := &funcJob{name: "sweep", run: func(context.Context) error { return errors.New("gateway down") }}
	panicky := &funcJob{name: "panics", run: func(context.Context) error { panic("nil map") }}
	svc := newTestService(t, lock, ServiceParams{Metrics: metrics.NewCronJobMetrics(prometheus.NewRegistry())}, bad, panicky, ok)

	err := svc.RunOnce(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep: gateway down")
	assert.Contains(t, err.Error(), "panics: job panicked: nil map")
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, lock.released)
}

func TestRunOnceSkipsWhenLockIsBusy(t *testing.T) {
	job := &funcJob{name: "sweep"}
	lock := &stubLock{busy: true}
	svc := newTestService(t, lock, ServiceParams{}, job)

	require.NoError(t, svc.RunOnce(context.Background()))
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.released)
}

func TestRunOnceWrapsLockErrors(t *testing.T) {
	svc := newTestService(t, &stubLock{err: errors.New("redis down")}, ServiceParams{})

	err := svc.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrLockUnavailable)
}

func TestJobsRunUnderTimeout(t *testing.T) {
	var deadline time.Time
	job := &funcJob{name: "sweep", run: func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	}}
	svc := newTestService(t, &stubLock{}, ServiceParams{Interval: time.Hour, JobTimeout: time.Minute}, job)

	require.NoError(t, svc.RunOnce(context.Background()))
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestRunReturnsOnCancelAfterFirstCycle(t *testing.T) {
	job := &funcJob{name: "sweep"}
	svc := newTestService(t, &stubLock{}, ServiceParams{}, job)

	ctx, cancel := context.WithCancel(context.Background())
	job.run = func(context.Context) error {
		cancel()
		return nil
	}

	assert.ErrorIs(t, svc.Run(ctx), context.Canceled)
	assert.Equal(t, 1, job.runs)
}

func TestNewServiceValidates(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &stubLock{}})
	assert.Error(t, err)

	_, err = NewService(ServiceParams{Logger: logger.New(logger.Options{Output: io.Discard})})
	assert.Error(t, err)
}
