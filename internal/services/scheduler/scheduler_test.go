package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/CampaignBox/internal/apperrors"
	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu    sync.Mutex
	ids   []uint64
	err   error
	calls int
}

func (r *fakeRepo) ListDueCampaigns(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.ids, r.err
}

type fakeDispatcher struct {
	mu   sync.Mutex
	errs map[uint64]error
	sent []uint64
}

func (d *fakeDispatcher) Send(ctx context.Context, id uint64, listIDs []uint64) (models.DispatchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, id)
	if err := d.errs[id]; err != nil {
		return models.DispatchResult{}, err
	}
	return models.DispatchResult{Attempted: 1, Succeeded: 1}, nil
}

func TestScheduler_runOnce_StartsDue(t *testing.T) {
	repo := &fakeRepo{ids: []uint64{1, 2, 3}}
	d := &fakeDispatcher{errs: map[uint64]error{2: errors.Wrap(apperrors.ErrConflict, "already sending")}}
	s := New(repo, d)

	s.runOnce(context.Background())
	require.ElementsMatch(t, []uint64{1, 2, 3}, d.sent)

	st := s.Stats()
	require.Equal(t, int64(3), st.TotalDue)
	require.Equal(t, int64(2), st.TotalStarted)
	require.Equal(t, int64(0), st.TotalErrors)
	require.Equal(t, 0, st.Waiting)
	require.NotNil(t, st.LastCycleAt)
}

func TestScheduler_FailedStartBacksOff(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &fakeRepo{ids: []uint64{7}}
	d := &fakeDispatcher{errs: map[uint64]error{7: apperrors.Unprocessable("empty audience")}}
	s := New(repo, d)
	s.now = func() time.Time { return now }

	s.runOnce(context.Background())
	s.runOnce(context.Background())
	require.Len(t, d.sent, 1)
	require.Equal(t, 1, s.Stats().Waiting)
	require.Equal(t, int64(1), s.Stats().TotalErrors)

	now = now.Add(time.Minute)
	delete(d.errs, 7)
	s.runOnce(context.Background())
	require.Len(t, d.sent, 2)
	require.Equal(t, 0, s.Stats().Waiting)
}

func TestScheduler_ListErrorRecorded(t *testing.T) {
	s := New(&fakeRepo{err: errors.New("db down")}, &fakeDispatcher{})
	s.runOnce(context.Background())
	require.Equal(t, "db down", s.Stats().LastError)
}

func TestScheduler_Run_StopsOnContextCancel(t *testing.T) {
	repo := &fakeRepo{}
	s := New(repo, &fakeDispatcher{}).WithSettings(5*time.Millisecond, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := s.Run(ctx)
	require.Error(t, err)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.GreaterOrEqual(t, repo.calls, 1)
}

func TestScheduler_Trigger(t *testing.T) {
	repo := &fakeRepo{}
	s := New(repo, &fakeDispatcher{}).WithSettings(time.Hour, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	s.Trigger()
	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.calls >= 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	require.NotNil(t, s.Stats().LastTriggerAt)
}
