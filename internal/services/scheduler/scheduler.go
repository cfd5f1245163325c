// Package scheduler starts dispatch runs for scheduled campaigns once their
// time has come.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/CampaignBox/internal/apperrors"
	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	ListDueCampaigns(ctx context.Context, now time.Time, limit int) ([]uint64, error)
}

type Dispatcher interface {
	Send(ctx context.Context, campaignID uint64, listIDs []uint64) (models.DispatchResult, error)
}

type Scheduler struct {
	repo       Repository
	dispatcher Dispatcher
	backoff    *Backoff

	pollInterval time.Duration
	batchSize    int
	concurrency  int

	now func() time.Time

	// retry holds campaigns whose last start failed, keyed by id.
	retryMu sync.Mutex
	retry   map[uint64]retryState

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalDue            atomic.Int64
	totalStarted        atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

type retryState struct {
	fails int
	next  time.Time
}

func New(repo Repository, dispatcher Dispatcher) *Scheduler {
	return &Scheduler{
		repo:              repo,
		dispatcher:        dispatcher,
		backoff:           NewBackoff(DefaultBackoffConfig()),
		pollInterval:      10 * time.Second,
		batchSize:         20,
		concurrency:       2,
		now:               func() time.Time { return time.Now().UTC() },
		retry:             map[uint64]retryState{},
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (s *Scheduler) WithSettings(pollInterval time.Duration, batchSize, concurrency int) *Scheduler {
	if pollInterval > 0 {
		s.pollInterval = pollInterval
	}
	if batchSize > 0 {
		s.batchSize = batchSize
	}
	if concurrency > 0 {
		s.concurrency = concurrency
	}
	return s
}

func (s *Scheduler) WithBackoff(cfg BackoffConfig) *Scheduler {
	s.backoff = NewBackoff(cfg)
	return s
}

// Trigger forces an immediate cycle (best-effort, non-blocking).
func (s *Scheduler) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastCycleAt   *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalDue      int64      `json:"totalDue"`
	TotalStarted  int64      `json:"totalStarted"`
	TotalErrors   int64      `json:"totalErrors"`
	InFlight      int64      `json:"inFlight"`
	Waiting       int        `json:"waitingRetry"`
	LastError     string     `json:"lastError,omitempty"`
}

func (s *Scheduler) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalDue:     s.totalDue.Load(),
		TotalStarted: s.totalStarted.Load(),
		TotalErrors:  s.totalErrors.Load(),
		InFlight:     s.inFlight.Load(),
	}
	if n := s.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.retryMu.Lock()
	st.Waiting = len(s.retry)
	s.retryMu.Unlock()
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	now := s.now()
	s.lastCycleUnixNano.Store(now.UnixNano())

	ids, err := s.repo.ListDueCampaigns(ctx, now, s.batchSize)
	if err != nil {
		slog.Error("list due campaigns", "error", err.Error())
		s.setLastError(err)
		return
	}
	s.totalDue.Add(int64(len(ids)))

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, id := range ids {
		if !s.ready(id, now) {
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		s.inFlight.Add(1)
		go func() {
			defer func() {
				s.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			s.startOne(ctx, id)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) startOne(ctx context.Context, id uint64) {
	res, err := s.dispatcher.Send(ctx, id, nil)
	if err == nil {
		s.totalStarted.Add(1)
		s.clearRetry(id)
		slog.Info("scheduled campaign dispatched", "campaign_id", id, "attempted", res.Attempted, "failed", res.Failed)
		return
	}
	// Another worker won the start, nothing to retry.
	if errors.Is(err, apperrors.ErrConflict) || errors.Is(err, apperrors.ErrNotFound) {
		s.clearRetry(id)
		slog.Info("scheduled campaign skipped", "campaign_id", id, "reason", err.Error())
		return
	}
	s.totalErrors.Add(1)
	s.setLastError(err)
	delay := s.markFailed(id)
	slog.Error("scheduled dispatch failed", "campaign_id", id, "retry_in", delay.String(), "error", err.Error())
}

func (s *Scheduler) ready(id uint64, now time.Time) bool {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	st, ok := s.retry[id]
	return !ok || !now.Before(st.next)
}

func (s *Scheduler) markFailed(id uint64) time.Duration {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	st := s.retry[id]
	st.fails++
	d := s.backoff.Delay(st.fails)
	st.next = s.now().Add(d)
	s.retry[id] = st
	return d
}

func (s *Scheduler) clearRetry(id uint64) {
	s.retryMu.Lock()
	delete(s.retry, id)
	s.retryMu.Unlock()
}

func (s *Scheduler) setLastError(err error) {
	s.lastErrorMu.Lock()
	s.lastError = err.Error()
	s.lastErrorMu.Unlock()
}
