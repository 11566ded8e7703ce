package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

var _ domain.IdempotencyRepository = (*stubCleanupRepo)(nil)

func TestCleanupWorker_SweepBatches(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{results: []int{2, 2, 1}}
	deleted, err := NewCleanupWorker(repo, WithBatchSize(2)).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, deleted)
	require.Equal(t, 3, repo.calls())
}

func TestCleanupWorker_SweepStopsAtBatchLimit(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{results: []int{2, 2, 2, 2}}
	deleted, err := NewCleanupWorker(repo, WithBatchSize(2), WithMaxBatches(2)).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, deleted)
	require.Equal(t, 2, repo.calls())
}

func TestCleanupWorker_SweepReportsPartialProgressOnError(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{results: []int{3}, errs: []error{nil, errors.New("statement timeout")}}
	deleted, err := NewCleanupWorker(repo, WithBatchSize(3)).Sweep(context.Background())
	require.ErrorContains(t, err, "statement timeout")
	require.Equal(t, 3, deleted)
}

func TestCleanupWorker_SweepUsesClock(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubCleanupRepo{}
	worker := NewCleanupWorker(repo)
	worker.now = func() time.Time { return now }

	_, err := worker.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, now, repo.lastBefore())
}

func TestCleanupWorker_RunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{}
	worker := NewCleanupWorker(repo, WithInterval(5*time.Millisecond), WithBatchSize(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	require.Eventually(t, func() bool { return repo.calls() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestCleanupWorker_SweepAgainstMemoryStore(t *testing.T) {
	t.Parallel()

	repo := memory.NewStore().Repos().Idempotency
	now := time.Now().UTC()
	for _, key := range []string{"a", "b", "c"} {
		_, err := repo.CreateProcessing("place_order:u-1:"+key, "hash", now.Add(-time.Minute))
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing("place_order:u-1:fresh", "hash", now.Add(time.Hour))
	require.NoError(t, err)

	deleted, err := NewCleanupWorker(repo, WithBatchSize(2)).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, deleted)

	_, err = repo.Get("place_order:u-1:fresh")
	require.NoError(t, err, "fresh key must survive cleanup")
}

type stubCleanupRepo struct {
	mu sync.Mutex

	results   []int
	errs      []error
	callCount int
	before    time.Time
}

func (s *stubCleanupRepo) CreateProcessing(string, string, time.Time) (domain.IdempotencyRecord, error) {
	panic("not implemented")
}

func (s *stubCleanupRepo) Get(string) (domain.IdempotencyRecord, error) {
	panic("not implemented")
}

func (s *stubCleanupRepo) MarkDone(string, string) error {
	panic("not implemented")
}

func (s *stubCleanupRepo) MarkFailed(string) error {
	panic("not implemented")
}

func (s *stubCleanupRepo) DeleteExpired(before time.Time, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.before = before
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	if len(s.results) == 0 {
		return 0, nil
	}
	result := s.results[0]
	s.results = s.results[1:]
	return result, nil
}

func (s *stubCleanupRepo) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubCleanupRepo) lastBefore() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.before
}
