package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/retry"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

func TestExecutor_RetriesVersionConflictAndDispatchesOnce(t *testing.T) {
	store := memory.NewStore()
	exec := NewExecutor(store, retry.NewRunner(retry.Config{MaxAttempts: 3}, nil),
		NewDispatcher(NewNotificationProjector(store, nil), nil), nil)

	attempts := 0
	err := exec.Do(context.Background(), "test", func(repos domain.Repositories, rec *Recorder) error {
		attempts++
		if err := rec.Notify(repos.Outbox, domain.NotificationDraft{RecipientID: "u-2", SenderID: "u-1", Type: domain.NotificationMessage, Title: "hi"}); err != nil {
			return err
		}
		if attempts < 2 {
			return domain.ErrVersionConflict
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)

	items, err := store.Repos().Notifications.List("u-2", false, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)

	stats, err := store.Repos().Outbox.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingCount)
}

func TestExecutor_ErrorSkipsDispatch(t *testing.T) {
	store := memory.NewStore()
	projection := &failingProjection{}
	exec := NewExecutor(store, nil, NewDispatcher(projection, nil), nil)

	boom := errors.New("boom")
	err := exec.Do(context.Background(), "test", func(repos domain.Repositories, rec *Recorder) error {
		if err := rec.Notify(repos.Outbox, domain.NotificationDraft{RecipientID: "u-2", Type: domain.NotificationMessage}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Zero(t, projection.calls)

	stats, err := store.Repos().Outbox.Stats()
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}
