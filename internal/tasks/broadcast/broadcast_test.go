package broadcast_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"

	"github.com/bionicotaku/mergebot/internal/services"
	"github.com/bionicotaku/mergebot/internal/tasks/broadcast"
)

type fakeUserRepo struct {
	ids []int64
}

func (f *fakeUserRepo) Upsert(ctx context.Context, userID int64, username string) error { return nil }
func (f *fakeUserRepo) IsBanned(ctx context.Context, userID int64) (bool, error)        { return false, nil }
func (f *fakeUserRepo) SetBanned(ctx context.Context, userID int64, banned bool) error  { return nil }
func (f *fakeUserRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(f.ids)), nil
}
func (f *fakeUserRepo) ListActiveIDs(ctx context.Context) ([]int64, error) {
	return append([]int64(nil), f.ids...), nil
}

type fakeCopier struct {
	mu     sync.Mutex
	sent   map[int64]int
	failOn map[int64]bool
}

func (f *fakeCopier) CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[toChatID] {
		return errors.New("blocked by user")
	}
	if f.sent == nil {
		f.sent = map[int64]int{}
	}
	f.sent[toChatID]++
	return nil
}

func newBroadcaster(t *testing.T, copier broadcast.MessageCopier, ids []int64) *broadcast.Broadcaster {
	t.Helper()
	logger := log.NewStdLogger(io.Discard)
	users, err := services.NewUserService(&fakeUserRepo{ids: ids}, logger)
	require.NoError(t, err)
	b, err := broadcast.NewBroadcaster(broadcast.Config{Concurrency: 4}, copier, users, logger)
	require.NoError(t, err)
	return b
}

func TestBroadcast_DeliversToAllActiveUsers(t *testing.T) {
	t.Parallel()
	copier := &fakeCopier{}
	b := newBroadcaster(t, copier, []int64{1, 2, 3, 4, 5})

	report, err := b.Run(context.Background(), 99, 1234)
	require.NoError(t, err)
	require.Equal(t, 5, report.Total)
	require.Equal(t, int64(5), report.Sent)
	require.Zero(t, report.Failed)
	for _, id := range []int64{1, 2, 3, 4, 5} {
		require.Equal(t, 1, copier.sent[id])
	}
}

func TestBroadcast_FailuresAreCountedNotFatal(t *testing.T) {
	t.Parallel()
	copier := &fakeCopier{failOn: map[int64]bool{2: true, 4: true}}
	b := newBroadcaster(t, copier, []int64{1, 2, 3, 4})

	report, err := b.Run(context.Background(), 99, 1234)
	require.NoError(t, err)
	require.Equal(t, int64(2), report.Sent)
	require.Equal(t, int64(2), report.Failed)
}

func TestBroadcast_EmptyAudience(t *testing.T) {
	t.Parallel()
	b := newBroadcaster(t, &fakeCopier{}, nil)

	report, err := b.Run(context.Background(), 99, 1234)
	require.NoError(t, err)
	require.Zero(t, report.Total)
}
