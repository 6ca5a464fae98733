package services_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"

	"github.com/bionicotaku/mergebot/internal/services"
)

// ---- 协作方桩实现 ----

type stubWorkspace struct {
	dir      string
	limit    int64
	mu       sync.Mutex
	copied   []string
	released atomic.Bool
}

func (w *stubWorkspace) Dir() string { return w.dir }

func (w *stubWorkspace) CopyIn(ctx context.Context, name string, r io.Reader, declaredSize int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if w.limit > 0 && declaredSize > w.limit {
		return "", fmt.Errorf("%s: %w", name, services.ErrFileTooLarge)
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	w.mu.Lock()
	w.copied = append(w.copied, name)
	w.mu.Unlock()
	return filepath.Join(w.dir, name), nil
}

func (w *stubWorkspace) Release() error {
	w.released.Store(true)
	return nil
}

type stubAllocator struct {
	ws  *stubWorkspace
	err error
}

func (a *stubAllocator) Allocate(ctx context.Context, userID int64) (services.Workspace, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.ws, nil
}

type stubFetcher struct{}

func (stubFetcher) Open(ctx context.Context, ref services.FileRef) (io.ReadCloser, int64, error) {
	return io.NopCloser(bytes.NewReader([]byte("data"))), ref.Size, nil
}

type stubEngine struct {
	mu      sync.Mutex
	inputs  []string
	err     error
	block   chan struct{} // 非 nil 时 Merge 阻塞直到关闭或取消
	onMerge func()
}

func (e *stubEngine) Merge(ctx context.Context, inputs []string, output string, onProgress func(int)) error {
	e.mu.Lock()
	e.inputs = append([]string(nil), inputs...)
	e.mu.Unlock()
	if e.onMerge != nil {
		e.onMerge()
	}
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.err != nil {
		return e.err
	}
	if onProgress != nil {
		onProgress(50)
		onProgress(100)
	}
	return nil
}

func (e *stubEngine) AttachThumbnail(ctx context.Context, video, thumbnail string) error {
	return nil
}

func (e *stubEngine) mergedInputs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.inputs...)
}

type stubDeliverer struct {
	res services.DeliveryResult
	err error
}

func (d *stubDeliverer) Deliver(ctx context.Context, userID int64, output, thumbnail string) (services.DeliveryResult, error) {
	if err := ctx.Err(); err != nil {
		return services.DeliveryResult{}, err
	}
	return d.res, d.err
}

type stubUsers struct{ banned map[int64]bool }

func (u *stubUsers) IsBanned(ctx context.Context, userID int64) (bool, error) {
	return u.banned[userID], nil
}

type stubThumbs struct{ fileID string }

func (t *stubThumbs) Get(ctx context.Context, userID int64) (string, error) {
	if t.fileID == "" {
		return "", services.ErrThumbnailNotFound
	}
	return t.fileID, nil
}

type recordingSink struct {
	mu     sync.Mutex
	states []services.ProgressState
}

func (s *recordingSink) Publish(ctx context.Context, userID int64, messageID int, st services.ProgressState) error {
	s.mu.Lock()
	s.states = append(s.states, st)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) terminal() (services.ProgressState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		if st.Terminal {
			return st, true
		}
	}
	return services.ProgressState{}, false
}

// ---- 组装 ----

type fixture struct {
	svc    *services.SessionService
	ws     *stubWorkspace
	engine *stubEngine
	sink   *recordingSink
	stop   func()
}

func newFixture(t *testing.T, mutate func(*stubEngine, *stubDeliverer, *stubUsers)) *fixture {
	t.Helper()
	return newFixtureCfg(t, services.SessionConfig{
		MaxFileBytes:  1 << 20,
		MaxTotalBytes: 4 << 20,
	}, mutate)
}

func newFixtureCfg(t *testing.T, cfg services.SessionConfig, mutate func(*stubEngine, *stubDeliverer, *stubUsers)) *fixture {
	t.Helper()
	logger := log.NewStdLogger(io.Discard)

	ws := &stubWorkspace{dir: t.TempDir(), limit: 1 << 20}
	engine := &stubEngine{}
	deliverer := &stubDeliverer{res: services.DeliveryResult{Inline: true, Provider: "telegram", Size: 42}}
	users := &stubUsers{banned: map[int64]bool{}}
	if mutate != nil {
		mutate(engine, deliverer, users)
	}

	sink := &recordingSink{}
	reporter := services.NewProgressReporter(sink, time.Millisecond, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = reporter.Start(ctx) }()

	svc, err := services.NewSessionService(
		cfg,
		&stubAllocator{ws: ws},
		stubFetcher{},
		engine,
		deliverer,
		reporter,
		users,
		&stubThumbs{},
		logger,
	)
	require.NoError(t, err)

	stop := func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
		defer stopCancel()
		_ = reporter.Stop(stopCtx)
		cancel()
	}
	t.Cleanup(stop)
	return &fixture{svc: svc, ws: ws, engine: engine, sink: sink, stop: stop}
}

func submitN(t *testing.T, svc *services.SessionService, userID int64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := svc.SubmitFile(context.Background(), userID, services.FileRef{
			FileID: fmt.Sprintf("file-%d", i),
			Name:   fmt.Sprintf("clip_%d.mp4", i),
			Size:   1024,
		})
		require.NoError(t, err)
	}
}

// ---- 用例 ----

func TestSubmitFile_QueuesInOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	status, err := f.svc.SubmitFile(context.Background(), 7, services.FileRef{Name: "a.mp4", Size: 100, Duration: 10})
	require.NoError(t, err)
	require.Equal(t, 1, status.Count)

	status, err = f.svc.SubmitFile(context.Background(), 7, services.FileRef{Name: "b.mp4", Size: 200, Duration: 5})
	require.NoError(t, err)
	require.Equal(t, 2, status.Count)
	require.Equal(t, int64(300), status.TotalSize)
	require.Equal(t, 15, status.TotalDuration)

	_, state, ok := f.svc.Snapshot(7)
	require.True(t, ok)
	require.Equal(t, services.StateCollecting, state)
}

func TestSubmitFile_RejectsOversizedWithoutTouchingQueue(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	submitN(t, f.svc, 7, 2)

	_, err := f.svc.SubmitFile(context.Background(), 7, services.FileRef{Name: "big.mp4", Size: 2 << 20})
	require.Error(t, err)
	require.Equal(t, services.ReasonFileTooLarge, kerrors.FromError(err).Reason)

	status, _, ok := f.svc.Snapshot(7)
	require.True(t, ok)
	require.Equal(t, 2, status.Count)
}

func TestSubmitFile_BannedUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(_ *stubEngine, _ *stubDeliverer, users *stubUsers) {
		users.banned[13] = true
	})

	_, err := f.svc.SubmitFile(context.Background(), 13, services.FileRef{Name: "a.mp4", Size: 1})
	require.Error(t, err)
	require.Equal(t, services.ReasonUserBanned, kerrors.FromError(err).Reason)
}

func TestTriggerMerge_InsufficientInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	_, err := f.svc.TriggerMerge(context.Background(), 7, 1)
	require.Equal(t, services.ReasonInsufficientInput, kerrors.FromError(err).Reason)

	submitN(t, f.svc, 7, 1)
	_, err = f.svc.TriggerMerge(context.Background(), 7, 1)
	require.Equal(t, services.ReasonInsufficientInput, kerrors.FromError(err).Reason)
}

func TestTriggerMerge_MergesInSubmissionOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	submitN(t, f.svc, 7, 3)
	res, err := f.svc.TriggerMerge(context.Background(), 7, 1)
	require.NoError(t, err)
	require.True(t, res.Inline)

	inputs := f.engine.mergedInputs()
	require.Len(t, inputs, 3)
	require.Contains(t, inputs[0], "000_clip_0.mp4")
	require.Contains(t, inputs[1], "001_clip_1.mp4")
	require.Contains(t, inputs[2], "002_clip_2.mp4")

	require.True(t, f.ws.released.Load(), "workspace must be released after terminal state")

	_, _, ok := f.svc.Snapshot(7)
	require.False(t, ok, "terminal session must leave the registry")
}

func TestTriggerMerge_RejectsConcurrentWork(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	started := make(chan struct{})
	f := newFixture(t, func(engine *stubEngine, _ *stubDeliverer, _ *stubUsers) {
		engine.block = block
		engine.onMerge = func() { close(started) }
	})

	submitN(t, f.svc, 7, 2)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.TriggerMerge(context.Background(), 7, 1)
		done <- err
	}()
	<-started

	_, err := f.svc.SubmitFile(context.Background(), 7, services.FileRef{Name: "late.mp4", Size: 1})
	require.Equal(t, services.ReasonSessionBusy, kerrors.FromError(err).Reason)

	_, err = f.svc.TriggerMerge(context.Background(), 7, 2)
	require.Equal(t, services.ReasonSessionBusy, kerrors.FromError(err).Reason)

	close(block)
	require.NoError(t, <-done)

	// 终态之后可以立刻开一个新会话
	_, err = f.svc.SubmitFile(context.Background(), 7, services.FileRef{Name: "next.mp4", Size: 1})
	require.NoError(t, err)
}

func TestCancel_DuringMergeReachesCancelled(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	started := make(chan struct{})
	f := newFixture(t, func(engine *stubEngine, _ *stubDeliverer, _ *stubUsers) {
		engine.block = block
		engine.onMerge = func() { close(started) }
	})

	submitN(t, f.svc, 7, 2)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.TriggerMerge(context.Background(), 7, 1)
		done <- err
	}()
	<-started

	found, err := f.svc.Cancel(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, <-done, "cancellation is not an error")
	require.True(t, f.ws.released.Load())

	require.Eventually(t, func() bool {
		st, ok := f.sink.terminal()
		return ok && st.Reason == "" && st.Result == nil
	}, time.Second, 5*time.Millisecond, "cancelled terminal snapshot must be published")
}

func TestCancel_CollectingDropsQueue(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	submitN(t, f.svc, 7, 2)
	found, err := f.svc.Cancel(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, found)

	_, _, ok := f.svc.Snapshot(7)
	require.False(t, ok)
}

func TestTriggerMerge_MergeToolFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(engine *stubEngine, _ *stubDeliverer, _ *stubUsers) {
		engine.err = fmt.Errorf("exit status 1: %w", services.ErrMergeTool)
	})

	submitN(t, f.svc, 7, 2)
	_, err := f.svc.TriggerMerge(context.Background(), 7, 1)
	require.Error(t, err)
	require.Equal(t, services.ReasonMergeTool, kerrors.FromError(err).Reason)
	require.True(t, f.ws.released.Load())

	require.Eventually(t, func() bool {
		st, ok := f.sink.terminal()
		return ok && st.Reason == services.ReasonMergeTool && st.Stage == services.StageMerging
	}, time.Second, 5*time.Millisecond, "terminal snapshot must carry the failing stage")
}

func TestTriggerMerge_MergeStageTimeout(t *testing.T) {
	t.Parallel()
	block := make(chan struct{}) // 永不关闭，只有阶段超时能让 Merge 返回
	f := newFixtureCfg(t, services.SessionConfig{
		MaxFileBytes:  1 << 20,
		MaxTotalBytes: 4 << 20,
		MergeTimeout:  50 * time.Millisecond,
	}, func(engine *stubEngine, _ *stubDeliverer, _ *stubUsers) {
		engine.block = block
	})

	submitN(t, f.svc, 7, 2)
	_, err := f.svc.TriggerMerge(context.Background(), 7, 1)
	require.Error(t, err)
	require.Equal(t, services.ReasonStageTimeout, kerrors.FromError(err).Reason,
		"stage timeout must be classified, not reported as a plain context error")
	require.ErrorIs(t, err, services.ErrStageTimeout)
	require.True(t, f.ws.released.Load(), "workspace must be released after timeout")

	require.Eventually(t, func() bool {
		st, ok := f.sink.terminal()
		return ok && st.Reason == services.ReasonStageTimeout && st.Stage == services.StageMerging
	}, time.Second, 5*time.Millisecond)

	// 超时只终结本次会话，下一个会话立即可用
	_, err = f.svc.SubmitFile(context.Background(), 7, services.FileRef{Name: "next.mp4", Size: 1})
	require.NoError(t, err)
}

func TestTriggerMerge_SkipsOversizedDownloads(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	// 两个正常文件 + 一个在落盘时才发现超限的文件
	submitN(t, f.svc, 7, 2)
	_, err := f.svc.SubmitFile(context.Background(), 7, services.FileRef{Name: "sneaky.mp4", Size: 512 << 10})
	require.NoError(t, err)
	f.ws.limit = 1 << 10 // 下载阶段才生效的工作区配额

	res, err := f.svc.TriggerMerge(context.Background(), 7, 1)
	require.NoError(t, err)
	require.True(t, res.Inline)

	inputs := f.engine.mergedInputs()
	require.Len(t, inputs, 2, "oversized input must be skipped, not abort the queue")
	require.Contains(t, inputs[0], "clip_0.mp4")
	require.Contains(t, inputs[1], "clip_1.mp4")
}

func TestTriggerMerge_FailsWhenSkipsLeaveTooFewInputs(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	submitN(t, f.svc, 7, 1)
	_, err := f.svc.SubmitFile(context.Background(), 7, services.FileRef{Name: "huge.mp4", Size: 512 << 10})
	require.NoError(t, err)
	f.ws.limit = 1 << 10

	_, err = f.svc.TriggerMerge(context.Background(), 7, 1)
	require.Error(t, err)
	require.Equal(t, services.ReasonFileTooLarge, kerrors.FromError(err).Reason)
	require.True(t, f.ws.released.Load())
}
