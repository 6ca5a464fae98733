// Package services 实现合并会话的业务用例：会话编排、进度上报、
// 结果投递与封面图管理。消息层（controllers）只负责把 Telegram
// 事件翻译成这里的操作。
package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// SessionConfig 汇总编排器需要的尺寸上限与各阶段超时。
type SessionConfig struct {
	MaxFileBytes    int64         // 单文件上限（默认 2 GiB）
	MaxTotalBytes   int64         // 队列总量上限
	DownloadTimeout time.Duration // 单文件下载超时
	MergeTimeout    time.Duration // 外部工具等待超时
	UploadTimeout   time.Duration // 投递阶段超时
}

// MergeSession 是某个用户的一次合并会话。
// 不变式：同一用户最多一个会话处于 {Merging, Uploading}。
type MergeSession struct {
	UserID    int64
	State     SessionState
	Queue     []FileRef // 插入顺序即合并顺序
	StatusMsg int       // 进度编辑的状态消息 ID

	cancel          context.CancelFunc
	cancelRequested atomic.Bool
	stage           Stage // 管线当前所处阶段，终态快照沿用
}

func (m *MergeSession) totalQueuedBytes() int64 {
	var total int64
	for _, f := range m.Queue {
		total += f.Size
	}
	return total
}

// SessionService 是顶层会话编排器：维护 userID → MergeSession 注册表，
// 执行 下载 → 合并 → 封面 → 投递 管线。注册表仅存内存，进程重启即丢失
// （崩溃恢复是明确的非目标）。
type SessionService struct {
	mu       sync.Mutex
	sessions map[int64]*MergeSession

	cfg      SessionConfig
	ws       WorkspaceAllocator
	fetch    FileFetcher
	engine   MergeEngine
	delivery Deliverer
	reporter *ProgressReporter
	users    UserStore
	thumbs   ThumbnailStore
	log      *log.Helper
	now      func() time.Time
}

// NewSessionService 构造会话编排器。所有协作方都是必填项。
func NewSessionService(
	cfg SessionConfig,
	ws WorkspaceAllocator,
	fetch FileFetcher,
	engine MergeEngine,
	delivery Deliverer,
	reporter *ProgressReporter,
	users UserStore,
	thumbs ThumbnailStore,
	logger log.Logger,
) (*SessionService, error) {
	switch {
	case ws == nil:
		return nil, errors.New("session service: workspace allocator is required")
	case fetch == nil:
		return nil, errors.New("session service: file fetcher is required")
	case engine == nil:
		return nil, errors.New("session service: merge engine is required")
	case delivery == nil:
		return nil, errors.New("session service: deliverer is required")
	case reporter == nil:
		return nil, errors.New("session service: progress reporter is required")
	case users == nil:
		return nil, errors.New("session service: user store is required")
	case thumbs == nil:
		return nil, errors.New("session service: thumbnail store is required")
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 2 << 30
	}
	if cfg.MaxTotalBytes <= 0 {
		cfg.MaxTotalBytes = 4 * cfg.MaxFileBytes
	}
	return &SessionService{
		sessions: make(map[int64]*MergeSession),
		cfg:      cfg,
		ws:       ws,
		fetch:    fetch,
		engine:   engine,
		delivery: delivery,
		reporter: reporter,
		users:    users,
		thumbs:   thumbs,
		log:      log.NewHelper(logger),
		now:      time.Now,
	}, nil
}

// SubmitFile 把一个文件引用追加进用户队列。
// Idle→Collecting 在首个文件时发生；合并进行中返回 SESSION_BUSY；
// 超过单文件或队列总量上限返回 FILE_TOO_LARGE，且不影响已排队文件。
func (s *SessionService) SubmitFile(ctx context.Context, userID int64, ref FileRef) (QueueStatus, error) {
	if banned, err := s.users.IsBanned(ctx, userID); err != nil {
		return QueueStatus{}, fmt.Errorf("ban check: %w", err)
	} else if banned {
		return QueueStatus{}, userBannedError(userID)
	}
	if ref.Size > s.cfg.MaxFileBytes {
		return QueueStatus{}, fileTooLargeError(ref.Name, ref.Size, s.cfg.MaxFileBytes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		sess = &MergeSession{UserID: userID, State: StateIdle}
		s.sessions[userID] = sess
	}
	if sess.State == StateMerging || sess.State == StateUploading {
		return QueueStatus{}, sessionBusyError(userID)
	}
	if sess.totalQueuedBytes()+ref.Size > s.cfg.MaxTotalBytes {
		return QueueStatus{}, fileTooLargeError(ref.Name, sess.totalQueuedBytes()+ref.Size, s.cfg.MaxTotalBytes)
	}

	sess.Queue = append(sess.Queue, ref)
	if sess.State == StateIdle {
		sess.State = StateCollecting
	}

	status := QueueStatus{Count: len(sess.Queue), TotalSize: sess.totalQueuedBytes()}
	for _, f := range sess.Queue {
		status.TotalDuration += f.Duration
	}
	s.log.WithContext(ctx).Infof("file queued: user=%d name=%s size=%d queued=%d", userID, ref.Name, ref.Size, status.Count)
	return status, nil
}

// TriggerMerge 校验后同步执行整条管线直到终态，调用方（消息层）
// 应在独立 goroutine 中调用。statusMsgID 是进度编辑的目标消息。
// 返回的 error 已分类；取消与成功都返回 nil error。
func (s *SessionService) TriggerMerge(ctx context.Context, userID int64, statusMsgID int) (DeliveryResult, error) {
	if banned, err := s.users.IsBanned(ctx, userID); err != nil {
		return DeliveryResult{}, fmt.Errorf("ban check: %w", err)
	} else if banned {
		return DeliveryResult{}, userBannedError(userID)
	}

	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if !ok || sess.State == StateIdle {
		s.mu.Unlock()
		return DeliveryResult{}, insufficientInputError(0)
	}
	if sess.State == StateMerging || sess.State == StateUploading {
		s.mu.Unlock()
		return DeliveryResult{}, sessionBusyError(userID)
	}
	if len(sess.Queue) < 2 {
		queued := len(sess.Queue)
		s.mu.Unlock()
		return DeliveryResult{}, insufficientInputError(queued)
	}

	// 快照队列并立刻进入 Merging，后续提交会被 SESSION_BUSY 拒绝，
	// 终态移除注册表项后才会开启新会话。
	files := make([]FileRef, len(sess.Queue))
	copy(files, sess.Queue)
	sess.State = StateMerging
	sess.StatusMsg = statusMsgID

	pipeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	res, err := s.runPipeline(pipeCtx, sess, files)
	return s.finish(pipeCtx, sess, res, err)
}

// Cancel 设置取消标记。Idle/Collecting 直接进入 Cancelled 并移除会话；
// Merging/Uploading 取消管线上下文，由各阶段在下一个检查点退出。
// 返回是否存在可取消的会话。
func (s *SessionService) Cancel(ctx context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return false, nil
	}
	switch sess.State {
	case StateIdle, StateCollecting:
		sess.State = StateCancelled
		delete(s.sessions, userID)
		s.log.WithContext(ctx).Infof("session cancelled before merge: user=%d queued=%d", userID, len(sess.Queue))
		return true, nil
	case StateMerging, StateUploading:
		sess.cancelRequested.Store(true)
		if sess.cancel != nil {
			sess.cancel()
		}
		s.log.WithContext(ctx).Infof("cancel requested mid-pipeline: user=%d state=%s", userID, sess.State)
		return true, nil
	default:
		return false, nil
	}
}

// ClearQueue 清空收集中的队列（clear_videos 按钮）。合并进行中返回 SESSION_BUSY。
func (s *SessionService) ClearQueue(ctx context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return 0, nil
	}
	if sess.State == StateMerging || sess.State == StateUploading {
		return 0, sessionBusyError(userID)
	}
	cleared := len(sess.Queue)
	delete(s.sessions, userID)
	return cleared, nil
}

// Snapshot 返回当前会话状态与队列概览，供消息层回显。
func (s *SessionService) Snapshot(userID int64) (QueueStatus, SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return QueueStatus{}, StateIdle, false
	}
	status := QueueStatus{Count: len(sess.Queue), TotalSize: sess.totalQueuedBytes()}
	for _, f := range sess.Queue {
		status.TotalDuration += f.Duration
	}
	return status, sess.State, true
}

// runPipeline 顺序执行 下载 → 合并 → 封面 → 投递。
// 工作区在任何返回路径上都会释放。
func (s *SessionService) runPipeline(ctx context.Context, sess *MergeSession, files []FileRef) (DeliveryResult, error) {
	started := s.now()

	s.setStage(sess, StageDownloading)
	ws, err := s.ws.Allocate(ctx, sess.UserID)
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("allocate workspace: %w", err)
	}
	defer func() {
		if rerr := ws.Release(); rerr != nil {
			s.log.Warnf("workspace release failed: user=%d err=%v", sess.UserID, rerr)
		}
	}()

	inputs, err := s.downloadAll(ctx, sess, ws, files, started)
	if err != nil {
		return DeliveryResult{}, err
	}

	output := filepath.Join(ws.Dir(), fmt.Sprintf("merged_%d.mkv", sess.UserID))
	if err := s.mergeStage(ctx, sess, inputs, output, started); err != nil {
		return DeliveryResult{}, err
	}

	thumbnail := s.materializeThumbnail(ctx, sess, ws, output)

	s.setState(sess, StateUploading)
	s.setStage(sess, StageUploading)
	upCtx, cancelUp := s.stageContext(ctx, s.cfg.UploadTimeout)
	defer cancelUp()
	s.publish(ctx, sess, ProgressState{Stage: StageUploading, Percent: 0, Elapsed: s.now().Sub(started)})

	res, err := s.delivery.Deliver(upCtx, sess.UserID, output, thumbnail)
	if err != nil {
		return DeliveryResult{}, stageError(ctx, upCtx, "deliver", err)
	}
	return res, nil
}

// downloadAll 按提交顺序把队列落盘。每个文件边界是一个取消检查点。
// 超限文件被跳过而非中断整个队列；跳过后不足 2 个输入则失败。
func (s *SessionService) downloadAll(ctx context.Context, sess *MergeSession, ws Workspace, files []FileRef, started time.Time) ([]string, error) {
	inputs := make([]string, 0, len(files))
	var skipped int
	for i, ref := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.publish(ctx, sess, ProgressState{
			Stage:   StageDownloading,
			Percent: i * 100 / len(files),
			Elapsed: s.now().Sub(started),
		})

		path, err := s.downloadOne(ctx, ws, i, ref)
		if err != nil {
			if errors.Is(err, ErrFileTooLarge) {
				skipped++
				s.log.Warnf("input skipped, size limit: user=%d name=%s", sess.UserID, ref.Name)
				continue
			}
			return nil, stageError(ctx, ctx, "download", err)
		}
		inputs = append(inputs, path)
	}
	if len(inputs) < 2 {
		return nil, fmt.Errorf("only %d of %d inputs materialized (%d skipped): %w",
			len(inputs), len(files), skipped, ErrFileTooLarge)
	}
	s.publish(ctx, sess, ProgressState{Stage: StageDownloading, Percent: 100, Elapsed: s.now().Sub(started), Final: true})
	return inputs, nil
}

func (s *SessionService) downloadOne(ctx context.Context, ws Workspace, index int, ref FileRef) (string, error) {
	dlCtx, cancel := s.stageContext(ctx, s.cfg.DownloadTimeout)
	defer cancel()

	rc, declared, err := s.fetch.Open(dlCtx, ref)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", ref.Name, err)
	}
	defer rc.Close()

	if declared <= 0 {
		declared = ref.Size
	}
	name := fmt.Sprintf("%03d_%s", index, safeBaseName(ref.Name))
	path, err := ws.CopyIn(dlCtx, name, rc, declared)
	if err != nil {
		return "", stageError(ctx, dlCtx, "download", err)
	}
	return path, nil
}

func (s *SessionService) mergeStage(ctx context.Context, sess *MergeSession, inputs []string, output string, started time.Time) error {
	s.setStage(sess, StageMerging)
	mergeCtx, cancel := s.stageContext(ctx, s.cfg.MergeTimeout)
	defer cancel()

	stageStart := s.now()
	lastPercent := -1
	onProgress := func(percent int) {
		if percent <= lastPercent {
			return // 阶段内单调不减
		}
		lastPercent = percent
		elapsed := s.now().Sub(stageStart)
		s.publish(ctx, sess, ProgressState{
			Stage:     StageMerging,
			Percent:   percent,
			Elapsed:   s.now().Sub(started),
			Remaining: estimateRemaining(elapsed, percent),
		})
	}

	if err := s.engine.Merge(mergeCtx, inputs, output, onProgress); err != nil {
		return stageError(ctx, mergeCtx, "merge", err)
	}
	s.publish(ctx, sess, ProgressState{Stage: StageMerging, Percent: 100, Elapsed: s.now().Sub(started), Final: true})
	return nil
}

// materializeThumbnail 取用户封面图并混流进产物。任何一步失败都只记录
// 日志并继续投递（优雅降级，不算管线错误）。返回落盘路径供直传附带。
func (s *SessionService) materializeThumbnail(ctx context.Context, sess *MergeSession, ws Workspace, output string) string {
	fileID, err := s.thumbs.Get(ctx, sess.UserID)
	if err != nil {
		if !errors.Is(err, ErrThumbnailNotFound) {
			s.log.Warnf("thumbnail lookup failed: user=%d err=%v", sess.UserID, err)
		}
		return ""
	}

	rc, declared, err := s.fetch.Open(ctx, FileRef{FileID: fileID, Name: "thumbnail.jpg"})
	if err != nil {
		s.log.Warnf("thumbnail fetch failed: user=%d err=%v", sess.UserID, err)
		return ""
	}
	defer rc.Close()

	path, err := ws.CopyIn(ctx, "thumbnail.jpg", rc, declared)
	if err != nil {
		s.log.Warnf("thumbnail materialize failed: user=%d err=%v", sess.UserID, err)
		return ""
	}
	if err := s.engine.AttachThumbnail(ctx, output, path); err != nil {
		s.log.Warnf("thumbnail attach failed, delivering without it: user=%d err=%v", sess.UserID, err)
	}
	return path
}

// finish 完成终态迁移：Cancelled / Failed / Done，移除注册表项，
// 并无条件发布终态进度（绕过限流）。
func (s *SessionService) finish(ctx context.Context, sess *MergeSession, res DeliveryResult, err error) (DeliveryResult, error) {
	s.mu.Lock()
	cancelled := sess.cancelRequested.Load() || errors.Is(err, context.Canceled)
	switch {
	case cancelled:
		sess.State = StateCancelled
	case err != nil:
		sess.State = StateFailed
	default:
		sess.State = StateDone
	}
	state := sess.State
	stage := sess.stage
	delete(s.sessions, sess.UserID)
	s.mu.Unlock()

	switch state {
	case StateCancelled:
		s.log.Infof("session cancelled: user=%d stage=%s", sess.UserID, stage)
		s.publishFinal(sess, ProgressState{Stage: stage, Percent: 0, Final: true, Message: "cancelled"})
		return DeliveryResult{}, nil
	case StateFailed:
		classified := classifyPipelineError(err)
		s.log.Errorf("session failed: user=%d stage=%s err=%v", sess.UserID, stage, err)
		s.publishFinal(sess, ProgressState{
			Stage:   stage,
			Final:   true,
			Message: classified.Error(),
			Reason:  reasonOf(classified),
		})
		return DeliveryResult{}, classified
	default:
		s.log.Infof("session done: user=%d inline=%v provider=%s size=%d",
			sess.UserID, res.Inline, res.Provider, res.Size)
		s.publishFinal(sess, ProgressState{
			Stage:   stage,
			Percent: 100,
			Final:   true,
			Message: "done",
			Result:  &res,
		})
		return res, nil
	}
}

func (s *SessionService) setState(sess *MergeSession, state SessionState) {
	s.mu.Lock()
	sess.State = state
	s.mu.Unlock()
}

func (s *SessionService) setStage(sess *MergeSession, stage Stage) {
	s.mu.Lock()
	sess.stage = stage
	s.mu.Unlock()
}

// stageContext 派生带独立超时的阶段上下文；超时为 0 表示不限时。
func (s *SessionService) stageContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

func (s *SessionService) publish(ctx context.Context, sess *MergeSession, st ProgressState) {
	s.reporter.Publish(sess.UserID, sess.StatusMsg, st)
}

func (s *SessionService) publishFinal(sess *MergeSession, st ProgressState) {
	st.Final = true
	st.Terminal = true
	s.reporter.Publish(sess.UserID, sess.StatusMsg, st)
}

// stageError 区分三种失败：用户取消（父上下文）、阶段超时、普通错误。
func stageError(parent, stage context.Context, op string, err error) error {
	switch {
	case parent.Err() != nil:
		return parent.Err()
	case stage.Err() != nil && errors.Is(stage.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, ErrStageTimeout)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, ErrStageTimeout)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func estimateRemaining(elapsed time.Duration, percent int) time.Duration {
	if percent <= 0 || percent >= 100 {
		return 0
	}
	return elapsed * time.Duration(100-percent) / time.Duration(percent)
}

// safeBaseName 去掉路径分隔符，避免把工作区外的路径写进 CopyIn。
func safeBaseName(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "input.mp4"
	}
	return base
}
