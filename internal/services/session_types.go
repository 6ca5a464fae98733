package services

import (
	"context"
	"io"
	"time"
)

// SessionState 表示一个合并会话的生命周期状态。
type SessionState int

const (
	// StateIdle 会话刚创建、尚未收到任何文件。
	StateIdle SessionState = iota
	// StateCollecting 已收到至少一个文件，等待触发合并。
	StateCollecting
	// StateMerging 管线正在下载/合并。
	StateMerging
	// StateUploading 合并完成，正在投递结果。
	StateUploading
	// StateDone 终态：成功投递。
	StateDone
	// StateFailed 终态：管线失败。
	StateFailed
	// StateCancelled 终态：用户取消。
	StateCancelled
)

// String 实现 fmt.Stringer，用于日志与用户提示。
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollecting:
		return "collecting"
	case StateMerging:
		return "merging"
	case StateUploading:
		return "uploading"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal 返回该状态是否为终态。终态会话的队列与工作区都已释放。
func (s SessionState) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// FileRef 描述一个排队待合并的视频来源，只携带元信息；
// 落盘路径由管线下载阶段产生，随工作区一起失效。
type FileRef struct {
	MessageID int    // 来源消息 ID
	FileID    string // Telegram file_id（与 URL 二选一）
	URL       string // 直链下载地址（与 FileID 二选一）
	Name      string // 原始文件名（含扩展名，作为格式提示）
	Size      int64  // 声明大小（字节），落盘时校验
	Duration  int    // 声明时长（秒），可为 0
}

// QueueStatus 是 SubmitFile 成功后的队列快照，供消息层回显。
type QueueStatus struct {
	Count         int
	TotalSize     int64
	TotalDuration int
}

// DeliveryResult 描述一次成功投递的去向。
type DeliveryResult struct {
	Inline   bool   // true 表示直接作为附件发送
	Link     string // 云端链接（Inline 为 false 时有效）
	Provider string // 提供方名称（inline 投递时为 "telegram"）
	Size     int64  // 输出文件大小
}

// Stage 标识管线阶段，进度上报按阶段归一化。
type Stage int

const (
	StageDownloading Stage = iota
	StageMerging
	StageUploading
)

func (s Stage) String() string {
	switch s {
	case StageDownloading:
		return "downloading"
	case StageMerging:
		return "merging"
	case StageUploading:
		return "uploading"
	default:
		return "unknown"
	}
}

// ProgressState 是一次进度快照，发布后不再修改。
// Percent 在同一 Stage 内单调不减。
type ProgressState struct {
	Stage     Stage
	Percent   int // 0–100
	Elapsed   time.Duration
	Remaining time.Duration   // 估算值，Percent 为 0 时无意义
	Final     bool            // 阶段完成或终态，绕过限流必须发布
	Terminal  bool            // 会话终态（Done/Failed/Cancelled），仅 finish 设置
	Message   string          // 终态附加说明（日志用途）
	Reason    string          // 终态失败原因码，成功与取消时为空
	Result    *DeliveryResult // 终态成功的投递结果，其余为 nil
}

// Workspace 是会话独占的磁盘工作区。由 WorkspaceAllocator 分配，
// 会话终态时必须 Release。
type Workspace interface {
	// Dir 返回工作区根目录。
	Dir() string
	// CopyIn 把 r 的内容流式写入工作区内名为 name 的文件，
	// 写入过程中执行大小上限与取消检查，返回落盘绝对路径。
	CopyIn(ctx context.Context, name string, r io.Reader, declaredSize int64) (string, error)
	// Release 递归删除工作区，可重复调用。
	Release() error
}

// WorkspaceAllocator 分配按用户隔离的工作区。
type WorkspaceAllocator interface {
	Allocate(ctx context.Context, userID int64) (Workspace, error)
}

// FileFetcher 打开一个 FileRef 的字节流（Telegram 文件或直链）。
type FileFetcher interface {
	// Open 返回内容流与声明长度（未知为 -1）。调用方负责 Close。
	Open(ctx context.Context, ref FileRef) (io.ReadCloser, int64, error)
}

// MergeEngine 封装外部拼接工具。
type MergeEngine interface {
	// Merge 按 inputs 顺序做流拷贝拼接，进度经 onProgress 回调（0–100）。
	// 输入互不兼容时返回 ErrIncompatibleFormats；工具失败返回 ErrMergeTool。
	Merge(ctx context.Context, inputs []string, output string, onProgress func(percent int)) error
	// AttachThumbnail 把封面图以 attached_pic 方式混流进视频。
	AttachThumbnail(ctx context.Context, video, thumbnail string) error
}

// UserStore 是会话入口的封禁检查契约。
type UserStore interface {
	IsBanned(ctx context.Context, userID int64) (bool, error)
}

// ThumbnailStore 按用户维护封面图，与会话生命周期无关。
type ThumbnailStore interface {
	// Get 返回用户封面图的 Telegram file_id；未设置时返回 ErrThumbnailNotFound。
	Get(ctx context.Context, userID int64) (string, error)
}

// Deliverer 把合并产物送达用户（直传或云端链接）。
type Deliverer interface {
	Deliver(ctx context.Context, userID int64, output, thumbnail string) (DeliveryResult, error)
}

// ProgressSink 是进度快照的下游（消息层状态消息编辑器）。
type ProgressSink interface {
	Publish(ctx context.Context, userID int64, messageID int, st ProgressState) error
}
