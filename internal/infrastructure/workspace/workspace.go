// Package workspace 管理按用户隔离的磁盘工作区：分配、落盘与回收。
// 工作区由持有它的会话独占，终态时必须释放。
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/bionicotaku/mergebot/internal/services"
)

// Config 是工作区管理器的尺寸与路径配置。
type Config struct {
	DataDir       string // 根目录，工作区建在 <DataDir>/sessions/ 下
	MaxFileBytes  int64  // 单文件上限
	MaxTotalBytes int64  // 工作区总量上限
	MinFreeBytes  int64  // 分配前要求的磁盘余量
}

// Manager 分配与回收工作区，实现 services.WorkspaceAllocator。
type Manager struct {
	cfg Config
	log *log.Helper

	// statfs 可在测试中替换
	statfs func(path string) (free int64, err error)
}

// NewManager 创建管理器并确保 sessions 根目录存在。
func NewManager(cfg Config, logger log.Logger) (*Manager, error) {
	if cfg.DataDir == "" {
		return nil, errors.New("workspace: data dir is required")
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 2 << 30
	}
	if cfg.MaxTotalBytes <= 0 {
		cfg.MaxTotalBytes = 4 * cfg.MaxFileBytes
	}
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "sessions"), 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create sessions dir: %w", err)
	}
	return &Manager{cfg: cfg, log: log.NewHelper(logger), statfs: statfsFree}, nil
}

// Allocate 创建一个新的隔离目录。磁盘余量不足时返回 ErrResourceExhausted。
func (m *Manager) Allocate(ctx context.Context, userID int64) (services.Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.cfg.MinFreeBytes > 0 {
		free, err := m.statfs(m.cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("workspace: statfs: %w", err)
		}
		if free < m.cfg.MinFreeBytes {
			return nil, fmt.Errorf("workspace: %d bytes free, need %d: %w",
				free, m.cfg.MinFreeBytes, services.ErrResourceExhausted)
		}
	}

	dir := filepath.Join(m.cfg.DataDir, "sessions", fmt.Sprintf("%d-%s", userID, uuid.NewString()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: mkdir: %w", err)
	}
	m.log.Infof("workspace allocated: user=%d dir=%s", userID, dir)
	return &Workspace{dir: dir, maxFile: m.cfg.MaxFileBytes, maxTotal: m.cfg.MaxTotalBytes}, nil
}

// Workspace 是一个已分配的会话目录，实现 services.Workspace。
type Workspace struct {
	dir      string
	maxFile  int64
	maxTotal int64

	mu   sync.Mutex
	used int64
}

// Dir 返回工作区根目录。
func (w *Workspace) Dir() string { return w.dir }

// CopyIn 把 r 流式写入工作区。declaredSize 已知且超限时在写前拒绝；
// 未知（<=0）时边写边检。每写入一块检查一次取消与上限，这是下载阶段
// 的取消检查点粒度。部分写入的文件在失败时删除。
func (w *Workspace) CopyIn(ctx context.Context, name string, r io.Reader, declaredSize int64) (string, error) {
	if declaredSize > w.maxFile {
		return "", fmt.Errorf("workspace: %s declared %d bytes, per-file limit %d: %w",
			name, declaredSize, w.maxFile, services.ErrFileTooLarge)
	}

	path := filepath.Join(w.dir, filepath.Base(name))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("workspace: create %s: %w", name, err)
	}

	var written int64
	// 失败时删掉半截文件并把已记账的字节退还，保证一个超限文件
	// 不影响其余排队文件的额度。
	abort := func() {
		f.Close()
		os.Remove(path)
		w.refund(written)
	}

	buf := make([]byte, 1<<20)
	for {
		if err := ctx.Err(); err != nil {
			abort()
			return "", err
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			if err := w.charge(int64(n), written); err != nil {
				abort()
				return "", fmt.Errorf("workspace: %s: %w", name, err)
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				written += int64(n)
				abort()
				return "", fmt.Errorf("workspace: write %s: %w", name, werr)
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			abort()
			return "", fmt.Errorf("workspace: read %s: %w", name, rerr)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		w.refund(written)
		return "", fmt.Errorf("workspace: close %s: %w", name, err)
	}
	return path, nil
}

func (w *Workspace) refund(n int64) {
	w.mu.Lock()
	w.used -= n
	w.mu.Unlock()
}

// charge 记账并检查单文件与总量上限。超限时回滚本次记账。
func (w *Workspace) charge(n, fileWritten int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if fileWritten+n > w.maxFile {
		return fmt.Errorf("per-file limit %d exceeded: %w", w.maxFile, services.ErrFileTooLarge)
	}
	if w.used+n > w.maxTotal {
		return fmt.Errorf("workspace total limit %d exceeded: %w", w.maxTotal, services.ErrFileTooLarge)
	}
	w.used += n
	return nil
}

// Release 递归删除工作区。重复调用是安全的。
func (w *Workspace) Release() error {
	return os.RemoveAll(w.dir)
}

func statfsFree(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
