package services

import (
	"context"
	"errors"
	"fmt"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// ThumbnailRepo 是封面图持久化契约（Postgres 实现见 repositories）。
type ThumbnailRepo interface {
	Set(ctx context.Context, userID int64, fileID string) error
	Get(ctx context.Context, userID int64) (string, error)
	Delete(ctx context.Context, userID int64) (bool, error)
}

// ThumbnailService 管理按用户存储的封面图。封面图与会话生命周期无关：
// 显式命令设置/删除，跨会话存活。
type ThumbnailService struct {
	repo ThumbnailRepo
	log  *log.Helper
}

// NewThumbnailService 构造封面图服务。
func NewThumbnailService(repo ThumbnailRepo, logger log.Logger) (*ThumbnailService, error) {
	if repo == nil {
		return nil, errors.New("thumbnail service: repository is required")
	}
	return &ThumbnailService{repo: repo, log: log.NewHelper(logger)}, nil
}

// Set 记录用户封面图的 file_id（原子按键覆盖）。
func (t *ThumbnailService) Set(ctx context.Context, userID int64, fileID string) error {
	if fileID == "" {
		return kerrors.BadRequest(ReasonThumbnailNotFound, "thumbnail file id is empty")
	}
	if err := t.repo.Set(ctx, userID, fileID); err != nil {
		return fmt.Errorf("store thumbnail: %w", err)
	}
	t.log.WithContext(ctx).Infof("thumbnail set: user=%d", userID)
	return nil
}

// Get 实现 ThumbnailStore：未设置时返回 ErrThumbnailNotFound。
func (t *ThumbnailService) Get(ctx context.Context, userID int64) (string, error) {
	return t.repo.Get(ctx, userID)
}

// Delete 删除封面图，返回是否原本存在。
func (t *ThumbnailService) Delete(ctx context.Context, userID int64) (bool, error) {
	existed, err := t.repo.Delete(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("delete thumbnail: %w", err)
	}
	return existed, nil
}
