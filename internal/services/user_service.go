package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// UserRepo 是用户档案的持久化契约，由 repositories 层实现。
type UserRepo interface {
	Upsert(ctx context.Context, userID int64, username string) error
	IsBanned(ctx context.Context, userID int64) (bool, error)
	SetBanned(ctx context.Context, userID int64, banned bool) error
	Count(ctx context.Context) (int64, error)
	ListActiveIDs(ctx context.Context) ([]int64, error)
}

// UserService 管理用户注册、封禁与统计。
// 同时实现 UserStore，供会话编排器做提交前的封禁检查。
type UserService struct {
	repo UserRepo
	log  *log.Helper
}

// NewUserService 构造 UserService。
func NewUserService(repo UserRepo, logger log.Logger) (*UserService, error) {
	if repo == nil {
		return nil, errors.New("user service: repo is required")
	}
	return &UserService{
		repo: repo,
		log:  log.NewHelper(logger),
	}, nil
}

// Register 记录用户（首次交互或资料变更时调用）。幂等。
func (s *UserService) Register(ctx context.Context, userID int64, username string) error {
	if err := s.repo.Upsert(ctx, userID, username); err != nil {
		return fmt.Errorf("register user %d: %w", userID, err)
	}
	return nil
}

// IsBanned 实现 UserStore。
func (s *UserService) IsBanned(ctx context.Context, userID int64) (bool, error) {
	return s.repo.IsBanned(ctx, userID)
}

// Ban 封禁用户。被封禁用户的提交会收到 USER_BANNED。
func (s *UserService) Ban(ctx context.Context, userID int64) error {
	if err := s.repo.SetBanned(ctx, userID, true); err != nil {
		return fmt.Errorf("ban user %d: %w", userID, err)
	}
	s.log.WithContext(ctx).Infof("user banned: user_id=%d", userID)
	return nil
}

// Unban 解除封禁。
func (s *UserService) Unban(ctx context.Context, userID int64) error {
	if err := s.repo.SetBanned(ctx, userID, false); err != nil {
		return fmt.Errorf("unban user %d: %w", userID, err)
	}
	s.log.WithContext(ctx).Infof("user unbanned: user_id=%d", userID)
	return nil
}

// Stats 返回已注册用户总数。
func (s *UserService) Stats(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

// ActiveUserIDs 返回未封禁用户的 ID 列表（广播目标）。
func (s *UserService) ActiveUserIDs(ctx context.Context) ([]int64, error) {
	return s.repo.ListActiveIDs(ctx)
}
