// Package broadcast 实现管理员广播：把一条消息复制给所有未封禁用户。
package broadcast

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"

	"github.com/bionicotaku/mergebot/internal/services"
)

// MessageCopier 是广播需要的最小发送能力（telegram.Client 实现）。
type MessageCopier interface {
	CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) error
}

// Config 控制广播的并发度。
type Config struct {
	Concurrency int
}

// Report 汇总一次广播的结果。
type Report struct {
	Total  int
	Sent   int64
	Failed int64
}

// Broadcaster 按受控并发把消息复制给全部活跃用户。
// 单个用户投递失败只计数，不中断整场广播。
type Broadcaster struct {
	client MessageCopier
	users  *services.UserService
	cfg    Config
	log    *log.Helper
}

// NewBroadcaster 构造 Broadcaster。
func NewBroadcaster(cfg Config, client MessageCopier, users *services.UserService, logger log.Logger) (*Broadcaster, error) {
	if client == nil {
		return nil, errors.New("broadcaster: telegram client is required")
	}
	if users == nil {
		return nil, errors.New("broadcaster: user service is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Broadcaster{
		client: client,
		users:  users,
		cfg:    cfg,
		log:    log.NewHelper(logger),
	}, nil
}

// Run 把 fromChatID 中的 messageID 复制给所有活跃用户。
// 上下文取消会停止调度，已在途的发送照常完成。
func (b *Broadcaster) Run(ctx context.Context, fromChatID int64, messageID int) (Report, error) {
	ids, err := b.users.ActiveUserIDs(ctx)
	if err != nil {
		return Report{}, err
	}

	var sent, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)

	for _, id := range ids {
		userID := id
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err := b.client.CopyMessage(gctx, userID, fromChatID, messageID); err != nil {
				failed.Add(1)
				b.log.WithContext(gctx).Warnf("broadcast to %d failed: %v", userID, err)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}

	waitErr := g.Wait()
	report := Report{Total: len(ids), Sent: sent.Load(), Failed: failed.Load()}
	b.log.WithContext(ctx).Infof("broadcast finished: total=%d sent=%d failed=%d", report.Total, report.Sent, report.Failed)
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return report, waitErr
	}
	return report, nil
}
