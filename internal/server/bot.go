// Package server 把 Telegram 长轮询循环包装成 Kratos transport.Server，
// 纳入应用的启动与优雅退出生命周期。
package server

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/bionicotaku/mergebot/internal/controllers"
	"github.com/bionicotaku/mergebot/internal/infrastructure/telegram"
)

// Config 是长轮询参数。
type Config struct {
	PollTimeout time.Duration
}

// BotServer 消费更新通道，每条更新派发到独立 goroutine。
type BotServer struct {
	client  *telegram.Client
	handler *controllers.BotController
	cfg     Config
	log     *log.Helper

	cancel context.CancelFunc
}

// NewBotServer 构造长轮询服务器。
func NewBotServer(cfg Config, client *telegram.Client, handler *controllers.BotController, logger log.Logger) *BotServer {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	return &BotServer{
		client:  client,
		handler: handler,
		cfg:     cfg,
		log:     log.NewHelper(logger),
	}
}

// Start 实现 transport.Server，阻塞直到 Stop 或更新通道关闭。
// 更新处理用 WithoutCancel 派生：Stop 停止接收新更新，
// 已派发的处理（含进行中的合并）自行跑到终态。
func (s *BotServer) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	handleCtx := context.WithoutCancel(ctx)

	updates := s.client.UpdatesChan(s.cfg.PollTimeout)
	s.log.Info("telegram long polling started")

	for {
		select {
		case <-runCtx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go s.handler.Handle(handleCtx, update)
		}
	}
}

// Stop 实现 transport.Server。
func (s *BotServer) Stop(ctx context.Context) error {
	s.log.Info("stopping telegram long polling")
	s.client.Bot().StopReceivingUpdates()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
