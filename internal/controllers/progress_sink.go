package controllers

import (
	"context"
	"errors"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/bionicotaku/mergebot/internal/infrastructure/telegram"
	"github.com/bionicotaku/mergebot/internal/services"
	"github.com/bionicotaku/mergebot/internal/views"
)

// StatusMessageSink 实现 services.ProgressSink：把进度快照渲染后
// 原地编辑到用户的状态消息上。
type StatusMessageSink struct {
	client *telegram.Client
	log    *log.Helper
}

// NewStatusMessageSink 构造进度编辑器。
func NewStatusMessageSink(client *telegram.Client, logger log.Logger) (*StatusMessageSink, error) {
	if client == nil {
		return nil, errors.New("status sink: telegram client is required")
	}
	return &StatusMessageSink{client: client, log: log.NewHelper(logger)}, nil
}

// Publish 实现 services.ProgressSink。messageID 为 0 表示没有
// 可编辑的状态消息（理论上不该发生），静默丢弃。
func (s *StatusMessageSink) Publish(ctx context.Context, userID int64, messageID int, st services.ProgressState) error {
	if messageID == 0 {
		return nil
	}
	return s.client.EditMessage(ctx, userID, messageID, views.ProgressText(st))
}
