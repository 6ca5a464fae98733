package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kratos/kratos/v2/log"
)

// InlineSender 把产物作为附件直接发给用户（消息平台有大小上限）。
type InlineSender interface {
	SendVideo(ctx context.Context, chatID int64, path, caption, thumbnail string) error
}

// UploadProvider 是一个云端文件托管方：上传成功返回可取回的链接。
type UploadProvider interface {
	Name() string
	Upload(ctx context.Context, path string) (string, error)
}

// DeliveryConfig 控制直传阈值与提供方的瞬态重试。
type DeliveryConfig struct {
	InlineLimit   int64         // 直传上限（消息平台附件天花板）
	MaxRetries    uint64        // 单个提供方内的瞬态重试次数
	RetryInterval time.Duration // 重试初始间隔
}

// DeliveryService 实现投递策略：
// 产物不超过 InlineLimit 时直传，否则按优先级尝试云端提供方，
// 单个提供方内做有限指数退避重试，全部失败才算 DELIVERY_FAILED。
// 产物文件在投递结束前一直保留在工作区（重试无需重新合并）。
type DeliveryService struct {
	cfg       DeliveryConfig
	sender    InlineSender
	providers []UploadProvider
	log       *log.Helper
}

// NewDeliveryService 构造投递策略。providers 按优先级排序，可为空
// （此时超限产物直接失败）。
func NewDeliveryService(cfg DeliveryConfig, sender InlineSender, providers []UploadProvider, logger log.Logger) (*DeliveryService, error) {
	if sender == nil {
		return nil, errors.New("delivery service: inline sender is required")
	}
	if cfg.InlineLimit <= 0 {
		return nil, errors.New("delivery service: inline limit must be positive")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 2 * time.Second
	}
	return &DeliveryService{
		cfg:       cfg,
		sender:    sender,
		providers: providers,
		log:       log.NewHelper(logger),
	}, nil
}

// Deliver 实现 Deliverer。thumbnail 可为空；附带封面失败不影响投递结果。
func (d *DeliveryService) Deliver(ctx context.Context, userID int64, output, thumbnail string) (DeliveryResult, error) {
	info, err := os.Stat(output)
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("stat output: %w", err)
	}
	size := info.Size()

	if size <= d.cfg.InlineLimit {
		caption := fmt.Sprintf("merged_video.mkv (%d bytes)", size)
		if err := d.sender.SendVideo(ctx, userID, output, caption, thumbnail); err != nil {
			return DeliveryResult{}, fmt.Errorf("inline send: %w", err)
		}
		return DeliveryResult{Inline: true, Provider: "telegram", Size: size}, nil
	}

	link, provider, err := d.uploadWithFallback(ctx, output)
	if err != nil {
		return DeliveryResult{}, err
	}
	return DeliveryResult{Link: link, Provider: provider, Size: size}, nil
}

// uploadWithFallback 逐个尝试提供方；每个提供方内部做有限退避重试，
// 提供方之间不共享重试预算。全部耗尽返回 ErrDeliveryFailed。
func (d *DeliveryService) uploadWithFallback(ctx context.Context, path string) (string, string, error) {
	if len(d.providers) == 0 {
		return "", "", fmt.Errorf("output exceeds inline limit and no providers configured: %w", ErrDeliveryFailed)
	}

	var lastErr error
	for _, p := range d.providers {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}

		var link string
		op := func() error {
			var err error
			link, err = p.Upload(ctx, path)
			return err
		}
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = d.cfg.RetryInterval
		err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, d.cfg.MaxRetries), ctx))
		if err == nil {
			d.log.Infof("upload delivered: provider=%s", p.Name())
			return link, p.Name(), nil
		}
		lastErr = err
		d.log.Warnf("upload provider failed, trying next: provider=%s err=%v", p.Name(), err)
	}
	return "", "", fmt.Errorf("all %d providers failed, last: %v: %w", len(d.providers), lastErr, ErrDeliveryFailed)
}
