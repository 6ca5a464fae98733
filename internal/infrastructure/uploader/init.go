package uploader

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"github.com/bionicotaku/mergebot/internal/services"
)

// ProviderSet is uploader providers.
var ProviderSet = wire.NewSet(NewProviders)

// Config 声明上传通道的启用顺序与各通道凭据。
type Config struct {
	// Providers 按回退优先级排列，如 ["gofile", "gcs"]。
	Providers     []string
	GofileAPIBase string
	GofileToken   string
	GCSBucket     string
	GCSPrefix     string
}

// NewProviders 按配置顺序组装上传通道列表。
// 顺序即投递层的回退顺序：前一个通道耗尽重试才会轮到下一个。
func NewProviders(ctx context.Context, cfg Config, logger log.Logger) ([]services.UploadProvider, func(), error) {
	helper := log.NewHelper(logger)
	providers := make([]services.UploadProvider, 0, len(cfg.Providers))
	cleanups := make([]func(), 0, len(cfg.Providers))
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	for _, name := range cfg.Providers {
		switch name {
		case "gofile":
			providers = append(providers, NewGofileProvider(cfg.GofileAPIBase, cfg.GofileToken, logger))
		case "gcs":
			p, closeGCS, err := NewGCSProvider(ctx, cfg.GCSBucket, cfg.GCSPrefix, logger)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			providers = append(providers, p)
			cleanups = append(cleanups, closeGCS)
		default:
			cleanup()
			return nil, nil, fmt.Errorf("uploader: unknown provider %q", name)
		}
	}

	if len(providers) == 0 {
		helper.Warn("no upload providers configured; oversized outputs will fail delivery")
	}
	return providers, cleanup, nil
}
