package loader

import (
	"time"

	"github.com/google/wire"

	"github.com/bionicotaku/mergebot/internal/infrastructure/database"
	"github.com/bionicotaku/mergebot/internal/infrastructure/ffmpeg"
	"github.com/bionicotaku/mergebot/internal/infrastructure/logger"
	"github.com/bionicotaku/mergebot/internal/infrastructure/telegram"
	"github.com/bionicotaku/mergebot/internal/infrastructure/uploader"
	"github.com/bionicotaku/mergebot/internal/infrastructure/workspace"
	"github.com/bionicotaku/mergebot/internal/server"
	"github.com/bionicotaku/mergebot/internal/services"
	"github.com/bionicotaku/mergebot/internal/tasks/broadcast"
)

// ProviderSet exposes configuration-derived dependencies for Wire graphs.
// ProvideServiceMetadata / ProvideLoggerConfig 在 main 中先于 Wire 使用
// （logger 是 wireApp 的入参），不放进 Set 以免成为未消费的 provider。
var ProviderSet = wire.NewSet(
	ProvideBootstrap,
	ProvideTelegramConfig,
	ProvideWorkspaceConfig,
	ProvideFFmpegConfig,
	ProvideDatabaseConfig,
	ProvideUploaderConfig,
	ProvideSessionConfig,
	ProvideDeliveryConfig,
	ProvideProgressInterval,
	ProvideServerConfig,
	ProvideBroadcastConfig,
)

// ProvideServiceMetadata returns the resolved ServiceMetadata from the loader.
func ProvideServiceMetadata(l *Loader) ServiceMetadata {
	if l == nil {
		return ServiceMetadata{}
	}
	return l.Service
}

// ProvideBootstrap exposes the strongly typed bootstrap configuration.
func ProvideBootstrap(l *Loader) *Bootstrap {
	if l == nil {
		return nil
	}
	return l.Bootstrap
}

// ProvideLoggerConfig maps service metadata onto the logger configuration.
func ProvideLoggerConfig(meta ServiceMetadata) logger.Config {
	return logger.Config{
		Service: meta.Name,
		Version: meta.Version,
		HostID:  meta.InstanceID,
		Env:     meta.Environment,
	}
}

// ProvideTelegramConfig returns the bot section of the bootstrap configuration.
func ProvideTelegramConfig(bc *Bootstrap) telegram.Config {
	return telegram.Config{
		Token:     bc.Bot.Token,
		OwnerID:   bc.Bot.OwnerID,
		SudoUsers: bc.Bot.SudoUsers,
		Debug:     bc.Bot.Debug,
	}
}

// ProvideWorkspaceConfig returns workspace quota settings.
func ProvideWorkspaceConfig(bc *Bootstrap) workspace.Config {
	return workspace.Config{
		DataDir:       bc.Storage.DataDir,
		MaxFileBytes:  bc.Storage.MaxFileBytes,
		MaxTotalBytes: bc.Storage.MaxTotalBytes,
		MinFreeBytes:  bc.Storage.MinFreeBytes,
	}
}

// ProvideFFmpegConfig returns merge tool binary locations.
func ProvideFFmpegConfig(bc *Bootstrap) ffmpeg.Config {
	return ffmpeg.Config{
		FFmpegBin:  bc.Merge.FFmpegBin,
		FFprobeBin: bc.Merge.FFprobeBin,
	}
}

// ProvideDatabaseConfig returns postgres pool settings.
func ProvideDatabaseConfig(bc *Bootstrap) database.Config {
	pg := bc.Data.Postgres
	return database.Config{
		DSN:             pg.DSN,
		MaxConns:        pg.MaxConns,
		MinConns:        pg.MinConns,
		MaxConnLifetime: pg.MaxConnLifetime.AsDuration(),
		MaxConnIdleTime: pg.MaxConnIdleTime.AsDuration(),
	}
}

// ProvideUploaderConfig returns cloud upload channel settings.
func ProvideUploaderConfig(bc *Bootstrap) uploader.Config {
	return uploader.Config{
		Providers:     bc.Delivery.Providers,
		GofileAPIBase: bc.Delivery.GofileAPIBase,
		GofileToken:   bc.Delivery.GofileToken,
		GCSBucket:     bc.Delivery.GCSBucket,
		GCSPrefix:     bc.Delivery.GCSPrefix,
	}
}

// ProvideSessionConfig returns orchestrator limits and stage timeouts.
func ProvideSessionConfig(bc *Bootstrap) services.SessionConfig {
	return services.SessionConfig{
		MaxFileBytes:    bc.Storage.MaxFileBytes,
		MaxTotalBytes:   bc.Storage.MaxTotalBytes,
		DownloadTimeout: bc.Merge.DownloadTimeout.AsDuration(),
		MergeTimeout:    bc.Merge.MergeTimeout.AsDuration(),
		UploadTimeout:   bc.Merge.UploadTimeout.AsDuration(),
	}
}

// ProvideDeliveryConfig returns inline threshold and retry policy.
func ProvideDeliveryConfig(bc *Bootstrap) services.DeliveryConfig {
	return services.DeliveryConfig{
		InlineLimit:   bc.Delivery.InlineLimitBytes,
		MaxRetries:    bc.Delivery.MaxRetries,
		RetryInterval: bc.Delivery.RetryInterval.AsDuration(),
	}
}

// ProvideProgressInterval returns the minimum spacing between progress edits.
func ProvideProgressInterval(bc *Bootstrap) time.Duration {
	return bc.Progress.EditInterval.AsDuration()
}

// ProvideServerConfig returns long-polling settings.
func ProvideServerConfig(bc *Bootstrap) server.Config {
	return server.Config{PollTimeout: bc.Bot.PollTimeout.AsDuration()}
}

// ProvideBroadcastConfig returns broadcast fan-out settings.
func ProvideBroadcastConfig(bc *Bootstrap) broadcast.Config {
	return broadcast.Config{Concurrency: bc.Broadcast.Concurrency}
}
