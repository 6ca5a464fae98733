package loader

import "time"

const (
	// defaultConfPath is the fallback configuration directory when no overrides are provided.
	defaultConfPath = "configs"
	// envConfPath is the env var name that overrides configuration directory when flag is absent.
	envConfPath = "CONF_PATH"

	envServiceName    = "SERVICE_NAME"
	envServiceVersion = "SERVICE_VERSION"
	envAppEnv         = "APP_ENV"
	envBotToken       = "BOT_TOKEN"
	envDatabaseURL    = "DATABASE_URL"
	envGofileToken    = "GOFILE_TOKEN"
	envDataDir        = "DATA_DIR"

	defaultServiceName = "mergebot"
	defaultEnvironment = "development"

	// maxFileBytesCeiling 是单文件体积的硬上限（2 GiB）。
	maxFileBytesCeiling = int64(2) << 30

	defaultMaxFileBytes  = maxFileBytesCeiling
	defaultMaxTotalBytes = int64(8) << 30
	defaultMinFreeBytes  = int64(1) << 30

	// defaultInlineLimit 是 Bot API 附件直传上限（50 MiB）。
	defaultInlineLimit = int64(50) << 20

	defaultGofileAPIBase = "https://api.gofile.io"

	defaultDownloadTimeout = 30 * time.Minute
	defaultMergeTimeout    = 30 * time.Minute
	defaultUploadTimeout   = 30 * time.Minute
	defaultEditInterval    = 4 * time.Second
	defaultPollTimeout     = 30 * time.Second

	defaultBroadcastConcurrency = 8
)

// applyDefaults 填充缺失的配置项，保证下游拿到的都是可用值。
func applyDefaults(bc *Bootstrap) {
	if bc == nil {
		return
	}
	if bc.Bot.PollTimeout <= 0 {
		bc.Bot.PollTimeout = Duration(defaultPollTimeout)
	}
	if bc.Storage.DataDir == "" {
		bc.Storage.DataDir = "./data"
	}
	if bc.Storage.MaxFileBytes <= 0 {
		bc.Storage.MaxFileBytes = defaultMaxFileBytes
	}
	if bc.Storage.MaxTotalBytes <= 0 {
		bc.Storage.MaxTotalBytes = defaultMaxTotalBytes
	}
	if bc.Storage.MinFreeBytes <= 0 {
		bc.Storage.MinFreeBytes = defaultMinFreeBytes
	}
	if bc.Merge.FFmpegBin == "" {
		bc.Merge.FFmpegBin = "ffmpeg"
	}
	if bc.Merge.FFprobeBin == "" {
		bc.Merge.FFprobeBin = "ffprobe"
	}
	if bc.Merge.DownloadTimeout <= 0 {
		bc.Merge.DownloadTimeout = Duration(defaultDownloadTimeout)
	}
	if bc.Merge.MergeTimeout <= 0 {
		bc.Merge.MergeTimeout = Duration(defaultMergeTimeout)
	}
	if bc.Merge.UploadTimeout <= 0 {
		bc.Merge.UploadTimeout = Duration(defaultUploadTimeout)
	}
	if bc.Delivery.InlineLimitBytes <= 0 {
		bc.Delivery.InlineLimitBytes = defaultInlineLimit
	}
	if len(bc.Delivery.Providers) == 0 {
		bc.Delivery.Providers = []string{"gofile"}
	}
	if bc.Delivery.GofileAPIBase == "" {
		bc.Delivery.GofileAPIBase = defaultGofileAPIBase
	}
	if bc.Progress.EditInterval <= 0 {
		bc.Progress.EditInterval = Duration(defaultEditInterval)
	}
	if bc.Broadcast.Concurrency <= 0 {
		bc.Broadcast.Concurrency = defaultBroadcastConcurrency
	}
}
