package ffmpeg

import (
	"github.com/google/wire"

	"github.com/bionicotaku/mergebot/internal/services"
)

// ProviderSet 暴露合并引擎供 Wire 注入。
var ProviderSet = wire.NewSet(
	NewEngine,
	wire.Bind(new(services.MergeEngine), new(*Engine)),
)
