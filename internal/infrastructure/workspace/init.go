package workspace

import (
	"github.com/google/wire"

	"github.com/bionicotaku/mergebot/internal/services"
)

// ProviderSet 暴露工作区管理器供 Wire 注入。
var ProviderSet = wire.NewSet(
	NewManager,
	wire.Bind(new(services.WorkspaceAllocator), new(*Manager)),
)
