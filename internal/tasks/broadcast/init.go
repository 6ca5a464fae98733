package broadcast

import (
	"github.com/google/wire"

	"github.com/bionicotaku/mergebot/internal/infrastructure/telegram"
)

// ProviderSet is broadcast providers.
var ProviderSet = wire.NewSet(
	NewBroadcaster,
	wire.Bind(new(MessageCopier), new(*telegram.Client)),
)
