package telegram

import (
	"github.com/google/wire"

	"github.com/bionicotaku/mergebot/internal/services"
)

// ProviderSet is telegram providers.
var ProviderSet = wire.NewSet(
	NewClient,
	wire.Bind(new(services.FileFetcher), new(*Client)),
	wire.Bind(new(services.InlineSender), new(*Client)),
)
