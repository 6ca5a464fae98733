package controllers

import (
	"github.com/google/wire"

	"github.com/bionicotaku/mergebot/internal/services"
)

// ProviderSet is controllers providers.
var ProviderSet = wire.NewSet(
	NewBotController,
	NewStatusMessageSink,
	wire.Bind(new(services.ProgressSink), new(*StatusMessageSink)),
)
