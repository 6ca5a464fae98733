//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"context"

	"github.com/bionicotaku/mergebot/internal/controllers"
	loader "github.com/bionicotaku/mergebot/internal/infrastructure/config_loader"
	"github.com/bionicotaku/mergebot/internal/infrastructure/database"
	"github.com/bionicotaku/mergebot/internal/infrastructure/ffmpeg"
	"github.com/bionicotaku/mergebot/internal/infrastructure/telegram"
	"github.com/bionicotaku/mergebot/internal/infrastructure/uploader"
	"github.com/bionicotaku/mergebot/internal/infrastructure/workspace"
	"github.com/bionicotaku/mergebot/internal/repositories"
	"github.com/bionicotaku/mergebot/internal/server"
	"github.com/bionicotaku/mergebot/internal/services"
	"github.com/bionicotaku/mergebot/internal/tasks/broadcast"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(context.Context, *loader.Loader, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		loader.ProviderSet,
		telegram.ProviderSet,
		database.ProviderSet,
		workspace.ProviderSet,
		ffmpeg.ProviderSet,
		uploader.ProviderSet,
		repositories.ProviderSet,
		services.ProviderSet,
		controllers.ProviderSet,
		broadcast.ProviderSet,
		server.ProviderSet,
		newApp,
	))
}
