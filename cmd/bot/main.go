// Package main boots the Kratos entrypoint for the merge bot.
package main

import (
	"context"
	"flag"
	"os"

	loader "github.com/bionicotaku/mergebot/internal/infrastructure/config_loader"
	loginfra "github.com/bionicotaku/mergebot/internal/infrastructure/logger"
	"github.com/bionicotaku/mergebot/internal/server"
	"github.com/bionicotaku/mergebot/internal/services"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "mergebot"
	// Version is the version of the compiled software.
	Version string

	id, _ = os.Hostname()

	flagconf string
)

func init() {
	flag.StringVar(&flagconf, "conf", "", "config path, eg: -conf configs")
}

func newApp(logger log.Logger, bs *server.BotServer, reporter *services.ProgressReporter) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			reporter,
			bs,
		),
	)
}

func main() {
	flag.Parse()

	// Load bootstrap configuration (YAML + .env overrides).
	ldr, err := loader.Build(loader.Params{ConfPath: flagconf})
	if err != nil {
		panic(err)
	}

	// Build the structured logger used by the entire application.
	loggr, err := loginfra.NewLogger(loader.ProvideLoggerConfig(ldr.Service))
	if err != nil {
		panic(err)
	}

	// Assemble all dependencies via Wire and create the Kratos app.
	app, cleanup, err := wireApp(context.Background(), ldr, loggr)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// Start the application and block until a stop signal is received.
	if err := app.Run(); err != nil {
		panic(err)
	}
}
