// Package logger 构建带服务元信息的 Kratos Logger。
package logger

import (
	"os"

	"github.com/go-kratos/kratos/v2/log"
)

// Config captures runtime metadata used to annotate logs.
type Config struct {
	Service string
	Version string
	HostID  string
	Env     string
}

// NewLogger builds a Kratos-compatible logger writing structured lines to stdout.
func NewLogger(cfg Config) (log.Logger, error) {
	base := log.NewStdLogger(os.Stdout)
	return log.With(
		base,
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", cfg.Service,
		"service.version", cfg.Version,
		"service.id", cfg.HostID,
		"env", cfg.Env,
	), nil
}

// DefaultConfig builds Config from environment defaults.
func DefaultConfig(service, version string) Config {
	if service == "" {
		service = "mergebot"
	}
	if version == "" {
		version = "dev"
	}
	host, _ := os.Hostname()
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	return Config{Service: service, Version: version, HostID: host, Env: env}
}
