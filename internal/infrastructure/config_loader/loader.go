// Package loader 负责 bootstrap 配置的加载、环境变量覆盖与校验。
package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/joho/godotenv"
)

var envFileNames = []string{".env.local", ".env"}

// Duration 支持在 YAML/JSON 中以 "30s" 这类字符串书写时长。
// 裸数字按秒解释。
type Duration time.Duration

// UnmarshalJSON 实现 json.Unmarshaler。
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(value * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration type %T", v)
	}
	return nil
}

// AsDuration 返回标准库时长，零值安全。
func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

// Bootstrap 是应用的全量配置树，与 configs/config.yaml 对应。
type Bootstrap struct {
	Bot       Bot       `json:"bot"`
	Storage   Storage   `json:"storage"`
	Merge     Merge     `json:"merge"`
	Delivery  Delivery  `json:"delivery"`
	Progress  Progress  `json:"progress"`
	Data      Data      `json:"data"`
	Broadcast Broadcast `json:"broadcast"`
}

// Bot 是 Telegram 侧配置。
type Bot struct {
	Token       string   `json:"token"`
	OwnerID     int64    `json:"owner_id"`
	SudoUsers   []int64  `json:"sudo_users"`
	Debug       bool     `json:"debug"`
	PollTimeout Duration `json:"poll_timeout"`
}

// Storage 是工作区配额配置。
type Storage struct {
	DataDir       string `json:"data_dir"`
	MaxFileBytes  int64  `json:"max_file_bytes"`
	MaxTotalBytes int64  `json:"max_total_bytes"`
	MinFreeBytes  int64  `json:"min_free_bytes"`
}

// Merge 是合并流水线配置。
type Merge struct {
	FFmpegBin       string   `json:"ffmpeg_bin"`
	FFprobeBin      string   `json:"ffprobe_bin"`
	DownloadTimeout Duration `json:"download_timeout"`
	MergeTimeout    Duration `json:"merge_timeout"`
	UploadTimeout   Duration `json:"upload_timeout"`
}

// Delivery 是投递策略配置。
type Delivery struct {
	InlineLimitBytes int64    `json:"inline_limit_bytes"`
	MaxRetries       uint64   `json:"max_retries"`
	RetryInterval    Duration `json:"retry_interval"`
	Providers        []string `json:"providers"`
	GofileAPIBase    string   `json:"gofile_api_base"`
	GofileToken      string   `json:"gofile_token"`
	GCSBucket        string   `json:"gcs_bucket"`
	GCSPrefix        string   `json:"gcs_prefix"`
}

// Progress 是进度上报配置。
type Progress struct {
	EditInterval Duration `json:"edit_interval"`
}

// Data 是持久化层配置。
type Data struct {
	Postgres Postgres `json:"postgres"`
}

// Postgres 连接池参数。
type Postgres struct {
	DSN             string   `json:"dsn"`
	MaxConns        int32    `json:"max_conns"`
	MinConns        int32    `json:"min_conns"`
	MaxConnLifetime Duration `json:"max_conn_lifetime"`
	MaxConnIdleTime Duration `json:"max_conn_idle_time"`
}

// Broadcast 是广播任务配置。
type Broadcast struct {
	Concurrency int `json:"concurrency"`
}

// Params 包含构造配置所需的运行时输入参数。
type Params struct {
	ConfPath string // 配置文件路径（可为空，使用默认值）
}

// ServiceMetadata 保存服务标识信息，供日志组件使用。
type ServiceMetadata struct {
	Name        string
	Version     string
	Environment string
	InstanceID  string
}

// Loader 聚合强类型的配置片段，供下游 Wire 注入使用。
type Loader struct {
	Bootstrap *Bootstrap
	Service   ServiceMetadata
}

// BuildError 捕获配置构建过程中的上下文错误信息。
type BuildError struct {
	Stage string
	Path  string
	Err   error
}

// Error 实现 error 接口，提供包含上下文的错误信息。
func (e BuildError) Error() string {
	if e.Stage == "" {
		return e.Err.Error()
	}
	if e.Path != "" {
		return fmt.Sprintf("config %s at %q: %v", e.Stage, e.Path, e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Stage, e.Err)
}

// Unwrap 暴露底层错误，支持 errors.Is/As 链式查询。
func (e BuildError) Unwrap() error {
	return e.Err
}

// Build 从 bootstrap 配置文件构建 Loader。
//
// 流程：
//  1. 解析配置路径（显式传入 > CONF_PATH > 默认值）
//  2. best-effort 加载 .env 文件
//  3. 加载 YAML 并 Scan 到 Bootstrap
//  4. 应用环境变量覆盖、填默认值、校验
func Build(params Params) (*Loader, error) {
	confPath := ResolveConfPath(params.ConfPath)
	loadEnvFiles(confPath)

	bootstrap, err := loadBootstrap(confPath)
	if err != nil {
		return nil, err
	}

	return &Loader{
		Bootstrap: bootstrap,
		Service:   buildServiceMetadata(),
	}, nil
}

// ResolveConfPath 应用回退规则确定要加载的配置目录/文件路径。
func ResolveConfPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(envConfPath); env != "" {
		return env
	}
	return defaultConfPath
}

func loadBootstrap(confPath string) (*Bootstrap, error) {
	c := config.New(config.WithSource(file.NewSource(confPath)))
	if err := c.Load(); err != nil {
		return nil, BuildError{Stage: "load", Path: confPath, Err: err}
	}
	defer c.Close()

	var bc Bootstrap
	if err := c.Scan(&bc); err != nil {
		return nil, BuildError{Stage: "scan", Path: confPath, Err: err}
	}
	applyEnvOverrides(&bc)
	applyDefaults(&bc)

	if err := validate(&bc); err != nil {
		return nil, BuildError{Stage: "validate", Path: confPath, Err: err}
	}
	return &bc, nil
}

// applyEnvOverrides 应用环境变量覆盖，保持配置文件可提交、
// 敏感信息从环境注入。
func applyEnvOverrides(bc *Bootstrap) {
	if bc == nil {
		return
	}
	if token := os.Getenv(envBotToken); token != "" {
		bc.Bot.Token = token
	}
	if dsn := os.Getenv(envDatabaseURL); dsn != "" {
		bc.Data.Postgres.DSN = dsn
	}
	if token := os.Getenv(envGofileToken); token != "" {
		bc.Delivery.GofileToken = token
	}
	if dir := os.Getenv(envDataDir); dir != "" {
		bc.Storage.DataDir = dir
	}
}

func validate(bc *Bootstrap) error {
	if bc.Bot.Token == "" {
		return errors.New("bot.token is required (set BOT_TOKEN)")
	}
	if bc.Data.Postgres.DSN == "" {
		return errors.New("data.postgres.dsn is required (set DATABASE_URL)")
	}
	if bc.Storage.MaxFileBytes > maxFileBytesCeiling {
		return fmt.Errorf("storage.max_file_bytes exceeds ceiling %d", int64(maxFileBytesCeiling))
	}
	for _, p := range bc.Delivery.Providers {
		if p != "gofile" && p != "gcs" {
			return fmt.Errorf("delivery.providers: unknown provider %q", p)
		}
	}
	return nil
}

// buildServiceMetadata 推导服务元信息，用于日志标签与实例标识。
func buildServiceMetadata() ServiceMetadata {
	name := os.Getenv(envServiceName)
	if name == "" {
		name = defaultServiceName
	}
	version := os.Getenv(envServiceVersion)
	if version == "" {
		version = "dev"
	}
	env := os.Getenv(envAppEnv)
	if env == "" {
		env = defaultEnvironment
	}
	host, _ := os.Hostname()

	return ServiceMetadata{
		Name:        name,
		Version:     version,
		Environment: env,
		InstanceID:  host,
	}
}

// loadEnvFiles best-effort 加载配置相关的 .env 文件，失败时忽略以保持幂等。
func loadEnvFiles(confPath string) {
	files := envFileCandidates(confPath)
	if len(files) == 0 {
		return
	}
	_ = godotenv.Load(files...)
}

// envFileCandidates 在配置目录与工作目录中查找 .env.local / .env，
// 按优先级去重返回。godotenv 不会覆盖已设置的变量。
func envFileCandidates(confPath string) []string {
	dirs := orderedDirs(confPath)
	seen := make(map[string]struct{})
	var files []string
	for _, dir := range dirs {
		for _, name := range envFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			if _, ok := seen[candidate]; ok {
				continue
			}
			files = append(files, candidate)
			seen[candidate] = struct{}{}
		}
	}
	return files
}

func orderedDirs(confPath string) []string {
	var dirs []string
	appendUnique := func(path string) {
		if path == "" {
			return
		}
		clean := filepath.Clean(path)
		for _, existing := range dirs {
			if existing == clean {
				return
			}
		}
		dirs = append(dirs, clean)
	}

	if confPath != "" {
		if info, err := os.Stat(confPath); err == nil {
			if info.IsDir() {
				appendUnique(confPath)
			} else {
				appendUnique(filepath.Dir(confPath))
			}
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		appendUnique(cwd)
	}

	return dirs
}
