// Package ffmpeg 把外部拼接工具封装成黑盒适配器：写入有序清单、
// 以流拷贝方式调用 ffmpeg、把文本进度流解析成百分比、并对退出状态
// 做错误分类。重编码明确不做：清单被拒绝就上报格式不兼容。
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/bionicotaku/mergebot/internal/services"
)

// Config 指定外部工具的二进制路径，便于部署覆盖与测试替换。
type Config struct {
	FFmpegBin  string
	FFprobeBin string
}

// Engine 实现 services.MergeEngine。
type Engine struct {
	bin      string
	probeBin string
	log      *log.Helper
}

// NewEngine 构造合并引擎，路径为空时使用 PATH 中的 ffmpeg/ffprobe。
func NewEngine(cfg Config, logger log.Logger) *Engine {
	if cfg.FFmpegBin == "" {
		cfg.FFmpegBin = "ffmpeg"
	}
	if cfg.FFprobeBin == "" {
		cfg.FFprobeBin = "ffprobe"
	}
	return &Engine{bin: cfg.FFmpegBin, probeBin: cfg.FFprobeBin, log: log.NewHelper(logger)}
}

// Merge 按 inputs 顺序做 concat demuxer 流拷贝。
// 进度从 `-progress pipe:1` 的 out_time_ms 行解析，对照 ffprobe
// 得到的总时长换算成 0–100 回调。ctx 取消时整个进程组被杀掉，
// 不会留下孤儿进程。
func (e *Engine) Merge(ctx context.Context, inputs []string, output string, onProgress func(percent int)) error {
	if len(inputs) < 2 {
		return fmt.Errorf("ffmpeg: need at least 2 inputs, got %d: %w", len(inputs), services.ErrMergeTool)
	}

	totalUS, err := e.totalDurationMicros(ctx, inputs)
	if err != nil {
		return err
	}

	manifest, err := WriteManifest(filepath.Dir(output), inputs)
	if err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	defer os.Remove(manifest)

	cmd := exec.CommandContext(ctx, e.bin,
		"-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-i", manifest,
		"-c", "copy",
		"-progress", "pipe:1",
		"-y", output,
	)
	// 独立进程组：取消时连同 ffmpeg 可能派生的子进程一起终止
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg: start: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if us, ok := ParseOutTimeMicros(scanner.Text()); ok && totalUS > 0 {
			percent := int(us * 100 / totalUS)
			if percent > 100 {
				percent = 100
			}
			if onProgress != nil {
				onProgress(percent)
			}
		}
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		return e.classifyExit(waitErr, stderr.String())
	}

	// 零退出但产物缺失/为空同样按工具失败处理
	info, statErr := os.Stat(output)
	if statErr != nil || info.Size() == 0 {
		return fmt.Errorf("ffmpeg: exited 0 but output missing or empty: %w", services.ErrMergeTool)
	}
	if onProgress != nil {
		onProgress(100)
	}
	return nil
}

// AttachThumbnail 把封面图作为 attached_pic 混流进视频，原地替换。
func (e *Engine) AttachThumbnail(ctx context.Context, video, thumbnail string) error {
	tmp := video + ".tmp.mkv"
	cmd := exec.CommandContext(ctx, e.bin,
		"-hide_banner", "-loglevel", "error",
		"-i", video, "-i", thumbnail,
		"-map", "0", "-map", "1",
		"-c", "copy", "-c:v:1", "mjpeg",
		"-disposition:v:1", "attached_pic",
		"-y", tmp,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ffmpeg: attach thumbnail: %s: %w", firstLine(stderr.String()), err)
	}
	return os.Rename(tmp, video)
}

func (e *Engine) totalDurationMicros(ctx context.Context, inputs []string) (int64, error) {
	var total int64
	for _, in := range inputs {
		us, err := e.probeDurationMicros(ctx, in)
		if err != nil {
			return 0, fmt.Errorf("ffmpeg: probe %s: %v: %w", filepath.Base(in), err, services.ErrMergeTool)
		}
		total += us
	}
	return total, nil
}

// classifyExit 区分“清单被拒绝（格式不兼容）”与一般工具失败。
// concat demuxer 在输入流不匹配时的诊断信息是适配器唯一的判据。
func (e *Engine) classifyExit(waitErr error, stderr string) error {
	msg := firstLine(stderr)
	if incompatibleStderr(stderr) {
		return fmt.Errorf("ffmpeg: %s: %w", msg, services.ErrIncompatibleFormats)
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return fmt.Errorf("ffmpeg: exit %d: %s: %w", exitErr.ExitCode(), msg, services.ErrMergeTool)
	}
	return fmt.Errorf("ffmpeg: %v: %w", waitErr, services.ErrMergeTool)
}

// incompatibleStderr 识别 concat demuxer 拒绝流拷贝的典型诊断。
// 损坏输入的 "invalid data" 类诊断不在此列：那是工具失败，不是格式不兼容。
func incompatibleStderr(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, marker := range []string{
		"do not match the corresponding output link",
		"non-monotonic dts",
		"codec parameters",
		"all the streams are not in the same",
		"unsafe file name",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
