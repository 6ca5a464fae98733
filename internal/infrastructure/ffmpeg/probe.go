package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// probeResult 对应 ffprobe -print_format json 的输出片段。
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// probeDurationMicros 用 ffprobe 读取单个输入的时长（微秒）。
func (e *Engine) probeDurationMicros(ctx context.Context, path string) (int64, error) {
	cmd := exec.CommandContext(ctx, e.probeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-print_format", "json",
		path,
	)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe: %s: %w", firstLine(stderr.String()), err)
	}

	var res probeResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		return 0, fmt.Errorf("ffprobe: parse output: %w", err)
	}
	seconds, err := strconv.ParseFloat(res.Format.Duration, 64)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("ffprobe: invalid duration %q", res.Format.Duration)
	}
	return int64(seconds * 1e6), nil
}
