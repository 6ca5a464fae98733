package ffmpeg

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WriteManifest 在 dir 下生成 concat demuxer 清单，行序即合并序。
// 路径中的单引号按 demuxer 的转义规则改写。
func WriteManifest(dir string, inputs []string) (string, error) {
	var b strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", in, err)
		}
		escaped := strings.ReplaceAll(abs, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}

	path := filepath.Join(dir, "inputs.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// ParseOutTimeMicros 解析 -progress 输出里的 out_time_ms 行。
// 该字段名不副实：值的单位是微秒。
func ParseOutTimeMicros(line string) (int64, bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found || key != "out_time_ms" {
		return 0, false
	}
	us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	return us, true
}
