package ffmpeg_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"

	"github.com/bionicotaku/mergebot/internal/infrastructure/ffmpeg"
	"github.com/bionicotaku/mergebot/internal/services"
)

// writeTool 生成一个模拟外部工具的可执行脚本。
func writeTool(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// fakeProbeBody 让每个输入都报告 10 秒时长。
const fakeProbeBody = `echo '{"format":{"duration":"10.000000"}}'`

func newFakeEngine(t *testing.T, ffmpegBody string) *ffmpeg.Engine {
	t.Helper()
	dir := t.TempDir()
	bin := writeTool(t, dir, "ffmpeg", ffmpegBody)
	probe := writeTool(t, dir, "ffprobe", fakeProbeBody)
	return ffmpeg.NewEngine(ffmpeg.Config{FFmpegBin: bin, FFprobeBin: probe}, log.NewStdLogger(io.Discard))
}

func twoInputs(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	a := filepath.Join(dir, "000_a.mp4")
	b := filepath.Join(dir, "001_b.mp4")
	require.NoError(t, os.WriteFile(a, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("x"), 0o644))
	return []string{a, b}
}

func TestMerge_StreamMismatchIsIncompatibleFormats(t *testing.T) {
	t.Parallel()
	e := newFakeEngine(t,
		`echo "Input stream #1:0 codec parameters do not match the corresponding output link" >&2; exit 1`)

	err := e.Merge(context.Background(), twoInputs(t), filepath.Join(t.TempDir(), "merged.mkv"), nil)
	require.ErrorIs(t, err, services.ErrIncompatibleFormats)
}

func TestMerge_GenericNonZeroExitIsMergeTool(t *testing.T) {
	t.Parallel()
	e := newFakeEngine(t,
		`echo "av_interleaved_write_frame(): I/O error" >&2; exit 1`)

	err := e.Merge(context.Background(), twoInputs(t), filepath.Join(t.TempDir(), "merged.mkv"), nil)
	require.ErrorIs(t, err, services.ErrMergeTool)
	require.NotErrorIs(t, err, services.ErrIncompatibleFormats)
}

func TestMerge_CorruptInputIsMergeToolNotIncompatible(t *testing.T) {
	t.Parallel()
	e := newFakeEngine(t,
		`echo "Invalid data found when processing input" >&2; exit 1`)

	err := e.Merge(context.Background(), twoInputs(t), filepath.Join(t.TempDir(), "merged.mkv"), nil)
	require.ErrorIs(t, err, services.ErrMergeTool)
	require.NotErrorIs(t, err, services.ErrIncompatibleFormats)
}

func TestMerge_ZeroExitWithoutOutputIsMergeTool(t *testing.T) {
	t.Parallel()
	e := newFakeEngine(t, `exit 0`)

	err := e.Merge(context.Background(), twoInputs(t), filepath.Join(t.TempDir(), "merged.mkv"), nil)
	require.ErrorIs(t, err, services.ErrMergeTool)
}

func TestMerge_ReportsProgressAndSucceeds(t *testing.T) {
	t.Parallel()
	// 输出路径是最后一个参数；两行进度对应总时长 20s 的 25% 和 50%
	e := newFakeEngine(t, `for arg; do out="$arg"; done
echo "out_time_ms=5000000"
echo "out_time_ms=10000000"
echo data > "$out"`)

	var percents []int
	output := filepath.Join(t.TempDir(), "merged.mkv")
	err := e.Merge(context.Background(), twoInputs(t), output, func(p int) {
		percents = append(percents, p)
	})
	require.NoError(t, err)
	require.Equal(t, []int{25, 50, 100}, percents)

	info, err := os.Stat(output)
	require.NoError(t, err)
	require.Positive(t, info.Size())
}
