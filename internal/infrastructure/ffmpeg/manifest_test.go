package ffmpeg_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bionicotaku/mergebot/internal/infrastructure/ffmpeg"
)

func TestWriteManifest_OrderAndEscaping(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	path, err := ffmpeg.WriteManifest(dir, []string{
		"/tmp/ws/000_a.mp4",
		"/tmp/ws/001_it's here.mp4",
		"/tmp/ws/002_c.mp4",
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "inputs.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t,
		"file '/tmp/ws/000_a.mp4'\n"+
			"file '/tmp/ws/001_it'\\''s here.mp4'\n"+
			"file '/tmp/ws/002_c.mp4'\n",
		string(data))
}

func TestParseOutTimeMicros(t *testing.T) {
	t.Parallel()

	// 字段名叫 out_time_ms，但 ffmpeg 实际输出的是微秒
	us, ok := ffmpeg.ParseOutTimeMicros("out_time_ms=1500000")
	require.True(t, ok)
	require.Equal(t, int64(1500000), us)

	_, ok = ffmpeg.ParseOutTimeMicros("frame=42")
	require.False(t, ok)

	_, ok = ffmpeg.ParseOutTimeMicros("out_time_ms=N/A")
	require.False(t, ok)

	_, ok = ffmpeg.ParseOutTimeMicros("")
	require.False(t, ok)
}
