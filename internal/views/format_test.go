package views_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bionicotaku/mergebot/internal/services"
	"github.com/bionicotaku/mergebot/internal/views"
)

func TestFileSize(t *testing.T) {
	t.Parallel()
	require.Equal(t, "512 B", views.FileSize(512))
	require.Equal(t, "1.00 KiB", views.FileSize(1024))
	require.Equal(t, "1.50 MiB", views.FileSize(1572864))
	require.Equal(t, "2.00 GiB", views.FileSize(2<<30))
}

func TestTimeLeft(t *testing.T) {
	t.Parallel()
	require.Equal(t, "0s", views.TimeLeft(0))
	require.Equal(t, "45s", views.TimeLeft(45*time.Second))
	require.Equal(t, "2m 5s", views.TimeLeft(125*time.Second))
	require.Equal(t, "1h 0m 1s", views.TimeLeft(time.Hour+time.Second))
}

func TestProgressBar(t *testing.T) {
	t.Parallel()
	require.Equal(t, "[░░░░░░░░░░]", views.ProgressBar(0))
	require.Equal(t, "[█████░░░░░]", views.ProgressBar(50))
	require.Equal(t, "[██████████]", views.ProgressBar(100))
	require.Equal(t, "[██████████]", views.ProgressBar(250), "out-of-range percent is clamped")
}

func TestProgressText_RunningStage(t *testing.T) {
	t.Parallel()
	text := views.ProgressText(services.ProgressState{
		Stage:     services.StageMerging,
		Percent:   40,
		Elapsed:   10 * time.Second,
		Remaining: 15 * time.Second,
	})
	require.Contains(t, text, "40%")
	require.Contains(t, text, views.ProgressBar(40))
	require.Contains(t, text, "15s")
}

func TestProgressText_TerminalStates(t *testing.T) {
	t.Parallel()

	failed := views.ProgressText(services.ProgressState{
		Terminal: true,
		Reason:   services.ReasonIncompatibleFormats,
	})
	require.Equal(t, views.ErrorText(services.ReasonIncompatibleFormats), failed)

	done := views.ProgressText(services.ProgressState{
		Terminal: true,
		Result:   &services.DeliveryResult{Inline: true, Provider: "telegram", Size: 1024},
	})
	require.Contains(t, done, "合并完成")

	cancelled := views.ProgressText(services.ProgressState{Terminal: true})
	require.Contains(t, cancelled, "已取消")
}

func TestResultText_CloudLink(t *testing.T) {
	t.Parallel()
	text := views.ResultText(services.DeliveryResult{
		Provider: "gofile",
		Link:     "https://gofile.io/d/abc",
		Size:     3 << 20,
	})
	require.Contains(t, text, "gofile")
	require.Contains(t, text, "https://gofile.io/d/abc")
}

func TestQueueText(t *testing.T) {
	t.Parallel()
	require.Contains(t, views.QueueText(services.QueueStatus{}), "队列为空")

	one := views.QueueText(services.QueueStatus{Count: 1, TotalSize: 100})
	require.Contains(t, one, "至少需要 2 个")

	two := views.QueueText(services.QueueStatus{Count: 2, TotalSize: 2048, TotalDuration: 65})
	require.Contains(t, two, "/merge")
	require.True(t, strings.Contains(two, "2.00 KiB"))
}

func TestErrorText_CoversAllReasons(t *testing.T) {
	t.Parallel()
	reasons := []string{
		services.ReasonSessionBusy,
		services.ReasonInsufficientInput,
		services.ReasonResourceExhausted,
		services.ReasonFileTooLarge,
		services.ReasonIncompatibleFormats,
		services.ReasonMergeTool,
		services.ReasonStageTimeout,
		services.ReasonDeliveryFailed,
		services.ReasonUserBanned,
	}
	seen := map[string]bool{}
	for _, r := range reasons {
		text := views.ErrorText(r)
		require.NotEmpty(t, text)
		require.False(t, seen[text], "each reason needs a distinct message: %s", r)
		seen[text] = true
	}
	require.NotEmpty(t, views.ErrorText("SOMETHING_ELSE"))
}
