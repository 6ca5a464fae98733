package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/bionicotaku/mergebot/internal/services"
)

const progressBarWidth = 10

// FileSize 把字节数渲染为 1024 进制的人类可读形式。
func FileSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// TimeLeft 把剩余时长渲染为 "1h 2m 3s"，不足的单位省略。
func TimeLeft(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	total := int64(d.Round(time.Second) / time.Second)
	h := total / 3600
	m := total % 3600 / 60
	s := total % 60

	var b strings.Builder
	if h > 0 {
		fmt.Fprintf(&b, "%dh ", h)
	}
	if m > 0 || h > 0 {
		fmt.Fprintf(&b, "%dm ", m)
	}
	fmt.Fprintf(&b, "%ds", s)
	return b.String()
}

// ProgressBar 渲染定宽进度条，percent 超界自动收敛。
func ProgressBar(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * progressBarWidth / 100
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled) + "]"
}

// StageLabel 返回阶段的用户可读名称。
func StageLabel(stage services.Stage) string {
	switch stage {
	case services.StageDownloading:
		return "📥 下载中"
	case services.StageMerging:
		return "🔗 合并中"
	case services.StageUploading:
		return "📤 上传中"
	default:
		return "处理中"
	}
}

// ProgressText 渲染状态消息正文。终态按失败原因、投递结果或取消分别渲染。
func ProgressText(st services.ProgressState) string {
	if st.Terminal {
		switch {
		case st.Reason != "":
			return ErrorText(st.Reason)
		case st.Result != nil:
			return ResultText(*st.Result)
		default:
			return "🛑 已取消。"
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %d%%", StageLabel(st.Stage), ProgressBar(st.Percent), st.Percent)
	if st.Remaining > 0 {
		fmt.Fprintf(&b, "\n预计剩余：%s", TimeLeft(st.Remaining))
	}
	if st.Elapsed > 0 {
		fmt.Fprintf(&b, "\n已用时：%s", TimeLeft(st.Elapsed))
	}
	return b.String()
}

// QueueText 渲染当前队列概览。
func QueueText(qs services.QueueStatus) string {
	if qs.Count == 0 {
		return "队列为空。按顺序发视频给我，凑够 2 个就可以 /merge。"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🎬 队列中有 %d 个视频（共 %s）\n", qs.Count, FileSize(qs.TotalSize))
	if qs.TotalDuration > 0 {
		fmt.Fprintf(&b, "总时长约 %s\n", TimeLeft(time.Duration(qs.TotalDuration)*time.Second))
	}
	if qs.Count < 2 {
		b.WriteString("\n至少需要 2 个视频才能合并。")
	} else {
		b.WriteString("\n发送 /merge 开始合并。")
	}
	return b.String()
}

// ResultText 渲染终态文案：直传完成或云端链接。
func ResultText(res services.DeliveryResult) string {
	if res.Inline {
		return fmt.Sprintf("✅ 合并完成（%s），已作为视频发送。", FileSize(res.Size))
	}
	return fmt.Sprintf("✅ 合并完成（%s）。文件超出直传上限，已上传到 %s：\n%s",
		FileSize(res.Size), res.Provider, res.Link)
}

// ErrorText 把分类后的失败原因翻译成用户可读的文案。
func ErrorText(reason string) string {
	switch reason {
	case services.ReasonSessionBusy:
		return "⚠️ 已有一个合并任务在进行中，请等它结束或先 /cancel。"
	case services.ReasonInsufficientInput:
		return "⚠️ 至少需要 2 个视频才能合并。"
	case services.ReasonResourceExhausted:
		return "😵 服务器存储空间不足，请稍后再试。"
	case services.ReasonFileTooLarge:
		return "⚠️ 文件超出单个 2 GiB 的上限，已跳过。"
	case services.ReasonIncompatibleFormats:
		return "❌ 视频编码或分辨率不一致，无法无损拼接。请统一格式后重试。"
	case services.ReasonMergeTool:
		return "❌ 合并工具执行失败，请稍后重试。"
	case services.ReasonStageTimeout:
		return "⏱ 处理超时，任务已停止。请尝试更小的文件。"
	case services.ReasonDeliveryFailed:
		return "❌ 成片投递失败：所有上传通道均不可用，请稍后重试。"
	case services.ReasonUserBanned:
		return "⛔️ 你已被禁止使用本服务。"
	default:
		return "❌ 出了点问题，请稍后重试。"
	}
}
