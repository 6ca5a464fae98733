// Package views 负责把服务层的状态对象渲染成发给用户的 Telegram 文本。
// 该层作为表现层适配器，隔离业务逻辑与消息排版细节。
package views

// 固定话术。Markdown 模式，避免使用需要转义的字符。
const (
	StartText = "👋 把想拼接的视频按顺序发给我（也可以发视频文件或直链），" +
		"然后用 /merge 开始合并。\n\n发送 /help 查看完整用法。"

	HelpText = "📖 *用法*\n\n" +
		"1. 按想要的顺序发送 2 个以上视频（视频消息、视频文件或 http 直链均可）。\n" +
		"2. 发送 /merge 开始合并，我会在一条状态消息里持续汇报进度。\n" +
		"3. 合并期间可随时 /cancel 取消。\n\n" +
		"*其它命令*\n" +
		"/queue - 查看当前队列\n" +
		"/clear - 清空队列\n" +
		"/set\\_thumbnail - 回复一张图片，设为成片封面\n" +
		"/del\\_thumbnail - 删除已设置的封面\n\n" +
		"注意：视频需要相同的编码和分辨率，否则无法无损拼接。"

	MergeQueuedText  = "⏳ 正在准备合并…"
	CancelNothing    = "当前没有进行中的会话。"
	CancelQueuedText = "🗑 已取消，队列已清空。"
	CancelSentText   = "🛑 已请求取消，正在停止当前阶段…"
	ClearedText      = "🗑 队列已清空。"
	NotAdminText     = "⛔️ 该命令仅管理员可用。"

	ThumbnailSavedText   = "🖼 封面已保存，之后的成片都会带上它。"
	ThumbnailDeletedText = "🗑 封面已删除。"
	ThumbnailMissingText = "当前没有设置封面。"
	ThumbnailUsageText   = "请回复一张图片并使用 /set\\_thumbnail。"
	BroadcastUsageText   = "请回复要广播的消息并使用 /broadcast。"
	BanUsageText         = "用法：/ban <user\\_id> 或 /unban <user\\_id>。"
	UnknownCommandText   = "未知命令，发送 /help 查看用法。"
	UnsupportedInputText = "不支持的内容类型，请发送视频、视频文件或 http 直链。"
)
