// Package controllers 实现消息层：解析 Telegram 更新、调用服务层、
// 把结果渲染回用户。不承载任何业务规则。
package controllers

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bionicotaku/mergebot/internal/infrastructure/telegram"
	"github.com/bionicotaku/mergebot/internal/services"
	"github.com/bionicotaku/mergebot/internal/tasks/broadcast"
	"github.com/bionicotaku/mergebot/internal/views"
)

// 内联按钮的回调标识。
const (
	callbackMerge = "merge_videos"
	callbackClear = "clear_videos"
	callbackHelp  = "show_help"
)

// BotController 是 Telegram 更新的唯一入口。
// 每条更新在独立 goroutine 中处理（见 server 包），方法必须并发安全。
type BotController struct {
	client      *telegram.Client
	sessions    *services.SessionService
	users       *services.UserService
	thumbs      *services.ThumbnailService
	broadcaster *broadcast.Broadcaster
	cfg         telegram.Config
	log         *log.Helper
}

// NewBotController 构造消息控制器。
func NewBotController(
	cfg telegram.Config,
	client *telegram.Client,
	sessions *services.SessionService,
	users *services.UserService,
	thumbs *services.ThumbnailService,
	broadcaster *broadcast.Broadcaster,
	logger log.Logger,
) (*BotController, error) {
	switch {
	case client == nil:
		return nil, errors.New("bot controller: telegram client is required")
	case sessions == nil:
		return nil, errors.New("bot controller: session service is required")
	case users == nil:
		return nil, errors.New("bot controller: user service is required")
	case thumbs == nil:
		return nil, errors.New("bot controller: thumbnail service is required")
	case broadcaster == nil:
		return nil, errors.New("bot controller: broadcaster is required")
	}
	return &BotController{
		client:      client,
		sessions:    sessions,
		users:       users,
		thumbs:      thumbs,
		broadcaster: broadcaster,
		cfg:         cfg,
		log:         log.NewHelper(logger),
	}, nil
}

// Handle 分发一条更新。私聊以外的更新直接忽略。
func (c *BotController) Handle(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		c.handleCallback(ctx, update.CallbackQuery)
		return
	}
	msg := update.Message
	if msg == nil || msg.From == nil || !msg.Chat.IsPrivate() {
		return
	}

	userID := msg.From.ID
	if err := c.users.Register(ctx, userID, msg.From.UserName); err != nil {
		c.log.WithContext(ctx).Warnf("register user %d: %v", userID, err)
	}

	if msg.IsCommand() {
		c.handleCommand(ctx, msg)
		return
	}
	c.handleContent(ctx, msg)
}

func (c *BotController) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	switch msg.Command() {
	case "start":
		c.reply(ctx, userID, views.StartText)
	case "help":
		c.reply(ctx, userID, views.HelpText)
	case "ping":
		c.reply(ctx, userID, "pong 🏓")
	case "queue":
		status, _, _ := c.sessions.Snapshot(userID)
		c.replyQueue(ctx, userID, status)
	case "clear":
		c.clearQueue(ctx, userID)
	case "merge":
		c.startMerge(ctx, userID)
	case "cancel":
		c.cancel(ctx, userID)
	case "set_thumbnail":
		c.setThumbnail(ctx, msg)
	case "del_thumbnail":
		c.delThumbnail(ctx, userID)
	case "stats":
		c.stats(ctx, msg)
	case "ban":
		c.setBan(ctx, msg, true)
	case "unban":
		c.setBan(ctx, msg, false)
	case "broadcast":
		c.runBroadcast(ctx, msg)
	default:
		c.reply(ctx, userID, views.UnknownCommandText)
	}
}

// handleContent 把视频消息、视频文件、封面图或直链转为队列提交。
func (c *BotController) handleContent(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	ref, ok := fileRefFromMessage(msg)
	if ok {
		status, err := c.sessions.SubmitFile(ctx, userID, ref)
		if err != nil {
			c.replyError(ctx, userID, err)
			return
		}
		c.replyQueue(ctx, userID, status)
		return
	}

	// 单发一张图片视为设置封面（与回复 /set_thumbnail 等价）
	if len(msg.Photo) > 0 {
		c.saveThumbnail(ctx, userID, msg.Photo)
		return
	}

	c.reply(ctx, userID, views.UnsupportedInputText)
}

// fileRefFromMessage 提取可合并的文件引用。
func fileRefFromMessage(msg *tgbotapi.Message) (services.FileRef, bool) {
	switch {
	case msg.Video != nil:
		name := msg.Video.FileName
		if name == "" {
			name = fmt.Sprintf("video_%d.mp4", msg.MessageID)
		}
		return services.FileRef{
			MessageID: msg.MessageID,
			FileID:    msg.Video.FileID,
			Name:      name,
			Size:      int64(msg.Video.FileSize),
			Duration:  msg.Video.Duration,
		}, true
	case msg.Document != nil && isVideoDocument(msg.Document):
		return services.FileRef{
			MessageID: msg.MessageID,
			FileID:    msg.Document.FileID,
			Name:      msg.Document.FileName,
			Size:      int64(msg.Document.FileSize),
		}, true
	case msg.Text != "" && (strings.HasPrefix(msg.Text, "http://") || strings.HasPrefix(msg.Text, "https://")):
		url := strings.TrimSpace(msg.Text)
		name := path.Base(url)
		if name == "" || name == "." || name == "/" {
			name = fmt.Sprintf("link_%d.mp4", msg.MessageID)
		}
		return services.FileRef{
			MessageID: msg.MessageID,
			URL:       url,
			Name:      name,
		}, true
	}
	return services.FileRef{}, false
}

// isVideoDocument 接受 video/* MIME 或带常见视频扩展名的文件。
func isVideoDocument(doc *tgbotapi.Document) bool {
	if strings.HasPrefix(doc.MimeType, "video/") {
		return true
	}
	switch strings.ToLower(path.Ext(doc.FileName)) {
	case ".mp4", ".mkv", ".mov", ".avi", ".webm", ".flv", ".wmv", ".m4v", ".3gp":
		return true
	}
	return false
}

// startMerge 发出状态消息后在后台跑完整条管线。
// 终态渲染由进度上报链路完成；这里只兜底处理校验期错误。
func (c *BotController) startMerge(ctx context.Context, userID int64) {
	statusMsgID, err := c.client.SendMessage(ctx, userID, views.MergeQueuedText)
	if err != nil {
		c.log.WithContext(ctx).Errorf("send status message to %d: %v", userID, err)
		return
	}

	go func() {
		_, err := c.sessions.TriggerMerge(ctx, userID, statusMsgID)
		if err != nil && !isPipelineTerminal(err) {
			if editErr := c.client.EditMessage(ctx, userID, statusMsgID,
				views.ErrorText(kerrors.FromError(err).Reason)); editErr != nil {
				c.log.Warnf("edit validation error for %d: %v", userID, editErr)
			}
		}
	}()
}

// isPipelineTerminal 区分校验期错误（终态上报链路没跑过，需要控制器
// 自己编辑状态消息）与管线终态错误（finish 已经发布过终态）。
func isPipelineTerminal(err error) bool {
	reason := kerrors.FromError(err).Reason
	switch reason {
	case services.ReasonSessionBusy, services.ReasonInsufficientInput, services.ReasonUserBanned:
		return false
	default:
		return true
	}
}

func (c *BotController) cancel(ctx context.Context, userID int64) {
	_, state, exists := c.sessions.Snapshot(userID)
	found, err := c.sessions.Cancel(ctx, userID)
	if err != nil {
		c.replyError(ctx, userID, err)
		return
	}
	switch {
	case !found || !exists:
		c.reply(ctx, userID, views.CancelNothing)
	case state == services.StateMerging || state == services.StateUploading:
		c.reply(ctx, userID, views.CancelSentText)
	default:
		c.reply(ctx, userID, views.CancelQueuedText)
	}
}

func (c *BotController) clearQueue(ctx context.Context, userID int64) {
	if _, err := c.sessions.ClearQueue(ctx, userID); err != nil {
		c.replyError(ctx, userID, err)
		return
	}
	c.reply(ctx, userID, views.ClearedText)
}

func (c *BotController) setThumbnail(ctx context.Context, msg *tgbotapi.Message) {
	reply := msg.ReplyToMessage
	if reply == nil || len(reply.Photo) == 0 {
		c.reply(ctx, msg.From.ID, views.ThumbnailUsageText)
		return
	}
	c.saveThumbnail(ctx, msg.From.ID, reply.Photo)
}

// saveThumbnail 取最大分辨率的 PhotoSize 存档。
func (c *BotController) saveThumbnail(ctx context.Context, userID int64, photos []tgbotapi.PhotoSize) {
	best := photos[len(photos)-1]
	if err := c.thumbs.Set(ctx, userID, best.FileID); err != nil {
		c.replyError(ctx, userID, err)
		return
	}
	c.reply(ctx, userID, views.ThumbnailSavedText)
}

func (c *BotController) delThumbnail(ctx context.Context, userID int64) {
	existed, err := c.thumbs.Delete(ctx, userID)
	if err != nil {
		c.replyError(ctx, userID, err)
		return
	}
	if existed {
		c.reply(ctx, userID, views.ThumbnailDeletedText)
	} else {
		c.reply(ctx, userID, views.ThumbnailMissingText)
	}
}

func (c *BotController) stats(ctx context.Context, msg *tgbotapi.Message) {
	if !c.cfg.IsSudo(msg.From.ID) {
		c.reply(ctx, msg.From.ID, views.NotAdminText)
		return
	}
	count, err := c.users.Stats(ctx)
	if err != nil {
		c.replyError(ctx, msg.From.ID, err)
		return
	}
	c.reply(ctx, msg.From.ID, fmt.Sprintf("📊 已注册用户：%d", count))
}

func (c *BotController) setBan(ctx context.Context, msg *tgbotapi.Message, banned bool) {
	if !c.cfg.IsSudo(msg.From.ID) {
		c.reply(ctx, msg.From.ID, views.NotAdminText)
		return
	}
	target, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil || target == 0 {
		c.reply(ctx, msg.From.ID, views.BanUsageText)
		return
	}
	if banned {
		err = c.users.Ban(ctx, target)
	} else {
		err = c.users.Unban(ctx, target)
	}
	if err != nil {
		c.replyError(ctx, msg.From.ID, err)
		return
	}
	c.reply(ctx, msg.From.ID, fmt.Sprintf("✅ 已更新用户 %d 的封禁状态。", target))
}

// runBroadcast 在后台把被回复的消息复制给所有活跃用户，结束后回报统计。
func (c *BotController) runBroadcast(ctx context.Context, msg *tgbotapi.Message) {
	adminID := msg.From.ID
	if !c.cfg.IsSudo(adminID) {
		c.reply(ctx, adminID, views.NotAdminText)
		return
	}
	if msg.ReplyToMessage == nil {
		c.reply(ctx, adminID, views.BroadcastUsageText)
		return
	}
	source := msg.ReplyToMessage.MessageID
	go func() {
		report, err := c.broadcaster.Run(ctx, msg.Chat.ID, source)
		if err != nil {
			c.reply(ctx, adminID, fmt.Sprintf("广播中断：%v", err))
			return
		}
		c.reply(ctx, adminID, fmt.Sprintf("📣 广播完成：送达 %d / %d，失败 %d",
			report.Sent, report.Total, report.Failed))
	}()
}

func (c *BotController) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil {
		return
	}
	userID := cb.From.ID
	c.client.AnswerCallback(ctx, cb.ID, "")

	switch cb.Data {
	case callbackMerge:
		c.startMerge(ctx, userID)
	case callbackClear:
		c.clearQueue(ctx, userID)
	case callbackHelp:
		c.reply(ctx, userID, views.HelpText)
	}
}

// replyQueue 回显队列概览，凑够两个视频时附上操作按钮。
func (c *BotController) replyQueue(ctx context.Context, userID int64, status services.QueueStatus) {
	text := views.QueueText(status)
	if status.Count < 2 {
		c.reply(ctx, userID, text)
		return
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔗 开始合并", callbackMerge),
			tgbotapi.NewInlineKeyboardButtonData("🗑 清空队列", callbackClear),
		),
	)
	if _, err := c.client.SendMessageWithMarkup(ctx, userID, text, markup); err != nil {
		c.log.WithContext(ctx).Warnf("reply queue to %d: %v", userID, err)
	}
}

func (c *BotController) reply(ctx context.Context, userID int64, text string) {
	if _, err := c.client.SendMessage(ctx, userID, text); err != nil {
		c.log.WithContext(ctx).Warnf("reply to %d: %v", userID, err)
	}
}

func (c *BotController) replyError(ctx context.Context, userID int64, err error) {
	c.reply(ctx, userID, views.ErrorText(kerrors.FromError(err).Reason))
}
