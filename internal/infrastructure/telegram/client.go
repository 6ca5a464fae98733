// Package telegram 封装 Bot API 客户端：消息收发、状态消息编辑、
// 文件流打开（Telegram 文件与直链统一入口）。
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bionicotaku/mergebot/internal/services"
)

// Config 是 Bot 客户端配置。
type Config struct {
	Token     string
	OwnerID   int64
	SudoUsers []int64
	Debug     bool
}

// IsSudo 返回该用户是否为管理员（owner 恒为管理员）。
func (c Config) IsSudo(userID int64) bool {
	if userID == c.OwnerID {
		return true
	}
	for _, id := range c.SudoUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// Client 包装 tgbotapi.BotAPI，实现 services.FileFetcher、
// services.InlineSender 与 services.ProgressSink 所需的原语。
type Client struct {
	bot  *tgbotapi.BotAPI
	http *http.Client
	log  *log.Helper
}

// NewClient 连接 Bot API 并返回清理函数（停止长轮询）。
func NewClient(cfg Config, logger log.Logger) (*Client, func(), error) {
	if cfg.Token == "" {
		return nil, nil, errors.New("telegram: bot token is required (set BOT_TOKEN)")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, nil, fmt.Errorf("telegram: connect: %w", err)
	}
	bot.Debug = cfg.Debug

	helper := log.NewHelper(logger)
	helper.Infof("telegram bot authorized: @%s", bot.Self.UserName)

	c := &Client{
		bot:  bot,
		http: &http.Client{Timeout: 0}, // 下载超时由阶段上下文控制
		log:  helper,
	}
	cleanup := func() {
		helper.Info("stopping telegram updates")
		bot.StopReceivingUpdates()
	}
	return c, cleanup, nil
}

// Bot 暴露底层客户端给长轮询服务器。
func (c *Client) Bot() *tgbotapi.BotAPI { return c.bot }

// Open 实现 services.FileFetcher：URL 引用走 HTTP 直链，
// 其余通过 getFile 解析 Telegram 文件路径后下载。
func (c *Client) Open(ctx context.Context, ref services.FileRef) (io.ReadCloser, int64, error) {
	url := ref.URL
	if url == "" {
		if ref.FileID == "" {
			return nil, 0, errors.New("telegram: file ref has neither file_id nor url")
		}
		file, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: ref.FileID})
		if err != nil {
			return nil, 0, fmt.Errorf("telegram: getFile: %w", err)
		}
		url = file.Link(c.bot.Token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("telegram: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("telegram: download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("telegram: download: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

// SendMessage 发送 Markdown 文本，返回消息 ID（用于后续编辑）。
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	sent, err := c.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("telegram: send: %w", err)
	}
	return sent.MessageID, nil
}

// SendMessageWithMarkup 发送带内联键盘的文本。
func (c *Client) SendMessageWithMarkup(ctx context.Context, chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = markup
	sent, err := c.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("telegram: send: %w", err)
	}
	return sent.MessageID, nil
}

// EditMessage 原地更新状态消息。内容未变化时平台会报
// "message is not modified"，按无操作处理。
func (c *Client) EditMessage(ctx context.Context, chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := c.bot.Send(edit); err != nil {
		if isNotModified(err) {
			return nil
		}
		return fmt.Errorf("telegram: edit: %w", err)
	}
	return nil
}

// SendVideo 实现 services.InlineSender：把产物作为视频附件直传。
func (c *Client) SendVideo(ctx context.Context, chatID int64, path, caption, thumbnail string) error {
	video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
	video.Caption = caption
	video.SupportsStreaming = true
	if thumbnail != "" {
		video.Thumb = tgbotapi.FilePath(thumbnail)
	}
	if _, err := c.bot.Send(video); err != nil {
		return fmt.Errorf("telegram: send video: %w", err)
	}
	return nil
}

// CopyMessage 把某条消息复制给另一个用户（广播用）。
func (c *Client) CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) error {
	copyMsg := tgbotapi.NewCopyMessage(toChatID, fromChatID, messageID)
	if _, err := c.bot.Send(copyMsg); err != nil {
		return fmt.Errorf("telegram: copy message: %w", err)
	}
	return nil
}

// AnswerCallback 响应内联按钮点击（消除客户端的加载态）。
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) {
	if _, err := c.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		c.log.Warnf("answer callback failed: %v", err)
	}
}

// UpdatesChan 启动长轮询。timeout 为 Bot API 的 long-poll 秒数。
func (c *Client) UpdatesChan(timeout time.Duration) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(timeout.Seconds())
	return c.bot.GetUpdatesChan(u)
}

func isNotModified(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 400 && strings.Contains(apiErr.Message, "message is not modified")
	}
	return false
}
