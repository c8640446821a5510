// internal/notify/bot.go
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// DefaultAPIEndpoint is the Bot API URL template: token, then method.
const DefaultAPIEndpoint = tgbotapi.APIEndpoint

var ErrBotDisabled = errors.New("telegram bot token is not configured")

type BotConfig struct {
	Token     string
	Endpoint  string
	ChannelID int64
	Timeout   time.Duration
}

// Bot sends messages through the Telegram Bot API. The API client is created
// on first use; a failed start is retried by the next call.
type Bot struct {
	token     string
	endpoint  string
	channelID int64
	client    *http.Client

	mu  sync.Mutex
	api *tgbotapi.BotAPI
}

func NewBot(cfg BotConfig) *Bot {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultAPIEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bot{
		token:     cfg.Token,
		endpoint:  endpoint,
		channelID: cfg.ChannelID,
		client:    &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a token was configured. A disabled bot drops
// notifications silently.
func (b *Bot) Enabled() bool { return b.token != "" }

// EnsureInitialized returns the API client, calling getMe the first time.
func (b *Bot) EnsureInitialized(ctx context.Context) (*tgbotapi.BotAPI, error) {
	if !b.Enabled() {
		return nil, ErrBotDisabled
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.api != nil {
		return b.api, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	api, err := tgbotapi.NewBotAPIWithClient(b.token, b.endpoint, b.client)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	api.Debug = false
	b.api = api
	return api, nil
}

// Username is the bot's @handle, used to build deep links.
func (b *Bot) Username(ctx context.Context) (string, error) {
	api, err := b.EnsureInitialized(ctx)
	if err != nil {
		return "", err
	}
	return api.Self.UserName, nil
}

func (b *Bot) send(ctx context.Context, chatID int64, text, parseMode string) error {
	api, err := b.EnsureInitialized(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseMode
	msg.DisableWebPagePreview = true
	if _, err := api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message to %d: %w", chatID, err)
	}
	return nil
}

// NotifyChannel posts an HTML message to the shared channel.
func (b *Bot) NotifyChannel(ctx context.Context, text string) error {
	if !b.Enabled() || b.channelID == 0 {
		slog.Debug("telegram channel disabled, dropping message")
		return nil
	}
	return b.send(ctx, b.channelID, text, tgbotapi.ModeHTML)
}

// NotifyUser sends an HTML message to a private chat.
func (b *Bot) NotifyUser(ctx context.Context, chatID int64, text string) error {
	if !b.Enabled() {
		slog.Debug("telegram disabled, dropping private message", "chat_id", chatID)
		return nil
	}
	return b.send(ctx, chatID, text, tgbotapi.ModeHTML)
}

// Reply answers a chat in plain text.
func (b *Bot) Reply(ctx context.Context, chatID int64, text string) error {
	return b.send(ctx, chatID, text, "")
}

// SetWebhook registers webhookURL for update delivery and returns the API's
// answer. Telegram echoes secret in every update it posts.
func (b *Bot) SetWebhook(ctx context.Context, webhookURL, secret string) (*tgbotapi.APIResponse, error) {
	api, err := b.EnsureInitialized(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := url.ParseRequestURI(webhookURL); err != nil {
		return nil, fmt.Errorf("invalid webhook url: %w", err)
	}
	params := tgbotapi.Params{"url": webhookURL}
	params.AddNonEmpty("secret_token", secret)
	return api.MakeRequest("setWebhook", params)
}

// DeleteWebhook removes the webhook and returns the API's answer.
func (b *Bot) DeleteWebhook(ctx context.Context) (*tgbotapi.APIResponse, error) {
	api, err := b.EnsureInitialized(ctx)
	if err != nil {
		return nil, err
	}
	return api.Request(tgbotapi.DeleteWebhookConfig{})
}
