// internal/notify/handler.go
package notify

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"libraryrental/internal/apperr"
	"libraryrental/internal/auth"
	"libraryrental/internal/httpx"
)

const (
	linkedReply  = "Your account has been linked to telegram bot"
	welcomeReply = "Welcome to library if you want check our service use link: %s"
	echoPrefix   = "you said: "
	maxUpdate    = 1 << 20

	// SecretHeader carries the secret_token registered with setWebhook.
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// Webhook is where Telegram delivers updates and the secret it must echo in
// SecretHeader. Updates are refused unless the header matches Secret.
type Webhook struct {
	URL    string
	Secret string
}

// Linker stores a chat to user link.
type Linker interface {
	Link(ctx context.Context, chatID int64, userID uuid.UUID) error
}

type Handler struct {
	bot         *Bot
	links       Linker
	signer      *Signer
	registerURL string
	webhook     Webhook
}

// NewHandler serves the bot webhook, deep links and webhook administration.
// registerURL is offered to chats that start the bot without a token.
func NewHandler(bot *Bot, links Linker, signer *Signer, registerURL string, webhook Webhook) *Handler {
	return &Handler{bot: bot, links: links, signer: signer, registerURL: registerURL, webhook: webhook}
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.webhook.Secret == "" {
		return false
	}
	got := r.Header.Get(SecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.webhook.Secret)) == 1
}

func (h *Handler) Routes(mw *auth.Middleware) http.Handler {
	r := chi.NewRouter()
	r.Post("/getpost", h.handleUpdate)
	r.Get("/getpost", h.rejectGet)
	r.With(mw.Required).Get("/links", h.handleLink)
	r.With(mw.Required, auth.RequireStaff).Post("/set/webhook", h.handleSetWebhook)
	r.With(mw.Required, auth.RequireStaff).Post("/delete/webhook", h.handleDeleteWebhook)
	return r
}

type webhookResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (h *Handler) rejectGet(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusBadRequest, webhookResponse{Error: "updates must be POSTed"})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		slog.Warn("telegram update rejected: bad secret token", "remote", r.RemoteAddr)
		httpx.WriteJSON(w, http.StatusUnauthorized, webhookResponse{Error: "invalid secret token"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdate))
	if err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, webhookResponse{Error: err.Error()})
		return
	}
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, webhookResponse{Error: "invalid update: " + err.Error()})
		return
	}
	if err := h.process(r.Context(), update); err != nil {
		slog.Error("telegram update failed", "update_id", update.UpdateID, "err", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, webhookResponse{Error: err.Error()})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, webhookResponse{OK: true})
}

// startArgs reports whether text is a /start command and returns its
// argument.
func startArgs(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}
	cmd := fields[0]
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	if cmd != "/start" {
		return "", false
	}
	if len(fields) > 1 {
		return fields[1], true
	}
	return "", true
}

func (h *Handler) process(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	chatID := msg.Chat.ID

	token, isStart := startArgs(msg.Text)
	switch {
	case isStart && token != "":
		return h.bot.Reply(ctx, chatID, h.link(ctx, chatID, token))
	case isStart:
		return h.bot.Reply(ctx, chatID, fmt.Sprintf(welcomeReply, h.registerURL))
	default:
		return h.bot.Reply(ctx, chatID, echoPrefix+msg.Text)
	}
}

// link returns the text to send back after trying to link chatID.
func (h *Handler) link(ctx context.Context, chatID int64, token string) string {
	userID, err := h.signer.Verify(token)
	if err == nil {
		err = h.links.Link(ctx, chatID, userID)
	}
	if err != nil {
		slog.Warn("telegram link failed", "chat_id", chatID, "err", err)
		return "Failed to link account: " + apperr.MessageOf(err, "please request a new link")
	}
	slog.Info("telegram chat linked", "chat_id", chatID, "user_id", userID)
	return linkedReply
}

func (h *Handler) handleLink(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	username, err := h.bot.Username(r.Context())
	if err != nil {
		httpx.WriteAppError(w, r, apperr.Provider("telegram bot unavailable", err))
		return
	}
	link := "https://t.me/" + username + "?start=" + url.QueryEscape(h.signer.Sign(actor.UserID))
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"link": link})
}

func writeProviderResponse(w http.ResponseWriter, r *http.Request, resp *tgbotapi.APIResponse, err error) {
	if resp == nil {
		httpx.WriteAppError(w, r, apperr.Provider("telegram request failed", err))
		return
	}
	status := http.StatusOK
	if err != nil || !resp.Ok {
		status = http.StatusBadGateway
	}
	httpx.WriteJSON(w, status, resp)
}

func (h *Handler) handleSetWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhook.URL == "" {
		httpx.WriteAppError(w, r, apperr.Validation("telegram webhook url is not configured"))
		return
	}
	resp, err := h.bot.SetWebhook(r.Context(), h.webhook.URL, h.webhook.Secret)
	writeProviderResponse(w, r, resp, err)
}

func (h *Handler) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	resp, err := h.bot.DeleteWebhook(r.Context())
	writeProviderResponse(w, r, resp, err)
}
