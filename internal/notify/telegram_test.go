package notify

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"sync"
	"testing"
)

// fakeTelegram answers the handful of Bot API methods the service calls.
type fakeTelegram struct {
	mu         sync.Mutex
	sent       []url.Values
	getMeCalls int
	failGetMe  bool
	failSend   bool
	webhook    string
	secret     string

	srv *httptest.Server
}

func newFakeTelegram(t *testing.T) *fakeTelegram {
	t.Helper()
	f := &fakeTelegram{}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeTelegram) endpoint() string { return f.srv.URL + "/bot%s/%s" }

func (f *fakeTelegram) bot(channelID int64) *Bot {
	return NewBot(BotConfig{Token: "123:abc", Endpoint: f.endpoint(), ChannelID: channelID})
}

func (f *fakeTelegram) set(fn func(*fakeTelegram)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeTelegram) getMeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getMeCalls
}

func (f *fakeTelegram) currentWebhook() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.webhook
}

func (f *fakeTelegram) webhookSecret() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.secret
}

func (f *fakeTelegram) messages() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.sent...)
}

func (f *fakeTelegram) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch path.Base(r.URL.Path) {
	case "getMe":
		f.getMeCalls++
		if f.failGetMe {
			fmt.Fprint(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"Library","username":"library_bot"}}`)
	case "sendMessage":
		f.sent = append(f.sent, r.PostForm)
		if f.failSend {
			fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"},"text":"ok"}}`)
	case "setWebhook":
		f.webhook = r.PostForm.Get("url")
		f.secret = r.PostForm.Get("secret_token")
		fmt.Fprint(w, `{"ok":true,"result":true,"description":"Webhook was set"}`)
	case "deleteWebhook":
		f.webhook = ""
		fmt.Fprint(w, `{"ok":true,"result":true,"description":"Webhook was deleted"}`)
	default:
		fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
	}
}
