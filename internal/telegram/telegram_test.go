package telegram

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/erazemk/labcodes/internal/chat"
)

// fakeAPI is a minimal Bot API server recording the requests it receives.
type fakeAPI struct {
	mu       sync.Mutex
	calls    map[string][]url.Values
	updates  string
	served   bool
	editFail string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	f.mu.Lock()
	f.calls[method] = append(f.calls[method], r.PostForm)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Lab","username":"labcodes_bot"}}`)
	case "sendMessage":
		io.WriteString(w, `{"ok":true,"result":{"message_id":42,"date":0,"chat":{"id":7,"type":"private"},"text":"x"}}`)
	case "editMessageText":
		f.mu.Lock()
		fail := f.editFail
		f.mu.Unlock()
		if fail != "" {
			io.WriteString(w, `{"ok":false,"error_code":400,"description":"`+fail+`"}`)
			return
		}
		io.WriteString(w, `{"ok":true,"result":{"message_id":9,"date":0,"chat":{"id":7,"type":"private"},"text":"x"}}`)
	case "answerCallbackQuery":
		io.WriteString(w, `{"ok":true,"result":true}`)
	case "getUpdates":
		f.mu.Lock()
		first := !f.served
		f.served = true
		f.mu.Unlock()
		if first {
			io.WriteString(w, `{"ok":true,"result":`+f.updates+`}`)
			return
		}
		time.Sleep(10 * time.Millisecond)
		io.WriteString(w, `{"ok":true,"result":[]}`)
	default:
		io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
	}
}

func (f *fakeAPI) last(method string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.calls[method]
	if len(calls) == 0 {
		return nil
	}
	return calls[len(calls)-1]
}

func (f *fakeAPI) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[method])
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	api.calls = make(map[string][]url.Values)
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	c, err := New("TOKEN", Options{
		Endpoint:   server.URL + "/bot%s/%s",
		HTTPClient: server.Client(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewAuthorizes(t *testing.T) {
	c := newTestClient(t, &fakeAPI{})
	if c.Username() != "labcodes_bot" {
		t.Errorf("expected username labcodes_bot, got %q", c.Username())
	}
}

func TestSendRendersHTMLAndKeyboard(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	id, err := c.Send(context.Background(), 7, chat.Message{
		Text: "#1 C <intro>",
		Code: "if (a < b && c) {}",
		Keyboard: [][]chat.Button{
			chat.Row(chat.Button{Label: "« C", Action: chat.Labs("C")}),
		},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != 42 {
		t.Errorf("expected message id 42, got %d", id)
	}

	form := api.last("sendMessage")
	if form.Get("chat_id") != "7" {
		t.Errorf("expected chat_id 7, got %q", form.Get("chat_id"))
	}
	if form.Get("parse_mode") != "HTML" {
		t.Errorf("expected HTML parse mode, got %q", form.Get("parse_mode"))
	}
	wantText := "#1 C &lt;intro&gt;\n\n<pre>if (a &lt; b &amp;&amp; c) {}</pre>"
	if form.Get("text") != wantText {
		t.Errorf("expected text %q, got %q", wantText, form.Get("text"))
	}

	var markup struct {
		InlineKeyboard [][]struct {
			Text         string `json:"text"`
			CallbackData string `json:"callback_data"`
		} `json:"inline_keyboard"`
	}
	if err := json.Unmarshal([]byte(form.Get("reply_markup")), &markup); err != nil {
		t.Fatalf("decoding reply_markup %q: %v", form.Get("reply_markup"), err)
	}
	if len(markup.InlineKeyboard) != 1 || markup.InlineKeyboard[0][0].CallbackData != "labs:C" {
		t.Errorf("unexpected keyboard %+v", markup.InlineKeyboard)
	}
}

func TestEditIgnoresNotModified(t *testing.T) {
	api := &fakeAPI{editFail: "Bad Request: message is not modified"}
	c := newTestClient(t, api)

	if err := c.Edit(context.Background(), 7, 9, chat.Message{Text: "same"}); err != nil {
		t.Errorf("expected not-modified to be ignored, got %v", err)
	}

	api.mu.Lock()
	api.editFail = "Bad Request: message to edit not found"
	api.mu.Unlock()
	if err := c.Edit(context.Background(), 7, 9, chat.Message{Text: "x"}); err == nil {
		t.Error("expected error for missing message")
	}

	form := api.last("editMessageText")
	if form.Get("message_id") != "9" {
		t.Errorf("expected message_id 9, got %q", form.Get("message_id"))
	}
}

func TestAnswerCallback(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	if err := c.AnswerCallback(context.Background(), "cb1", ""); err != nil {
		t.Fatalf("AnswerCallback: %v", err)
	}
	if got := api.last("answerCallbackQuery").Get("callback_query_id"); got != "cb1" {
		t.Errorf("expected callback_query_id cb1, got %q", got)
	}
}

func TestPollConvertsUpdates(t *testing.T) {
	api := &fakeAPI{updates: `[
		{"update_id":10,"message":{"message_id":5,"from":{"id":7,"is_bot":false,"first_name":"U"},
		 "chat":{"id":70,"type":"private"},"date":0,"text":"/Edit@labcodes_bot 3 x = 1",
		 "entities":[{"type":"bot_command","offset":0,"length":18}]}},
		{"update_id":11,"callback_query":{"id":"cb1","from":{"id":7,"is_bot":false,"first_name":"U"},
		 "message":{"message_id":9,"chat":{"id":70,"type":"private"},"date":0},
		 "chat_instance":"ci","data":"rec:3"}},
		{"update_id":12,"message":{"message_id":6,"from":{"id":7,"is_bot":false,"first_name":"U"},
		 "chat":{"id":70,"type":"private"},"date":0,"text":"Math"}},
		{"update_id":13,"callback_query":{"id":"cb2","from":{"id":7,"is_bot":false,"first_name":"U"},
		 "chat_instance":"ci","data":"view_codes"}}
	]`}
	c := newTestClient(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan chat.Update)
	done := make(chan struct{})
	go func() {
		c.Poll(ctx, out)
		close(done)
	}()

	var got []chat.Update
	for len(got) < 4 {
		select {
		case u := <-out:
			got = append(got, u)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d updates", len(got))
		}
	}

	// Let the poller acknowledge the batch before stopping it.
	deadline := time.Now().Add(2 * time.Second)
	for api.count("getUpdates") < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	for range out {
	}
	<-done

	cmd := got[0]
	if cmd.Kind != chat.UpdateCommand || cmd.Command != "edit" || cmd.Args != "3 x = 1" {
		t.Errorf("unexpected command update %+v", cmd)
	}
	if cmd.UserID != 7 || cmd.ChatID != 70 || cmd.MessageID != 5 {
		t.Errorf("unexpected ids in %+v", cmd)
	}

	cb := got[1]
	if cb.Kind != chat.UpdateCallback || cb.Action == nil || *cb.Action != chat.Record(3) {
		t.Errorf("unexpected callback update %+v", cb)
	}
	if cb.MessageID != 9 || cb.ChatID != 70 {
		t.Errorf("expected callback on message 9 in chat 70, got %+v", cb)
	}

	if got[2].Kind != chat.UpdateText || got[2].Text != "Math" {
		t.Errorf("unexpected text update %+v", got[2])
	}

	if got[3].Action != nil {
		t.Errorf("expected unparsed payload to yield nil action, got %+v", got[3].Action)
	}

	// Later polls acknowledge the delivered updates.
	api.mu.Lock()
	polls := api.calls["getUpdates"]
	api.mu.Unlock()
	if len(polls) < 2 || polls[1].Get("offset") != "14" {
		t.Errorf("expected second poll with offset 14, got %v", polls)
	}
}

func TestRenderClipsLongCode(t *testing.T) {
	c := &Client{log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	code := strings.Repeat("ж", 5000)
	text, markup := c.render(chat.Message{Text: "header", Code: code})
	if markup != nil {
		t.Error("expected no keyboard")
	}

	visible := strings.TrimSuffix(strings.TrimPrefix(text, "header\n\n<pre>"), "</pre>")
	if n := utf8.RuneCountInString("header\n\n" + visible); n > maxMessageRunes {
		t.Errorf("expected at most %d visible runes, got %d", maxMessageRunes, n)
	}
	if !strings.HasSuffix(visible, truncatedNote) {
		t.Error("expected truncation note")
	}
}

func TestRenderDropsOversizedButtons(t *testing.T) {
	c := &Client{log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	_, markup := c.render(chat.Message{
		Text: "x",
		Keyboard: [][]chat.Button{
			chat.Row(chat.Button{Label: "too long", Action: chat.Labs(strings.Repeat("s", 80))}),
			chat.Row(chat.Button{Label: "ok", Action: chat.Subjects()}),
		},
	})
	if markup == nil || len(markup.InlineKeyboard) != 1 {
		t.Fatalf("expected one remaining row, got %+v", markup)
	}
	if data := markup.InlineKeyboard[0][0].CallbackData; data == nil || *data != "subj" {
		t.Errorf("expected subj payload, got %v", data)
	}
}
