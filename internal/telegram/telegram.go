// Package telegram connects the bot to the Telegram Bot API using long
// polling.
package telegram

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/erazemk/labcodes/internal/chat"
)

// maxMessageRunes is the Bot API limit on message text length.
const maxMessageRunes = 4096

const truncatedNote = "\n… (truncated)"

// retryDelay is the pause after a failed getUpdates call.
var retryDelay = 3 * time.Second

// Options configures a Client.
type Options struct {
	// Endpoint is the Bot API URL format (token, method). Defaults to
	// tgbotapi.APIEndpoint.
	Endpoint string
	// HTTPClient defaults to a client whose timeout exceeds PollTimeout.
	HTTPClient tgbotapi.HTTPClient
	// PollTimeout is the long-polling timeout of getUpdates.
	PollTimeout time.Duration
	Debug       bool
	Logger      *slog.Logger
}

// Client implements chat.Sender on top of the Bot API and produces
// chat.Update events.
type Client struct {
	api         *tgbotapi.BotAPI
	pollTimeout time.Duration
	log         *slog.Logger
}

var _ chat.Sender = (*Client)(nil)

// New authenticates with the Bot API and returns a client.
func New(token string, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Endpoint == "" {
		opts.Endpoint = tgbotapi.APIEndpoint
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.PollTimeout + 15*time.Second}
	}

	if err := tgbotapi.SetLogger(botLogger{log: opts.Logger}); err != nil {
		return nil, fmt.Errorf("setting bot api logger: %w", err)
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, opts.Endpoint, opts.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("connecting to bot api: %w", err)
	}
	api.Debug = opts.Debug

	opts.Logger.Info("bot authorized", "username", api.Self.UserName)
	return &Client{api: api, pollTimeout: opts.PollTimeout, log: opts.Logger}, nil
}

// Username returns the bot's username.
func (c *Client) Username() string { return c.api.Self.UserName }

// Poll long-polls for updates and delivers them to out until ctx is done.
// It closes out before returning.
func (c *Client) Poll(ctx context.Context, out chan<- chat.Update) {
	defer close(out)

	offset := 0
	for ctx.Err() == nil {
		cfg := tgbotapi.NewUpdate(offset)
		cfg.Timeout = int(c.pollTimeout / time.Second)
		cfg.AllowedUpdates = []string{"message", "callback_query"}

		updates, err := c.api.GetUpdates(cfg)
		if err != nil {
			c.log.Warn("getting updates failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			update, ok := convert(u)
			if !ok {
				continue
			}
			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
		}
	}
}

// convert maps a Bot API update to a chat.Update. Updates without a sender
// are dropped.
func convert(u tgbotapi.Update) (chat.Update, bool) {
	if cb := u.CallbackQuery; cb != nil {
		if cb.From == nil {
			return chat.Update{}, false
		}
		update := chat.Update{
			Kind:       chat.UpdateCallback,
			UserID:     cb.From.ID,
			CallbackID: cb.ID,
		}
		if cb.Message != nil {
			update.MessageID = cb.Message.MessageID
			if cb.Message.Chat != nil {
				update.ChatID = cb.Message.Chat.ID
			}
		}
		if a, err := chat.ParseAction(cb.Data); err == nil {
			update.Action = &a
		}
		return update, true
	}

	m := u.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return chat.Update{}, false
	}

	update := chat.Update{
		Kind:      chat.UpdateText,
		UserID:    m.From.ID,
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		Text:      m.Text,
	}
	if m.IsCommand() {
		update.Kind = chat.UpdateCommand
		update.Command = strings.ToLower(m.Command())
		update.Args = m.CommandArguments()
	}
	return update, true
}

// Send posts a new message.
func (c *Client) Send(ctx context.Context, chatID int64, msg chat.Message) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	text, markup := c.render(msg)
	cfg := tgbotapi.NewMessage(chatID, text)
	cfg.ParseMode = tgbotapi.ModeHTML
	cfg.DisableWebPagePreview = true
	if markup != nil {
		cfg.ReplyMarkup = *markup
	}

	sent, err := c.api.Send(cfg)
	if err != nil {
		return 0, fmt.Errorf("sending message: %w", err)
	}
	return sent.MessageID, nil
}

// Edit replaces the text and keyboard of an existing message. Editing to
// identical content is not an error.
func (c *Client) Edit(ctx context.Context, chatID int64, messageID int, msg chat.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text, markup := c.render(msg)
	cfg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	cfg.ParseMode = tgbotapi.ModeHTML
	cfg.DisableWebPagePreview = true
	cfg.ReplyMarkup = markup

	if _, err := c.api.Request(cfg); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return fmt.Errorf("editing message: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answering callback: %w", err)
	}
	return nil
}

// render converts a message into HTML text and an inline keyboard. Long
// code is clipped so the message fits the API limit.
func (c *Client) render(msg chat.Message) (string, *tgbotapi.InlineKeyboardMarkup) {
	plain := clip(msg.Text, maxMessageRunes)
	text := html.EscapeString(plain)

	if msg.Code != "" {
		room := maxMessageRunes - utf8.RuneCountInString(plain) - 2
		if room > 0 {
			text += "\n\n<pre>" + html.EscapeString(clip(msg.Code, room)) + "</pre>"
		}
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range msg.Keyboard {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			data, err := b.Action.Encode()
			if err != nil {
				c.log.Warn("dropping menu button", "label", b.Label, "error", err)
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, data))
		}
		if len(buttons) > 0 {
			rows = append(rows, buttons)
		}
	}
	if len(rows) == 0 {
		return text, nil
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return text, &markup
}

// clip shortens s to at most limit runes, marking the cut.
func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - utf8.RuneCountInString(truncatedNote)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(s)
	return string(runes[:keep]) + truncatedNote
}

// botLogger routes the Bot API library's log output into slog.
type botLogger struct {
	log *slog.Logger
}

func (l botLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)), "component", "tgbotapi")
}

func (l botLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "tgbotapi")
}
