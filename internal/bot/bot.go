// Package bot dispatches chat events to the entry workflow, the browse
// navigator and the record store, and sends the replies.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/erazemk/labcodes/internal/browse"
	"github.com/erazemk/labcodes/internal/chat"
	"github.com/erazemk/labcodes/internal/entry"
	"github.com/erazemk/labcodes/internal/metrics"
)

const failureText = "Something went wrong, please try again later."

// DefaultSweepInterval is how often Run drops expired entries.
const DefaultSweepInterval = time.Minute

// Store is the record store as used by the bot.
type Store interface {
	entry.Creator
	browse.Reader
	UpdateCode(ctx context.Context, id int64, code string) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// Options configures a Bot.
type Options struct {
	// PendingTTL is how long an unfinished entry is kept. Zero keeps
	// entries until they are finished or cancelled.
	PendingTTL time.Duration
	// SweepInterval defaults to DefaultSweepInterval.
	SweepInterval time.Duration
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// Bot handles chat events.
type Bot struct {
	store   Store
	sender  chat.Sender
	entries *entry.Workflow
	nav     *browse.Navigator
	log     *slog.Logger
	metrics *metrics.Metrics

	handlers      map[string]func(context.Context, chat.Update)
	pendingTTL    time.Duration
	sweepInterval time.Duration
}

// New returns a bot that stores records in st and replies through sender.
func New(st Store, sender chat.Sender, opts Options) *Bot {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	b := &Bot{
		store:         st,
		sender:        sender,
		entries:       entry.New(st, entry.NewSessions(opts.PendingTTL), logger),
		nav:           browse.New(st),
		log:           logger,
		metrics:       opts.Metrics,
		pendingTTL:    opts.PendingTTL,
		sweepInterval: interval,
	}
	b.handlers = b.commands()
	return b
}

// Run handles updates one at a time until ctx is done or updates is closed.
// Expired entries are swept periodically when a pending TTL is set.
func (b *Bot) Run(ctx context.Context, updates <-chan chat.Update) error {
	var sweep <-chan time.Time
	if b.pendingTTL > 0 {
		ticker := time.NewTicker(b.sweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			b.Handle(ctx, u)
		case <-sweep:
			if n := b.entries.Sweep(); n > 0 {
				b.log.Info("expired entries dropped", "count", n)
				for range n {
					b.metrics.Entry("expired")
				}
			}
			b.metrics.SetPending(b.entries.Pending())
		}
	}
}

// Handle processes one event. Failures are logged and reported to the user;
// they never stop the bot.
func (b *Bot) Handle(ctx context.Context, u chat.Update) {
	b.metrics.Update(u.Kind.String())
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panic", "user", u.UserID, "kind", u.Kind.String(), "panic", r, "stack", string(debug.Stack()))
			b.reply(ctx, u.ChatID, chat.Message{Text: failureText})
		}
		b.metrics.SetPending(b.entries.Pending())
	}()

	switch u.Kind {
	case chat.UpdateCommand:
		b.handleCommand(ctx, u)
	case chat.UpdateCallback:
		b.handleCallback(ctx, u)
	default:
		b.handleText(ctx, u)
	}
}

func (b *Bot) handleText(ctx context.Context, u chat.Update) {
	res := b.entries.Handle(ctx, u.UserID, u.Text)
	switch {
	case res.Expired:
		b.metrics.Entry("expired")
	case res.State == entry.StateIdle:
		b.reply(ctx, u.ChatID, chat.Message{Text: "Send /add to store a lab code or /list to browse. See /help for all commands."})
		return
	case res.State == entry.StateCommitted && res.Err != nil:
		b.metrics.StoreError("create")
		b.metrics.Entry("failed")
	case res.State == entry.StateCommitted:
		b.metrics.Entry("committed")
	}
	b.reply(ctx, u.ChatID, res.Reply)
}

func (b *Bot) handleCallback(ctx context.Context, u chat.Update) {
	if err := b.sender.AnswerCallback(ctx, u.CallbackID, ""); err != nil {
		b.log.Warn("answering callback failed", "user", u.UserID, "error", err)
	}

	if u.Action == nil {
		b.reply(ctx, u.ChatID, chat.Message{Text: "That button no longer works. Send /list to browse again."})
		return
	}

	switch u.Action.Kind {
	case chat.ActionAdd:
		b.startEntry(ctx, u)
	case chat.ActionCancel:
		b.cancelEntry(ctx, u)
	default:
		view, err := b.nav.Open(ctx, *u.Action)
		if errors.Is(err, browse.ErrNotNavigable) {
			b.log.Warn("unexpected callback action", "user", u.UserID, "action", u.Action.Kind.String())
			return
		}
		if err != nil {
			b.storeFailure(ctx, u, "browse", err)
			return
		}
		b.show(ctx, u, view.Message)
	}
}

func (b *Bot) startEntry(ctx context.Context, u chat.Update) {
	res := b.entries.Start(u.UserID)
	if res.Replaced {
		b.metrics.Entry("cancelled")
	}
	b.reply(ctx, u.ChatID, res.Reply)
}

func (b *Bot) cancelEntry(ctx context.Context, u chat.Update) {
	res := b.entries.Cancel(u.UserID)
	if res.State == entry.StateCancelled {
		b.metrics.Entry("cancelled")
	}
	b.reply(ctx, u.ChatID, res.Reply)
}

// show replaces the menu the event came from, or sends a new message when
// there is none or it can't be edited.
func (b *Bot) show(ctx context.Context, u chat.Update, msg chat.Message) {
	if u.MessageID != 0 {
		err := b.sender.Edit(ctx, u.ChatID, u.MessageID, msg)
		if err == nil {
			return
		}
		b.log.Warn("editing menu failed, sending a new one", "chat", u.ChatID, "error", err)
	}
	b.reply(ctx, u.ChatID, msg)
}

func (b *Bot) reply(ctx context.Context, chatID int64, msg chat.Message) {
	if msg.Text == "" && msg.Code == "" {
		return
	}
	if _, err := b.sender.Send(ctx, chatID, msg); err != nil {
		b.log.Error("sending reply failed", "chat", chatID, "error", err)
	}
}

func (b *Bot) storeFailure(ctx context.Context, u chat.Update, op string, err error) {
	b.log.Error("store operation failed", "op", op, "user", u.UserID, "error", err)
	b.metrics.StoreError(op)
	b.reply(ctx, u.ChatID, chat.Message{Text: failureText})
}
