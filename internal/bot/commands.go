package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/erazemk/labcodes/internal/browse"
	"github.com/erazemk/labcodes/internal/chat"
	"github.com/erazemk/labcodes/internal/model"
)

const (
	addUsage    = "Usage: /add, or /add <subject> <lab> <variant> <code>"
	editUsage   = "Usage: /edit <id> <new code>"
	deleteUsage = "Usage: /delete <id>"
	showUsage   = "Usage: /show <id>"
	allUsage    = "Usage: /all [page]"
)

func (b *Bot) handleCommand(ctx context.Context, u chat.Update) {
	name := u.Command
	handler, known := b.handlers[name]
	if !known {
		name = "unknown"
	}
	b.metrics.Command(name)

	if name != "add" && name != "cancel" && b.entries.Active(u.UserID) {
		b.entries.Cancel(u.UserID)
		b.metrics.Entry("cancelled")
		b.reply(ctx, u.ChatID, chat.Message{Text: "Your unfinished lab code was discarded."})
	}

	if !known {
		b.reply(ctx, u.ChatID, chat.Message{Text: fmt.Sprintf("Unknown command /%s. See /help.", u.Command)})
		return
	}
	handler(ctx, u)
}

func (b *Bot) commands() map[string]func(context.Context, chat.Update) {
	return map[string]func(context.Context, chat.Update){
		"start":  b.cmdStart,
		"help":   b.cmdHelp,
		"add":    b.cmdAdd,
		"cancel": b.cancelEntry,
		"edit":   b.cmdEdit,
		"delete": b.cmdDelete,
		"list":   b.cmdList,
		"all":    b.cmdAll,
		"show":   b.cmdShow,
	}
}

func (b *Bot) cmdStart(ctx context.Context, u chat.Update) {
	b.reply(ctx, u.ChatID, chat.Message{
		Text: startText,
		Keyboard: [][]chat.Button{
			chat.Row(chat.Button{Label: "Add a lab code", Action: chat.Add()}),
			chat.Row(
				chat.Button{Label: "Browse", Action: chat.Subjects()},
				chat.Button{Label: "All codes", Action: chat.Page(1)},
			),
		},
	})
}

func (b *Bot) cmdHelp(ctx context.Context, u chat.Update) {
	b.reply(ctx, u.ChatID, chat.Message{Text: helpText})
}

func (b *Bot) cmdAdd(ctx context.Context, u chat.Update) {
	if strings.TrimSpace(u.Args) == "" {
		b.startEntry(ctx, u)
		return
	}

	// A one-shot add replaces any open entry.
	if b.entries.Active(u.UserID) {
		b.entries.Cancel(u.UserID)
		b.metrics.Entry("cancelled")
	}

	subject, rest := splitArg(u.Args)
	lab, rest := splitArg(rest)
	variant, code := splitArg(rest)
	if variant == "" || strings.TrimSpace(code) == "" {
		b.reply(ctx, u.ChatID, chat.Message{Text: addUsage})
		return
	}

	record, err := b.store.Create(ctx, model.NewLabCode{Subject: subject, LabNumber: lab, Variant: variant, Code: code})
	var fieldErr *model.FieldError
	if errors.As(err, &fieldErr) {
		b.reply(ctx, u.ChatID, chat.Message{Text: fmt.Sprintf("Invalid %s: %v.\n%s", fieldErr.Field, fieldErr.Err, addUsage)})
		return
	}
	if err != nil {
		b.metrics.Entry("failed")
		b.storeFailure(ctx, u, "create", err)
		return
	}

	b.metrics.Entry("committed")
	b.log.Info("lab code stored", "user", u.UserID, "id", record.ID, "subject", record.Subject)
	b.reply(ctx, u.ChatID, chat.Message{
		Text:     fmt.Sprintf("Saved lab code #%d: %s, %s.", record.ID, record.Subject, record.Label()),
		Keyboard: [][]chat.Button{chat.Row(chat.Button{Label: "Open", Action: chat.Record(record.ID)})},
	})
}

func (b *Bot) cmdEdit(ctx context.Context, u chat.Update) {
	idArg, code := splitArg(u.Args)
	id, ok := parseID(idArg)
	if !ok || strings.TrimSpace(code) == "" {
		b.reply(ctx, u.ChatID, chat.Message{Text: editUsage})
		return
	}

	updated, err := b.store.UpdateCode(ctx, id, code)
	if err != nil {
		b.storeFailure(ctx, u, "update_code", err)
		return
	}
	if !updated {
		b.reply(ctx, u.ChatID, chat.Message{Text: fmt.Sprintf("Lab code #%d not found.", id)})
		return
	}

	b.log.Info("lab code updated", "user", u.UserID, "id", id)
	b.reply(ctx, u.ChatID, chat.Message{
		Text:     fmt.Sprintf("Lab code #%d updated.", id),
		Keyboard: [][]chat.Button{chat.Row(chat.Button{Label: "Open", Action: chat.Record(id)})},
	})
}

func (b *Bot) cmdDelete(ctx context.Context, u chat.Update) {
	id, ok := parseID(strings.TrimSpace(u.Args))
	if !ok {
		b.reply(ctx, u.ChatID, chat.Message{Text: deleteUsage})
		return
	}

	deleted, err := b.store.Delete(ctx, id)
	if err != nil {
		b.storeFailure(ctx, u, "delete", err)
		return
	}
	if !deleted {
		b.reply(ctx, u.ChatID, chat.Message{Text: fmt.Sprintf("Lab code #%d not found.", id)})
		return
	}

	b.log.Info("lab code deleted", "user", u.UserID, "id", id)
	b.reply(ctx, u.ChatID, chat.Message{Text: fmt.Sprintf("Lab code #%d deleted.", id)})
}

func (b *Bot) cmdList(ctx context.Context, u chat.Update) {
	b.sendView(ctx, u, "subjects", func() (browse.View, error) { return b.nav.SubjectList(ctx) })
}

func (b *Bot) cmdAll(ctx context.Context, u chat.Update) {
	page := 1
	if arg := strings.TrimSpace(u.Args); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			b.reply(ctx, u.ChatID, chat.Message{Text: allUsage})
			return
		}
		page = n
	}
	b.sendView(ctx, u, "list_page", func() (browse.View, error) { return b.nav.PageList(ctx, page) })
}

func (b *Bot) cmdShow(ctx context.Context, u chat.Update) {
	id, ok := parseID(strings.TrimSpace(u.Args))
	if !ok {
		b.reply(ctx, u.ChatID, chat.Message{Text: showUsage})
		return
	}
	b.sendView(ctx, u, "get", func() (browse.View, error) { return b.nav.RecordDetail(ctx, id) })
}

func (b *Bot) sendView(ctx context.Context, u chat.Update, op string, render func() (browse.View, error)) {
	view, err := render()
	if err != nil {
		b.storeFailure(ctx, u, op, err)
		return
	}
	b.reply(ctx, u.ChatID, view.Message)
}

// splitArg returns the first whitespace-separated word of s and the text
// after the single separator that ends it. The remainder is not trimmed so
// codes keep their layout.
func splitArg(s string) (string, string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	_, size := utf8.DecodeRuneInString(s[i:])
	return s[:i], s[i+size:]
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
