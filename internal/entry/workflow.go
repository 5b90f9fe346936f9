// Package entry implements the guided conversation that collects the fields
// of a new lab code from one user and stores it.
package entry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/erazemk/labcodes/internal/chat"
	"github.com/erazemk/labcodes/internal/model"
)

// State is a workflow state.
type State int

// Workflow states. StateIdle means the user has no workflow open.
const (
	StateIdle State = iota
	StateAwaitingSubject
	StateAwaitingLabNumber
	StateAwaitingVariant
	StateAwaitingCode
	StateCommitted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingSubject:
		return "awaiting_subject"
	case StateAwaitingLabNumber:
		return "awaiting_lab_number"
	case StateAwaitingVariant:
		return "awaiting_variant"
	case StateAwaitingCode:
		return "awaiting_code"
	case StateCommitted:
		return "committed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrCommandValue is returned when a slash command is sent as a field value.
var ErrCommandValue = errors.New("commands cannot be used as values")

// Creator stores a completed entry.
type Creator interface {
	Create(ctx context.Context, in model.NewLabCode) (*model.LabCode, error)
}

// Result describes what a workflow input did.
type Result struct {
	// State is the workflow state after the input.
	State State
	// Reply is the message to show the user. Empty for StateIdle without
	// an expired entry.
	Reply chat.Message
	// Record is the stored lab code after a successful commit.
	Record *model.LabCode
	// Err is the input validation error, or the store error of a failed
	// commit.
	Err error
	// Expired is set when the user's entry had timed out.
	Expired bool
	// Replaced is set by Start when an unfinished entry was discarded.
	Replaced bool
}

// Workflow runs entry conversations. It is safe for concurrent use by
// different users.
type Workflow struct {
	sessions *Sessions
	store    Creator
	log      *slog.Logger
}

// New returns a workflow that commits to store and keeps its state in
// sessions.
func New(store Creator, sessions *Sessions, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{sessions: sessions, store: store, log: logger}
}

var prompts = map[State]string{
	StateAwaitingSubject:   "Enter the subject:",
	StateAwaitingLabNumber: "Enter the lab number:",
	StateAwaitingVariant:   "Enter the variant:",
	StateAwaitingCode:      "Send the code:",
}

var stepFields = map[State]string{
	StateAwaitingSubject:   model.FieldSubject,
	StateAwaitingLabNumber: model.FieldLabNumber,
	StateAwaitingVariant:   model.FieldVariant,
	StateAwaitingCode:      model.FieldCode,
}

func prompt(state State, note string) chat.Message {
	text := prompts[state]
	if note != "" {
		text = note + "\n\n" + text
	}
	return chat.Message{
		Text:     text,
		Keyboard: [][]chat.Button{chat.Row(chat.Button{Label: "Cancel", Action: chat.Cancel()})},
	}
}

// Start opens a fresh entry for user, silently replacing an unfinished one.
func (w *Workflow) Start(user int64) Result {
	replaced := w.sessions.put(user, Pending{State: StateAwaitingSubject})

	note := "New lab code."
	if replaced {
		note = "Your unfinished lab code was discarded. Starting over."
		w.log.Info("entry restarted", "user", user)
	}
	return Result{State: StateAwaitingSubject, Reply: prompt(StateAwaitingSubject, note), Replaced: replaced}
}

// Cancel discards the user's entry.
func (w *Workflow) Cancel(user int64) Result {
	if !w.sessions.Delete(user) {
		return Result{State: StateIdle, Reply: chat.Message{Text: "Nothing to cancel."}}
	}
	w.log.Info("entry cancelled", "user", user)
	return Result{State: StateCancelled, Reply: chat.Message{Text: "Cancelled. Nothing was saved."}}
}

// Active reports whether the user has an open entry.
func (w *Workflow) Active(user int64) bool {
	_, ok := w.sessions.Get(user)
	return ok
}

// State returns the user's current workflow state.
func (w *Workflow) State(user int64) State {
	p, ok := w.sessions.Get(user)
	if !ok {
		return StateIdle
	}
	return p.State
}

// Pending returns the number of open entries.
func (w *Workflow) Pending() int { return w.sessions.Len() }

// Sweep drops expired entries.
func (w *Workflow) Sweep() int { return w.sessions.Sweep() }

// Handle feeds one text message from user into their entry. Values are
// taken in the order subject, lab number, variant, code; the code commits
// the entry.
func (w *Workflow) Handle(ctx context.Context, user int64, text string) Result {
	p, status := w.sessions.lookup(user)
	switch status {
	case lookupMissing:
		return Result{State: StateIdle}
	case lookupExpired:
		w.log.Info("entry expired", "user", user)
		return Result{
			State:   StateIdle,
			Expired: true,
			Reply:   chat.Message{Text: "Your unfinished lab code expired. Use /add to start again."},
		}
	}

	if chat.IsCommand(text) {
		return Result{State: p.State, Err: ErrCommandValue, Reply: prompt(p.State, "Commands can't be used as values.")}
	}

	value := text
	if p.State != StateAwaitingCode {
		value = strings.TrimSpace(text)
	}
	if err := model.ValidateField(stepFields[p.State], value); err != nil {
		return Result{State: p.State, Err: err, Reply: prompt(p.State, invalidNote(err))}
	}

	switch p.State {
	case StateAwaitingSubject:
		p.Fields.Subject = value
		p.State = StateAwaitingLabNumber
	case StateAwaitingLabNumber:
		p.Fields.LabNumber = value
		p.State = StateAwaitingVariant
	case StateAwaitingVariant:
		p.Fields.Variant = value
		p.State = StateAwaitingCode
	case StateAwaitingCode:
		p.Fields.Code = value
		return w.commit(ctx, user, p.Fields)
	default:
		// Terminal states are never stored.
		w.sessions.Delete(user)
		return Result{State: StateIdle}
	}

	w.sessions.put(user, p)
	return Result{State: p.State, Reply: prompt(p.State, "")}
}

// commit stores the entry. The pending entry is discarded whether or not the
// store accepts it.
func (w *Workflow) commit(ctx context.Context, user int64, fields model.NewLabCode) Result {
	w.sessions.Delete(user)

	record, err := w.store.Create(ctx, fields)
	if err != nil {
		w.log.Error("storing lab code failed", "user", user, "subject", fields.Subject, "error", err)
		return Result{
			State: StateCommitted,
			Err:   err,
			Reply: chat.Message{Text: "Could not save the lab code. Please try again later."},
		}
	}

	w.log.Info("lab code stored", "user", user, "id", record.ID, "subject", record.Subject)
	return Result{
		State:  StateCommitted,
		Record: record,
		Reply: chat.Message{
			Text: fmt.Sprintf("Saved lab code #%d: %s, %s.", record.ID, record.Subject, record.Label()),
			Keyboard: [][]chat.Button{chat.Row(
				chat.Button{Label: "Open", Action: chat.Record(record.ID)},
				chat.Button{Label: "Add another", Action: chat.Add()},
			)},
		},
	}
}

func invalidNote(err error) string {
	switch {
	case errors.Is(err, model.ErrSubjectTooLong):
		return fmt.Sprintf("That subject is too long (at most %d bytes).", model.MaxSubjectBytes)
	case errors.Is(err, model.ErrEmptyField):
		return "The value must not be empty."
	default:
		return "That value can't be used."
	}
}
