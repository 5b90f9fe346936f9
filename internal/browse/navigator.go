// Package browse renders the menus used to find stored lab codes: subjects,
// the labs of one subject, a single record, and a flat paginated listing.
package browse

import (
	"context"
	"errors"
	"fmt"

	"github.com/erazemk/labcodes/internal/chat"
	"github.com/erazemk/labcodes/internal/model"
	"github.com/erazemk/labcodes/internal/store"
)

// PageSize is the number of records on one page of the flat listing.
const PageSize = 5

// State is the navigator position a view represents.
type State int

// Navigator states.
const (
	StateSubjects State = iota + 1
	StateLabs
	StateRecord
	StatePage
	StateNotFound
)

func (s State) String() string {
	switch s {
	case StateSubjects:
		return "subjects"
	case StateLabs:
		return "labs"
	case StateRecord:
		return "record"
	case StatePage:
		return "page"
	case StateNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// ErrNotNavigable is returned for actions that are not browse actions.
var ErrNotNavigable = errors.New("action is not a browse action")

// Reader is the read side of the record store.
type Reader interface {
	Get(ctx context.Context, id int64) (*model.LabCode, error)
	ListBySubject(ctx context.Context, subject string) ([]model.LabCode, error)
	Subjects(ctx context.Context) ([]string, error)
	ListPage(ctx context.Context, page, size int) ([]model.LabCode, int, error)
}

// View is a rendered navigator position.
type View struct {
	State    State
	Subject  string
	RecordID int64
	Page     int

	// Back is the action of the back entry, nil at the root.
	Back    *chat.Action
	Message chat.Message
}

// Navigator builds views from the store. It keeps no per-user state: the
// position lives in the actions carried by the rendered menu.
type Navigator struct {
	store Reader
}

// New returns a navigator over store.
func New(store Reader) *Navigator {
	return &Navigator{store: store}
}

// Open renders the view an action points to. Missing subjects and records
// produce a StateNotFound view; errors are store failures.
func (n *Navigator) Open(ctx context.Context, a chat.Action) (View, error) {
	switch a.Kind {
	case chat.ActionSubjects:
		return n.SubjectList(ctx)
	case chat.ActionLabs:
		return n.LabList(ctx, a.Subject)
	case chat.ActionRecord:
		return n.RecordDetail(ctx, a.ID)
	case chat.ActionPage:
		return n.PageList(ctx, a.Page)
	default:
		return View{}, fmt.Errorf("%s: %w", a.Kind, ErrNotNavigable)
	}
}

// SubjectList renders the root menu with one entry per subject.
func (n *Navigator) SubjectList(ctx context.Context) (View, error) {
	subjects, err := n.store.Subjects(ctx)
	if err != nil {
		return View{}, err
	}

	if len(subjects) == 0 {
		return View{
			State: StateSubjects,
			Message: chat.Message{
				Text:     "Nothing stored yet.",
				Keyboard: [][]chat.Button{chat.Row(chat.Button{Label: "Add a lab code", Action: chat.Add()})},
			},
		}, nil
	}

	keyboard := make([][]chat.Button, 0, len(subjects))
	for _, s := range subjects {
		keyboard = append(keyboard, chat.Row(chat.Button{Label: s, Action: chat.Labs(s)}))
	}

	return View{
		State:   StateSubjects,
		Message: chat.Message{Text: "Choose a subject:", Keyboard: keyboard},
	}, nil
}

// LabList renders the records of one subject.
func (n *Navigator) LabList(ctx context.Context, subject string) (View, error) {
	codes, err := n.store.ListBySubject(ctx, subject)
	if err != nil {
		return View{}, err
	}

	back := chat.Subjects()
	if len(codes) == 0 {
		return notFound(fmt.Sprintf("No lab codes for %q.", subject), back), nil
	}

	keyboard := make([][]chat.Button, 0, len(codes)+1)
	for _, c := range codes {
		keyboard = append(keyboard, chat.Row(chat.Button{Label: c.Label(), Action: chat.Record(c.ID)}))
	}
	keyboard = append(keyboard, chat.Row(chat.Button{Label: "« Subjects", Action: back}))

	return View{
		State:   StateLabs,
		Subject: subject,
		Back:    &back,
		Message: chat.Message{Text: subject + ":", Keyboard: keyboard},
	}, nil
}

// RecordDetail renders one record with its full code. The back entry leads
// to the lab list of the record's own subject.
func (n *Navigator) RecordDetail(ctx context.Context, id int64) (View, error) {
	c, err := n.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return notFound(fmt.Sprintf("Lab code #%d not found.", id), chat.Subjects()), nil
	}
	if err != nil {
		return View{}, err
	}

	back := chat.Labs(c.Subject)
	return View{
		State:    StateRecord,
		Subject:  c.Subject,
		RecordID: c.ID,
		Back:     &back,
		Message: chat.Message{
			Text:     Detail(c),
			Code:     c.Code,
			Keyboard: [][]chat.Button{chat.Row(chat.Button{Label: "« " + c.Subject, Action: back})},
		},
	}, nil
}

// PageList renders one page of the flat listing of all records.
func (n *Navigator) PageList(ctx context.Context, page int) (View, error) {
	codes, total, err := n.store.ListPage(ctx, page, PageSize)
	if err != nil {
		return View{}, err
	}

	if total == 0 {
		return View{
			State: StatePage,
			Page:  page,
			Message: chat.Message{
				Text:     "Nothing stored yet.",
				Keyboard: [][]chat.Button{chat.Row(chat.Button{Label: "Add a lab code", Action: chat.Add()})},
			},
		}, nil
	}
	if len(codes) == 0 {
		return notFound(fmt.Sprintf("Page %d does not exist.", page), chat.Page(1)), nil
	}

	keyboard := make([][]chat.Button, 0, len(codes)+1)
	for _, c := range codes {
		label := fmt.Sprintf("#%d %s, %s", c.ID, c.Subject, c.Label())
		keyboard = append(keyboard, chat.Row(chat.Button{Label: label, Action: chat.Record(c.ID)}))
	}

	var nav []chat.Button
	if page > 1 {
		nav = append(nav, chat.Button{Label: "‹ Prev", Action: chat.Page(page - 1)})
	}
	if page < total {
		nav = append(nav, chat.Button{Label: "Next ›", Action: chat.Page(page + 1)})
	}
	if len(nav) > 0 {
		keyboard = append(keyboard, nav)
	}

	return View{
		State: StatePage,
		Page:  page,
		Message: chat.Message{
			Text:     fmt.Sprintf("All lab codes, page %d of %d:", page, total),
			Keyboard: keyboard,
		},
	}, nil
}

// Detail formats the header of a record detail view.
func Detail(c *model.LabCode) string {
	return fmt.Sprintf("#%d %s\nLab: %s\nVariant: %s\nAdded: %s",
		c.ID, c.Subject, c.LabNumber, c.Variant, c.CreatedAt.Format("2006-01-02 15:04"))
}

func notFound(text string, back chat.Action) View {
	label := "« Subjects"
	if back.Kind == chat.ActionPage {
		label = "« First page"
	}
	return View{
		State:   StateNotFound,
		Back:    &back,
		Message: chat.Message{Text: text, Keyboard: [][]chat.Button{chat.Row(chat.Button{Label: label, Action: back})}},
	}
}
