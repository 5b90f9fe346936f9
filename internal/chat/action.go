package chat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxPayloadBytes is the largest payload a menu button may carry.
const MaxPayloadBytes = 64

var (
	ErrUnknownAction  = errors.New("unknown action")
	ErrPayloadTooLong = fmt.Errorf("action payload exceeds %d bytes", MaxPayloadBytes)
)

// ActionKind identifies what a menu button does.
type ActionKind int

// Action kinds.
const (
	ActionSubjects ActionKind = iota + 1
	ActionLabs
	ActionRecord
	ActionPage
	ActionAdd
	ActionCancel
)

var kindTags = map[ActionKind]string{
	ActionSubjects: "subj",
	ActionLabs:     "labs",
	ActionRecord:   "rec",
	ActionPage:     "page",
	ActionAdd:      "add",
	ActionCancel:   "cancel",
}

func (k ActionKind) String() string {
	if tag, ok := kindTags[k]; ok {
		return tag
	}
	return "unknown"
}

// Action is the payload of a menu button. Only the field matching Kind is
// meaningful.
type Action struct {
	Kind    ActionKind
	Subject string
	ID      int64
	Page    int
}

// Subjects opens the subject list.
func Subjects() Action { return Action{Kind: ActionSubjects} }

// Labs opens the records of a subject.
func Labs(subject string) Action { return Action{Kind: ActionLabs, Subject: subject} }

// Record opens the detail view of a record.
func Record(id int64) Action { return Action{Kind: ActionRecord, ID: id} }

// Page opens a page of the flat listing.
func Page(page int) Action { return Action{Kind: ActionPage, Page: page} }

// Add starts the entry workflow.
func Add() Action { return Action{Kind: ActionAdd} }

// Cancel aborts the entry workflow.
func Cancel() Action { return Action{Kind: ActionCancel} }

// Encode returns the wire payload of the action.
func (a Action) Encode() (string, error) {
	tag, ok := kindTags[a.Kind]
	if !ok {
		return "", ErrUnknownAction
	}

	var s string
	switch a.Kind {
	case ActionLabs:
		s = tag + ":" + a.Subject
	case ActionRecord:
		s = tag + ":" + strconv.FormatInt(a.ID, 10)
	case ActionPage:
		s = tag + ":" + strconv.Itoa(a.Page)
	default:
		s = tag
	}

	if len(s) > MaxPayloadBytes {
		return "", ErrPayloadTooLong
	}
	return s, nil
}

// ParseAction decodes a payload produced by Encode.
func ParseAction(payload string) (Action, error) {
	tag, arg, hasArg := strings.Cut(payload, ":")

	switch tag {
	case "subj":
		return Subjects(), nil
	case "add":
		return Add(), nil
	case "cancel":
		return Cancel(), nil
	case "labs":
		if !hasArg || arg == "" {
			return Action{}, fmt.Errorf("labs action without subject: %w", ErrUnknownAction)
		}
		return Labs(arg), nil
	case "rec":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return Action{}, fmt.Errorf("record action id %q: %w", arg, ErrUnknownAction)
		}
		return Record(id), nil
	case "page":
		page, err := strconv.Atoi(arg)
		if err != nil {
			return Action{}, fmt.Errorf("page action number %q: %w", arg, ErrUnknownAction)
		}
		return Page(page), nil
	}

	return Action{}, fmt.Errorf("payload %q: %w", payload, ErrUnknownAction)
}
