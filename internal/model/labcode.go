package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LabCode is a stored lab code: source text filed under a subject, lab
// number and variant.
type LabCode struct {
	ID        int64     `json:"id"`
	Subject   string    `json:"subject"`
	LabNumber string    `json:"lab_number"`
	Variant   string    `json:"variant"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// Label returns the short menu label of the record.
func (c LabCode) Label() string {
	return fmt.Sprintf("lab %s variant %s", c.LabNumber, c.Variant)
}

// MaxSubjectBytes bounds subject names so they fit a menu button payload.
const MaxSubjectBytes = 56

// Field names, used in validation errors and prompts.
const (
	FieldSubject   = "subject"
	FieldLabNumber = "lab number"
	FieldVariant   = "variant"
	FieldCode      = "code"
)

var (
	ErrEmptyField     = errors.New("value must not be empty")
	ErrSubjectTooLong = fmt.Errorf("subject must be at most %d bytes", MaxSubjectBytes)
)

// FieldError reports which field failed validation.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error { return e.Err }

// NewLabCode holds the fields supplied when creating a lab code.
type NewLabCode struct {
	Subject   string
	LabNumber string
	Variant   string
	Code      string
}

// Normalize trims surrounding whitespace from the label fields. The code is
// kept verbatim.
func (n NewLabCode) Normalize() NewLabCode {
	n.Subject = strings.TrimSpace(n.Subject)
	n.LabNumber = strings.TrimSpace(n.LabNumber)
	n.Variant = strings.TrimSpace(n.Variant)
	return n
}

// Validate checks that every field is present and the subject fits its limit.
func (n NewLabCode) Validate() error {
	if err := ValidateField(FieldSubject, n.Subject); err != nil {
		return err
	}
	if err := ValidateField(FieldLabNumber, n.LabNumber); err != nil {
		return err
	}
	if err := ValidateField(FieldVariant, n.Variant); err != nil {
		return err
	}
	return ValidateField(FieldCode, n.Code)
}

// ValidateField validates a single field value.
func ValidateField(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &FieldError{Field: field, Err: ErrEmptyField}
	}
	if field == FieldSubject && len(strings.TrimSpace(value)) > MaxSubjectBytes {
		return &FieldError{Field: field, Err: ErrSubjectTooLong}
	}
	return nil
}
