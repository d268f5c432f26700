package speakerstore

import (
	"errors"
	"fmt"
	"regexp"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrStore matches every [*Error]: the backing store failed.
	ErrStore = errors.New("speakerstore: store failure")

	// ErrInvalid matches every [*ValidationError].
	ErrInvalid = errors.New("speakerstore: invalid input")

	// ErrNotFound is returned when a speaker does not exist.
	ErrNotFound = errors.New("speakerstore: not found")
)

// Error wraps a failure of the underlying kv store.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("speakerstore: %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrStore }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// ValidationError rejects a malformed identifier before the store is
// touched. Its message is safe to show to clients.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

const maxNameLen = 128

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateUserID checks that id is 1-64 characters of [A-Za-z0-9_-].
func ValidateUserID(id string) error {
	if !userIDPattern.MatchString(id) {
		return &ValidationError{Field: "user id", Value: id, Reason: "must be 1-64 characters of letters, digits, '_' or '-'"}
	}
	return nil
}

// ValidateName checks a speaker name: non-empty, at most 128 characters,
// no ':' and no control characters.
func ValidateName(name string) error {
	switch {
	case name == "":
		return &ValidationError{Field: "speaker name", Value: name, Reason: "must not be empty"}
	case !utf8.ValidString(name):
		return &ValidationError{Field: "speaker name", Value: name, Reason: "must be valid UTF-8"}
	case utf8.RuneCountInString(name) > maxNameLen:
		return &ValidationError{Field: "speaker name", Value: name, Reason: fmt.Sprintf("must be at most %d characters", maxNameLen)}
	}
	for _, r := range name {
		if r == ':' || unicode.IsControl(r) {
			return &ValidationError{Field: "speaker name", Value: name, Reason: "must not contain ':' or control characters"}
		}
	}
	return nil
}
