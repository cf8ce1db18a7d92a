package alarm

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not_found")
	ErrNotRinging   = errors.New("not_ringing")
	ErrNoFreeSlot   = errors.New("max_alarms")
	ErrMissingToken = errors.New("missing_token")
	ErrBadToken     = errors.New("bad_token")
)

// Validation codes reported to API callers.
const (
	CodeTimeInvalid     = "time_invalid"
	CodeSnoozeInvalid   = "snooze_invalid"
	CodeOnceDateInvalid = "once_date_invalid"
)

// ValidationError rejects a definition change. Code is the short tag
// returned to the caller.
type ValidationError struct {
	Field string
	Code  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Code)
}
