package eligibility

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds surfaced to callers. Match with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrGuardFailed       = errors.New("guard failed")
	ErrUnavailable       = errors.New("unavailable")
)

// errVersionConflict is returned by repositories when the stored case moved
// on since it was loaded. The service reports it as ErrUnavailable.
var errVersionConflict = errors.New("case was modified concurrently")

func invalidArg(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func notFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// UnmetKind names the type of precondition a guard found missing.
type UnmetKind string

const (
	UnmetDocument        UnmetKind = "document"
	UnmetProviderRole    UnmetKind = "provider_role"
	UnmetDisqualified    UnmetKind = "disqualification"
	UnmetDisqualifyEntry UnmetKind = "disqualification_record"
	UnmetSurgery         UnmetKind = "surgery"
)

// UnmetCondition is one failed precondition of a transition guard.
type UnmetCondition struct {
	Kind    UnmetKind `json:"kind"`
	Name    string    `json:"name"`
	Message string    `json:"message"`
}

// GuardError reports a transition whose edge exists but whose guard is
// false. It matches ErrGuardFailed.
type GuardError struct {
	From  Status           `json:"from"`
	To    Status           `json:"to"`
	Unmet []UnmetCondition `json:"unmet"`
}

func (e *GuardError) Error() string {
	msgs := make([]string, 0, len(e.Unmet))
	for _, u := range e.Unmet {
		msgs = append(msgs, u.Message)
	}
	return fmt.Sprintf("cannot move from %s to %s: %s", e.From, e.To, strings.Join(msgs, "; "))
}

func (e *GuardError) Is(target error) bool {
	return target == ErrGuardFailed
}
