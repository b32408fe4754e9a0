package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProtocol         = errors.New("protocol error")
	ErrPermissionDenied = errors.New("permission denied")
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrTransport        = errors.New("transport failure")

	ErrNameInvalid = fmt.Errorf("%w: invalid nickname", ErrValidation)
	ErrNameTaken   = fmt.Errorf("%w: nickname in use", ErrValidation)
	ErrNameBanned  = fmt.Errorf("%w: nickname banned", ErrValidation)
)

// CommandError carries the text shown to the issuer of a failed command.
type CommandError struct {
	Kind error
	Msg  string
}

func (e *CommandError) Error() string { return e.Msg }
func (e *CommandError) Unwrap() error { return e.Kind }

func NewCommandError(kind error, format string, args ...any) *CommandError {
	return &CommandError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
