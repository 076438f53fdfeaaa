package config

import "fmt"

// Error describes a malformed pipeline declaration. It is fatal: expansion
// aborts and no job ever starts.
type Error struct {
	Msg string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Msg
}

// Errorf builds a declaration Error from a format string.
func Errorf(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}
