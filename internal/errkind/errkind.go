// Package errkind classifies the OS errors returned by file and process APIs
// into a small set of kinds that call sites can match exhaustively.
package errkind

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
)

// Kind is the category of a lifecycle error.
type Kind int

const (
	Other Kind = iota
	NotFound
	PermissionDenied
	NoSuchProcess
	InvalidSignal
	UnsupportedPlatform
	AlreadyRunning
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case PermissionDenied:
		return "permission_denied"
	case NoSuchProcess:
		return "no_such_process"
	case InvalidSignal:
		return "invalid_signal"
	case UnsupportedPlatform:
		return "unsupported_platform"
	case AlreadyRunning:
		return "already_running"
	default:
		return "other"
	}
}

// Error carries a Kind together with the operation and path it happened on.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the kind derived from Classify.
func New(op, path string, err error) *Error {
	return &Error{Kind: Classify(err), Op: op, Path: path, Err: err}
}

// Newf builds an Error of an explicit kind.
func Newf(kind Kind, op, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// Classify maps err onto a Kind. A nil error is Other.
func Classify(err error) Kind {
	if err == nil {
		return Other
	}
	var ke *Error
	if errors.As(err, &ke) && ke.Kind != Other {
		return ke.Kind
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NotFound
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return NoSuchProcess
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EPERM), errors.Is(err, syscall.EACCES):
		return PermissionDenied
	case errors.Is(err, syscall.EINVAL):
		return InvalidSignal
	}
	return Other
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool { return err != nil && Classify(err) == kind }

type fatalError struct{ err error }

func (f *fatalError) Error() string { return f.err.Error() }
func (f *fatalError) Unwrap() error { return f.err }

// Fatal marks err as belonging to the fatal tier: the process must abort.
func Fatal(err error) error {
	if err == nil || IsFatal(err) {
		return err
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f)
}
