// Package errs holds the error taxonomy shared by streams, parsers and the
// extraction engine.
package errs

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindIO
	KindFormat
	KindUnsupported
	KindUnknownFormat
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io error"
	case KindFormat:
		return "format error"
	case KindUnsupported:
		return "unsupported operation"
	case KindUnknownFormat:
		return "unknown format"
	case KindNotFound:
		return "not found"
	default:
		return "error"
	}
}

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
func (e *Error) Cause() error  { return e.Err }

func newf(kind Kind, format string, a ...interface{}) error {
	return &Error{Kind: kind, Err: errors.Errorf(format, a...)}
}

func wrapf(kind Kind, err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: errors.Wrapf(err, format, a...)}
}

func IO(format string, a ...interface{}) error          { return newf(KindIO, format, a...) }
func Format(format string, a ...interface{}) error      { return newf(KindFormat, format, a...) }
func Unsupported(format string, a ...interface{}) error { return newf(KindUnsupported, format, a...) }
func NotFound(format string, a ...interface{}) error    { return newf(KindNotFound, format, a...) }
func UnknownFormat(format string, a ...interface{}) error {
	return newf(KindUnknownFormat, format, a...)
}

func WrapIO(err error, format string, a ...interface{}) error {
	return wrapf(KindIO, err, format, a...)
}

func WrapFormat(err error, format string, a ...interface{}) error {
	return wrapf(KindFormat, err, format, a...)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ExtractionError reports a failed file extraction. LastGoodOffset is the
// number of bytes that reached the destination before the failure.
type ExtractionError struct {
	Path           string
	LastGoodOffset int64
	Err            error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("[extract] '%s' failed after %d bytes: %v", e.Path, e.LastGoodOffset, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
func (e *ExtractionError) Cause() error  { return e.Err }

func AsExtraction(err error) (*ExtractionError, bool) {
	var e *ExtractionError
	ok := stderrors.As(err, &e)
	return e, ok
}
