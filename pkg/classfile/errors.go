package classfile

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Use errors.Is against these to classify a failure.
var (
	// ErrMalformedInput marks structurally invalid binary data. It is fatal
	// for the one input unit only.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInternalConsistency marks an analysis or compaction bug. It is never
	// recovered from.
	ErrInternalConsistency = errors.New("internal consistency violation")

	// ErrUnsupported marks a construct the handlers do not model. Callers log
	// it and degrade conservatively.
	ErrUnsupported = errors.New("unsupported construct")
)

// Error carries the location of a failure: the class, the member and, for
// instructions, the byte offset inside the code attribute.
type Error struct {
	Kind   error
	Class  string
	Member string
	Offset int // -1 when not applicable
	Err    error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Class != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Class)
		if e.Member != "" {
			sb.WriteString(".")
			sb.WriteString(e.Member)
		}
	}
	if e.Offset >= 0 {
		fmt.Fprintf(&sb, " at offset %d", e.Offset)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func malformed(format string, args ...interface{}) error {
	return &Error{Kind: ErrMalformedInput, Offset: -1, Err: fmt.Errorf(format, args...)}
}

// Inconsistent builds an internal-consistency error for the given location.
func Inconsistent(class, member string, offset int, format string, args ...interface{}) error {
	return &Error{Kind: ErrInternalConsistency, Class: class, Member: member, Offset: offset, Err: fmt.Errorf(format, args...)}
}

// Unsupported builds an unsupported-construct error for the given location.
func Unsupported(class, member string, offset int, format string, args ...interface{}) error {
	return &Error{Kind: ErrUnsupported, Class: class, Member: member, Offset: offset, Err: fmt.Errorf(format, args...)}
}

// WithLocation fills in missing location details on a classfile error, or
// wraps a foreign error as malformed input for that class.
func WithLocation(err error, class, member string) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		out := *ce
		if out.Class == "" {
			out.Class = class
		}
		if out.Member == "" {
			out.Member = member
		}
		return &out
	}
	return &Error{Kind: ErrMalformedInput, Class: class, Member: member, Offset: -1, Err: err}
}
