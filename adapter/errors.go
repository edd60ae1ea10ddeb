package adapter

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrKind categorises an engine failure so callers can branch without
// matching on message text.
type ErrKind int

const (
	ErrKindGeneric             ErrKind = iota // unclassified engine failure
	ErrKindConnection                         // cannot reach the engine or the handle is gone
	ErrKindBusy                               // lock wait exceeded the busy timeout
	ErrKindUniqueViolation                    // UNIQUE or PRIMARY KEY constraint
	ErrKindCheckViolation                     // CHECK constraint
	ErrKindNotNullViolation                   // NOT NULL constraint
	ErrKindForeignKeyViolation                // FOREIGN KEY constraint
	ErrKindConstraintViolation                // any other constraint failure
	ErrKindArgument                           // a bound argument the engine rejected
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindConnection:
		return "connection"
	case ErrKindBusy:
		return "busy"
	case ErrKindUniqueViolation:
		return "unique_violation"
	case ErrKindCheckViolation:
		return "check_violation"
	case ErrKindNotNullViolation:
		return "not_null_violation"
	case ErrKindForeignKeyViolation:
		return "foreign_key_violation"
	case ErrKindConstraintViolation:
		return "constraint_violation"
	case ErrKindArgument:
		return "argument"
	default:
		return "generic"
	}
}

// Error is the error type returned for every engine-side failure.
// Message is the engine's text verbatim; Stack is diagnostic only.
type Error struct {
	Kind    ErrKind
	Message string
	Stack   string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrClosed is the cause of every error returned after Disconnect.
var ErrClosed = errors.New("sqlbridge: connection is closed")

func newError(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Patterns are checked in order; the first match wins.
var classifiers = []struct {
	kind ErrKind
	re   *regexp.Regexp
}{
	{ErrKindUniqueViolation, regexp.MustCompile(`UNIQUE constraint failed|PRIMARY KEY must be unique|(is|are) not unique`)},
	{ErrKindNotNullViolation, regexp.MustCompile(`NOT NULL constraint failed|may not be NULL`)},
	{ErrKindForeignKeyViolation, regexp.MustCompile(`FOREIGN KEY constraint failed`)},
	{ErrKindCheckViolation, regexp.MustCompile(`CHECK constraint failed`)},
	{ErrKindConstraintViolation, regexp.MustCompile(`constraint failed`)},
	{ErrKindBusy, regexp.MustCompile(`database( table)? is locked|SQLITE_BUSY|SQLITE_LOCKED`)},
	{ErrKindArgument, regexp.MustCompile(`tried to bind a value of an unknown type|Wrong API use|bind or column index out of range|not enough args|expected \d+ arguments?, got \d+`)},
	{ErrKindConnection, regexp.MustCompile(`database connection is closed|unable to open database|file is not a database|sql: database is closed|sql: connection is already closed`)},
}

// Classify maps an engine failure message to an *Error. It never fails;
// unmatched messages become ErrKindGeneric with the message preserved.
func Classify(message, stack string) *Error {
	kind := ErrKindGeneric
	for _, c := range classifiers {
		if c.re.MatchString(message) {
			kind = c.kind
			break
		}
	}
	return &Error{Kind: kind, Message: message, Stack: stack}
}

// --- Predicates ---

// IsConnection reports whether err means the engine handle is unusable.
func IsConnection(err error) bool {
	return ErrorKindOf(err) == ErrKindConnection
}

// IsBusy reports whether err is a lock wait timeout.
func IsBusy(err error) bool {
	return ErrorKindOf(err) == ErrKindBusy
}

// IsRetryable reports whether the caller may retry the statement as is.
func IsRetryable(err error) bool {
	return IsBusy(err)
}

// IsUniqueViolation reports whether err is a uniqueness violation.
func IsUniqueViolation(err error) bool {
	return ErrorKindOf(err) == ErrKindUniqueViolation
}

// IsCheckViolation reports whether err is a CHECK constraint violation.
func IsCheckViolation(err error) bool {
	return ErrorKindOf(err) == ErrKindCheckViolation
}

// IsNotNullViolation reports whether err is a NOT NULL constraint violation.
func IsNotNullViolation(err error) bool {
	return ErrorKindOf(err) == ErrKindNotNullViolation
}

// IsForeignKeyViolation reports whether err is a FOREIGN KEY constraint violation.
func IsForeignKeyViolation(err error) bool {
	return ErrorKindOf(err) == ErrKindForeignKeyViolation
}

// IsConstraintViolation reports whether err is any kind of constraint violation.
func IsConstraintViolation(err error) bool {
	switch ErrorKindOf(err) {
	case ErrKindUniqueViolation, ErrKindCheckViolation, ErrKindNotNullViolation,
		ErrKindForeignKeyViolation, ErrKindConstraintViolation:
		return true
	}
	return false
}

// IsArgument reports whether err was caused by a rejected bound argument.
func IsArgument(err error) bool {
	return ErrorKindOf(err) == ErrKindArgument
}

// ErrorKindOf extracts the ErrKind from any error in the chain. Errors that are not
// *Error report ErrKindGeneric.
func ErrorKindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindGeneric
}
