package incremental

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures. The numeric values are stable and are
// surfaced as result codes by the public entry points.
type Kind int

const (
	KindUnknown Kind = iota
	KindPageRead
	KindBackupInit
	KindIntegrityCheck
	KindBackupMissing
	KindManifestRead
	KindRestoreFailed
	KindLocked
)

// Sentinels for errors.Is matching against an *Error of the same kind.
var (
	ErrUnknown        = errors.New("unknown error")
	ErrPageRead       = errors.New("failed to get database page data")
	ErrBackupInit     = errors.New("failed to init backup file")
	ErrIntegrityCheck = errors.New("integrity check failed")
	ErrBackupMissing  = errors.New("backup does not exist")
	ErrManifestRead   = errors.New("failed to read manifest")
	ErrRestoreFailed  = errors.New("failed to restore backup")
	ErrLocked         = errors.New("backup unit is locked")
)

var kindSentinels = map[Kind]error{
	KindUnknown:        ErrUnknown,
	KindPageRead:       ErrPageRead,
	KindBackupInit:     ErrBackupInit,
	KindIntegrityCheck: ErrIntegrityCheck,
	KindBackupMissing:  ErrBackupMissing,
	KindManifestRead:   ErrManifestRead,
	KindRestoreFailed:  ErrRestoreFailed,
	KindLocked:         ErrLocked,
}

// String returns the human readable description of k.
func (k Kind) String() string {
	if s, ok := kindSentinels[k]; ok {
		return s.Error()
	}
	return ErrUnknown.Error()
}

// Code returns the result code for k. Unknown maps to -1.
func (k Kind) Code() int {
	if k <= KindUnknown || k > KindLocked {
		return -1
	}
	return int(k)
}

// Error is a classified engine failure.
type Error struct {
	Kind Kind
	Msg  string // Context, may be empty
	Err  error  // Underlying error
}

// Error formats as "(code) description: message".
func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if msg == "" {
		return fmt.Sprintf("(%d) %s", e.Kind, e.Kind)
	}
	return fmt.Sprintf("(%d) %s: %s", e.Kind, e.Kind, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows an *Error to match the sentinel of its kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Code maps err to a result code: 0 for nil, the kind code for classified
// failures, -1 for anything else.
func Code(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).Code()
}
