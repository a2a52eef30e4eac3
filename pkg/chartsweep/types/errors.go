package types

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error so callers can decide whether to skip,
// continue or abort.
type Kind int

// Error kinds.
const (
	// KindScan is a file or folder that could not be read while indexing.
	KindScan Kind = iota + 1
	// KindDirectory is a merge whose source or destination is missing or invalid.
	KindDirectory
	// KindNameParse is a folder without a readable artist and title.
	KindNameParse
	// KindConflict is a rename or relocation whose target already exists.
	KindConflict
	// KindExternal is a failure in a table fetch, archive or score database.
	KindExternal
)

// Sentinel errors matching each kind with errors.Is.
var (
	ErrScan      = errors.New("scan error")
	ErrDirectory = errors.New("directory error")
	ErrNameParse = errors.New("name parse error")
	ErrConflict  = errors.New("conflict")
	ErrExternal  = errors.New("external error")
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindScan:
		return "scan"
	case KindDirectory:
		return "directory"
	case KindNameParse:
		return "name_parse"
	case KindConflict:
		return "conflict"
	case KindExternal:
		return "external"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindScan:
		return ErrScan
	case KindDirectory:
		return ErrDirectory
	case KindNameParse:
		return ErrNameParse
	case KindConflict:
		return ErrConflict
	case KindExternal:
		return ErrExternal
	default:
		return nil
	}
}

// Error is a classified pipeline error.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// E builds an *Error.
func E(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg = fmt.Sprintf("%s %s", msg, e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel for e.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
