package main

import (
	"errors"
	"fmt"

	"github.com/warpfork/go-errcat"

	"go.cluttr.dev/formula/internal/metaerr"
)

// ErrorKind categorizes the failures of a formula run.
type ErrorKind string

const (
	ErrUsage     ErrorKind = "UsageError"
	ErrFormula   ErrorKind = "FormulaError"
	ErrDownload  ErrorKind = "DownloadError"
	ErrIntegrity ErrorKind = "IntegrityError"
	ErrBuild     ErrorKind = "BuildError"
	ErrTest      ErrorKind = "TestError"
)

var exitCodes = map[ErrorKind]int{
	ErrUsage:     2,
	ErrFormula:   3,
	ErrDownload:  4,
	ErrIntegrity: 5,
	ErrBuild:     6,
	ErrTest:      7,
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if code, ok := exitCodes[KindOf(err)]; ok {
		return code
	}
	return 1
}

// KindOf returns the category of the first categorized error in the chain of
// err, or the empty kind.
func KindOf(err error) ErrorKind {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if k, ok := errcat.Category(e).(ErrorKind); ok {
			return k
		}
	}
	return ""
}

// IsKind reports whether err carries the given category.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

func newError(kind ErrorKind, format string, args ...any) error {
	return errcat.Errorf(kind, format, args...)
}

// categorize tags err with kind while keeping the metadata collected so far.
func categorize(kind ErrorKind, err error, kv ...any) error {
	if err == nil {
		return nil
	}
	meta := append(metaerr.GetMetadata(err), kv...)
	err = errcat.Recategorize(kind, err)
	if len(meta) == 0 {
		return err
	}
	return metaerr.WithMetadata(err, meta...)
}

func stageError(kind ErrorKind, stage string, err error, kv ...any) error {
	return categorize(kind, fmt.Errorf("%s: %w", stage, err), kv...)
}
