// Package metaerr attaches key/value metadata to errors so it can be logged
// at the point where an error is finally handled.
package metaerr

import "errors"

type metaError struct {
	err  error
	meta []any
}

func (e *metaError) Error() string {
	return e.err.Error()
}

func (e *metaError) Unwrap() error {
	return e.err
}

// WithMetadata wraps err and records the given key/value pairs.
// Pairs are passed the same way as to slog.Logger.With.
func WithMetadata(err error, kv ...any) error {
	if err == nil {
		return nil
	}
	if len(kv)%2 != 0 {
		kv = append(kv, "!MISSING")
	}
	return &metaError{err: err, meta: kv}
}

// GetMetadata collects the metadata of every wrapped error in the chain,
// outermost first.
func GetMetadata(err error) []any {
	var meta []any
	for err != nil {
		var me *metaError
		if !errors.As(err, &me) {
			break
		}
		meta = append(meta, me.meta...)
		err = me.err
	}
	return meta
}
