// Package txn runs units of work against an overlay View and commits or
// aborts their writes as a whole.
package txn

import (
	"errors"

	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/log"
)

var (
	// ErrAborted marks every failed transaction. A unit of work may also
	// return it directly to abort without a specific cause.
	ErrAborted = errors.New("transaction aborted")
	// ErrNotOpen is returned when a committed or aborted View is used.
	ErrNotOpen = errors.New("transaction is not open")
)

// Error is returned by Run when a transaction ends Aborted.
// It matches ErrAborted and the underlying cause with errors.Is.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil || e.Err == ErrAborted {
		return ErrAborted.Error()
	}
	return ErrAborted.Error() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAborted}
	}
	return []error{ErrAborted, e.Err}
}

// Run invokes fn exactly once with a fresh View over base.
// If fn succeeds, the buffered writes are flushed with a single
// base.BatchWrite and fn's result is returned. If fn fails, panics or the
// flush fails, the writes are discarded and an *Error is returned.
//
// Passing an open View as base nests the transaction: its commit lands in the
// parent's buffer and is undone if the parent aborts.
func Run[R any](base db.TransactableStorage, fn func(*View) (R, error)) (R, error) {
	var zero R
	if parent, ok := base.(*View); ok && parent.state != Open {
		return zero, &Error{Err: ErrNotOpen}
	}

	v := newView(base)
	logger := log.Txn.With().Str("txn", v.id.String()).Int("depth", v.depth).Logger()
	logger.Debug().Stringer("base", base).Msg("begin")

	done := false
	defer func() {
		if !done {
			v.discard(Aborted)
			logger.Debug().Msg("aborted on panic")
		}
	}()

	result, err := fn(v)
	if err != nil {
		done = true
		v.discard(Aborted)
		logger.Debug().Err(err).Msg("aborted")
		if txErr, ok := err.(*Error); ok { //nolint:errorlint // only an unwrapped nested result is passed through
			return zero, txErr
		}
		return zero, &Error{Err: err}
	}

	ops := v.operations()
	if err := base.BatchWrite(ops); err != nil {
		done = true
		v.discard(Aborted)
		logger.Warn().Err(err).Int("ops", len(ops)).Msg("flush failed")
		return zero, &Error{Err: err}
	}
	done = true
	v.discard(Committed)
	logger.Debug().Int("ops", len(ops)).Msg("committed")
	return result, nil
}

// Do is Run for units of work without a result.
func Do(base db.TransactableStorage, fn func(*View) error) error {
	_, err := Run(base, func(v *View) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}
