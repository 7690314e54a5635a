// Package records turns a byte stream into a sequence of decode attempts,
// separating a clean end of stream from a broken stream from a single bad
// record.
package records

import (
	"errors"
	"io"
	"iter"
)

// State is the iterator's lifecycle. Active is the only non-terminal state.
type State uint8

const (
	Active State = iota
	// Ended means the stream finished on a record boundary.
	Ended
	// Failed means a fatal error was reported and the stream abandoned.
	Failed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Ended:
		return "ended"
	case Failed:
		return "failed"
	default:
		return "invalid"
	}
}

// Attempt is the outcome of one decode call. Err is nil for a decoded record.
// Fatal attempts are always the last ones produced.
type Attempt[T any] struct {
	Record T
	Err    error
	Fatal  bool
}

// Decoder reads exactly one record from r.
type Decoder[T any] func(r io.Reader) (T, error)

// Classifier reports whether err leaves the stream unusable.
type Classifier func(err error) bool

// Iterator runs a Decoder repeatedly over one stream. It is not safe for
// concurrent use.
type Iterator[T any] struct {
	probe  probe
	decode Decoder[T]
	fatal  Classifier
	state  State
	err    error
}

// New returns an iterator over r. A nil classifier treats every error as
// fatal.
func New[T any](r io.Reader, decode Decoder[T], fatal Classifier) *Iterator[T] {
	if fatal == nil {
		fatal = func(error) bool { return true }
	}
	return &Iterator[T]{
		probe:  probe{r: r},
		decode: decode,
		fatal:  fatal,
	}
}

// Next performs one decode attempt. It returns false once the stream has
// ended or after a fatal attempt has been returned; the underlying reader is
// not touched again after that.
//
// A failed decode whose first read of the call hit end of stream is a clean
// end and produces no attempt.
func (it *Iterator[T]) Next() (Attempt[T], bool) {
	if it.state != Active {
		return Attempt[T]{}, false
	}

	it.probe.reset()
	rec, err := it.decode(&it.probe)
	switch {
	case err == nil:
		return Attempt[T]{Record: rec}, true
	case it.probe.startedWithEOF:
		it.state = Ended
		return Attempt[T]{}, false
	case it.fatal(err):
		it.state = Failed
		it.err = err
		return Attempt[T]{Err: err, Fatal: true}, true
	default:
		return Attempt[T]{Err: err}, true
	}
}

// All yields the remaining attempts. Like Next it is single pass.
func (it *Iterator[T]) All() iter.Seq[Attempt[T]] {
	return func(yield func(Attempt[T]) bool) {
		for {
			a, ok := it.Next()
			if !ok || !yield(a) {
				return
			}
		}
	}
}

// State reports where the iterator is in its lifecycle.
func (it *Iterator[T]) State() State { return it.state }

// Err returns the fatal error that stopped iteration, if any.
func (it *Iterator[T]) Err() error { return it.err }

// probe remembers whether the first decisive read of the current decode call
// returned end of stream without data. Zero length reads and reads returning
// (0, nil) do not decide it.
type probe struct {
	r              io.Reader
	decided        bool
	startedWithEOF bool
}

func (p *probe) reset() {
	p.decided = false
	p.startedWithEOF = false
}

func (p *probe) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if !p.decided && len(b) > 0 && (n > 0 || err != nil) {
		p.decided = true
		p.startedWithEOF = n == 0 && errors.Is(err, io.EOF)
	}
	return n, err
}
