package mrt

import (
	"errors"
	"fmt"
)

// ErrorKind classifies decoder failures.
type ErrorKind uint8

const (
	// KindEndOfStream means the header read returned no bytes at all.
	KindEndOfStream ErrorKind = iota
	// KindUnexpectedEOF means the stream ended inside the common header.
	KindUnexpectedEOF
	// KindNotEnoughBytes means the stream ended before the declared body length.
	KindNotEnoughBytes
	// KindInvalidLength means the header declared an implausible body length.
	KindInvalidLength
	// KindIO covers any other failure of the underlying reader.
	KindIO
	// KindParse means a fully read body held malformed content.
	KindParse
	// KindTruncated means a field ran past the end of a fully read body.
	KindTruncated
	// KindUnsupported means the record type or subtype is not decoded.
	KindUnsupported
	// KindFiltered means the record decoded but the decoder's filter rejected it.
	KindFiltered
)

// fatalKinds marks the kinds after which the stream cannot be realigned to a
// record boundary.
var fatalKinds = [...]bool{
	KindEndOfStream:    true,
	KindUnexpectedEOF:  true,
	KindNotEnoughBytes: true,
	KindInvalidLength:  true,
	KindIO:             true,
	KindParse:          false,
	KindTruncated:      false,
	KindUnsupported:    false,
	KindFiltered:       false,
}

var kindNames = [...]string{
	KindEndOfStream:    "end of stream",
	KindUnexpectedEOF:  "unexpected eof",
	KindNotEnoughBytes: "not enough bytes",
	KindInvalidLength:  "invalid record length",
	KindIO:             "io error",
	KindParse:          "parse error",
	KindTruncated:      "truncated message",
	KindUnsupported:    "unsupported",
	KindFiltered:       "filtered",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Fatal reports whether decoding may continue after an error of this kind.
// Unknown kinds are fatal.
func (k ErrorKind) Fatal() bool {
	if int(k) < len(fatalKinds) {
		return fatalKinds[k]
	}
	return true
}

// ParserError is returned by Decoder.Decode for every failure.
type ParserError struct {
	Kind ErrorKind
	Err  error
}

func (e *ParserError) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *ParserError) Unwrap() error { return e.Err }

// IsFatal classifies err using the fixed kind table. Errors that did not come
// from this package are treated as fatal.
func IsFatal(err error) bool {
	var pe *ParserError
	if errors.As(err, &pe) {
		return pe.Kind.Fatal()
	}
	return true
}

// KindOf returns the kind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var pe *ParserError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

func newError(kind ErrorKind, format string, args ...any) *ParserError {
	return &ParserError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

var errShort = errors.New("field extends past end of record")
