// Package decompress picks a stream decoder for a source from its name.
package decompress

import (
	"compress/bzip2"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec is the closed set of transforms the router can apply.
type Codec uint8

const (
	None Codec = iota
	Gzip
	Bzip2
	LZ4
	Zstd
)

var suffixes = map[string]Codec{
	".gz":   Gzip,
	".gzip": Gzip,
	".bz2":  Bzip2,
	".bz":   Bzip2,
	".lz4":  LZ4,
	".lz":   LZ4,
	".zst":  Zstd,
	".zstd": Zstd,
}

// Suffixes lists every extension the router recognises.
func Suffixes() []string {
	out := make([]string, 0, len(suffixes))
	for s := range suffixes {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Bzip2:
		return "bzip2"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ForName maps a file name or URL to its codec by extension. Query strings and
// fragments are ignored and matching is case-insensitive. Anything
// unrecognised maps to None.
func ForName(name string) Codec {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if c, ok := suffixes[strings.ToLower(path.Ext(name))]; ok {
		return c
	}
	return None
}

// Wrap returns src decoded according to the codec for name. It never fails:
// decoder setup is deferred to the first Read so a corrupt header shows up as
// a read error to whoever consumes the stream. Closing the result closes src.
func Wrap(name string, src io.ReadCloser) io.ReadCloser {
	return ForName(name).Wrap(src)
}

// Wrap applies c to src. None returns src unchanged.
func (c Codec) Wrap(src io.ReadCloser) io.ReadCloser {
	if c == None {
		return src
	}
	return &lazyReader{codec: c, src: src}
}

type lazyReader struct {
	codec    Codec
	src      io.ReadCloser
	dec      io.Reader
	closeDec func() error
	err      error
}

func (l *lazyReader) Read(p []byte) (int, error) {
	if l.dec == nil && l.err == nil {
		l.dec, l.closeDec, l.err = l.codec.open(l.src)
	}
	if l.err != nil {
		return 0, l.err
	}
	return l.dec.Read(p)
}

func (l *lazyReader) Close() error {
	var err error
	if l.closeDec != nil {
		err = l.closeDec()
	}
	if cerr := l.src.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (c Codec) open(r io.Reader) (io.Reader, func() error, error) {
	switch c {
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case Bzip2:
		return bzip2.NewReader(r), nil, nil
	case LZ4:
		return lz4.NewReader(r), nil, nil
	case Zstd:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, err
		}
		return zr, func() error { zr.Close(); return nil }, nil
	default:
		return r, nil, nil
	}
}
