// Package streamsearch finds a fixed byte pattern in a forward-only stream,
// reading every byte exactly once.
package streamsearch

import (
	"errors"
	"io"
)

const (
	// MaxPatternLength is the longest pattern Compile accepts.
	MaxPatternLength = 1024

	defaultBufSize = 4096
)

var (
	ErrEmptyPattern   = errors.New("streamsearch: empty pattern")
	ErrPatternTooLong = errors.New("streamsearch: pattern longer than MaxPatternLength")
)

// DefaultBufferSize is the read buffer size callers should use when wrapping
// files in a bufio.Reader before searching them.
func DefaultBufferSize(patternLen int) int {
	if 2*patternLen > defaultBufSize {
		return 2 * patternLen
	}
	return defaultBufSize
}

// Searcher finds the next occurrence of a pattern in a stream.
type Searcher interface {
	//Consumes r up to the end of the next match and returns the number of
	//bytes read. found is false when r was exhausted first.
	Search(r io.ByteReader) (end int64, found bool, err error)

	//Length of the pattern in bytes
	Len() int
}
