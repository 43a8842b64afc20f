package streamsearch

import (
	"fmt"
	"io"
)

// Pattern is a compiled search pattern: the pattern bytes and their
// Knuth-Morris-Pratt border table. A Pattern is never modified after
// Compile returns, so one value may serve any number of concurrent
// searches.
type Pattern struct {
	pattern []byte
	borders []int
}

var _ Searcher = (*Pattern)(nil)

// Compile copies pattern and precomputes its border table.
func Compile(pattern []byte) (*Pattern, error) {
	plen := len(pattern)

	if plen == 0 {
		return nil, ErrEmptyPattern
	}
	if plen > MaxPatternLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrPatternTooLong, plen)
	}

	p := make([]byte, plen)
	copy(p, pattern)

	return &Pattern{pattern: p, borders: computeBorders(p)}, nil
}

// MustCompile is like Compile but panics if the pattern cannot be compiled.
func MustCompile(pattern []byte) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// computeBorders returns a table of len(pattern)+1 entries where
// borders[i] is the length of the longest proper border of pattern[:i],
// and borders[0] is -1.
func computeBorders(pattern []byte) []int {
	plen := len(pattern)
	borders := make([]int, plen+1)

	j := -1
	borders[0] = j

	for i := 0; i < plen; i++ {
		//Fall back through shorter borders until one can be extended
		for j >= 0 && pattern[i] != pattern[j] {
			j = borders[j]
		}
		j++
		borders[i+1] = j
	}

	return borders
}

// Len returns the pattern length in bytes.
func (p *Pattern) Len() int {
	return len(p.pattern)
}

// Bytes returns a copy of the pattern.
func (p *Pattern) Bytes() []byte {
	b := make([]byte, len(p.pattern))
	copy(b, p.pattern)
	return b
}

func (p *Pattern) String() string {
	return fmt.Sprintf("%q", p.pattern)
}

// Search reads r one byte at a time until the pattern has been matched or r
// is exhausted.
//
// On a match it returns the number of bytes read by this call, which is the
// offset just past the match relative to where r was positioned when Search
// was called; r is left positioned right after the match. If r reaches
// io.EOF first, Search returns found == false and r is fully consumed. Any
// other read error is returned as is.
//
// Match progress is local to the call: a second Search on the same reader
// starts over at the current position.
func (p *Pattern) Search(r io.ByteReader) (int64, bool, error) {
	plen := len(p.pattern)

	var bytesRead int64
	j := 0

	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return -1, false, nil
			}
			return -1, false, err
		}
		bytesRead++

		for j >= 0 && b != p.pattern[j] {
			j = p.borders[j]
		}
		j++

		if j == plen {
			return bytesRead, true, nil
		}
	}
}

// SearchReader is Search for a plain io.Reader. Readers that do not
// implement io.ByteReader are read one byte per Read call so that nothing
// past the match is consumed from them.
func (p *Pattern) SearchReader(r io.Reader) (int64, bool, error) {
	if br, ok := r.(io.ByteReader); ok {
		return p.Search(br)
	}
	return p.Search(NewByteReader(r))
}
