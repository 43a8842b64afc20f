package streamsearch

import (
	"io"
)

const maxConsecutiveEmptyReads = 100

// ByteReader adapts an io.Reader to io.ByteReader without read-ahead: each
// ReadByte issues a one-byte Read on the underlying reader, so its position
// always equals BytesRead from where it started.
type ByteReader struct {
	Reader  io.Reader
	buf     [1]byte
	lasterr error
	total   int64
}

//Creates a Byte Reader
func NewByteReader(reader io.Reader) *ByteReader {
	return &ByteReader{Reader: reader}
}

//Returns the number of bytes delivered so far
func (br *ByteReader) BytesRead() int64 {
	return br.total
}

// ReadByte returns the next byte. An error returned together with a byte by
// the underlying reader is held back until the following call.
func (br *ByteReader) ReadByte() (byte, error) {
	if br.lasterr != nil {
		return 0, br.lasterr
	}

	for i := 0; i < maxConsecutiveEmptyReads; i++ {
		n, err := br.Reader.Read(br.buf[:])
		if n > 0 {
			br.total++
			br.lasterr = err
			return br.buf[0], nil
		}
		if err != nil {
			br.lasterr = err
			return 0, err
		}
	}
	br.lasterr = io.ErrNoProgress
	return 0, br.lasterr
}
