package nbs

import (
	"errors"
	"fmt"
	"io"
)

// scratch is the decoder's reusable input window: a fixed-capacity byte
// buffer filled from an io.Reader. It replaces the pointer arithmetic of
// a hand-managed array with explicit offsets.
type scratch struct {
	src  io.Reader
	buf  []byte
	end  int   // bytes [0:end) are valid
	base int64 // stream offset of buf[0]
}

func newScratch(src io.Reader, capacity int) *scratch {
	return &scratch{src: src, buf: make([]byte, capacity)}
}

func (s *scratch) reset() {
	s.base += int64(s.end)
	s.end = 0
}

func (s *scratch) bytes() []byte {
	return s.buf[:s.end]
}

// ensure guarantees that at least need bytes are buffered, reading more
// from the source if necessary. A need beyond the buffer's capacity is
// reported as io.ErrShortBuffer without reading anything. End-of-input
// is reported as io.EOF; any other read failure is wrapped and is fatal
// for the stream.
func (s *scratch) ensure(need int) error {
	if need > len(s.buf) {
		return fmt.Errorf("%w: need %d bytes, capacity %d", io.ErrShortBuffer, need, len(s.buf))
	}
	if need <= s.end {
		return nil
	}
	n, err := io.ReadFull(s.src, s.buf[s.end:need])
	s.end += n
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return fmt.Errorf("read frame bytes: %w", err)
	}
	return nil
}

// compact discards the first from bytes, moving the unconsumed suffix to
// the start of the buffer.
func (s *scratch) compact(from int) {
	if from <= 0 {
		return
	}
	if from >= s.end {
		s.base += int64(s.end)
		s.end = 0
		return
	}
	copy(s.buf, s.buf[from:s.end])
	s.base += int64(from)
	s.end -= from
}
