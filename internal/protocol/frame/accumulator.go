package frame

import (
	"errors"
	"io"
)

// Accumulator is the append-then-attempt decode state machine shared by
// blocking and non-blocking readers. Bytes are fed as they arrive and Next
// yields complete frames; the buffer never grows past Limits.MaxBufferBytes.
type Accumulator struct {
	limits Limits
	buf    []byte
}

func NewAccumulator(limits Limits) *Accumulator {
	return &Accumulator{
		limits: limits,
		buf:    make([]byte, 0, limits.MaxBufferBytes),
	}
}

// Feed appends newly arrived bytes.
func (a *Accumulator) Feed(p []byte) error {
	if len(a.buf)+len(p) > a.limits.MaxBufferBytes {
		return ErrBufferOverflow
	}
	a.buf = append(a.buf, p...)
	return nil
}

// Next decodes the oldest complete frame. ErrIncomplete asks for more bytes.
func (a *Accumulator) Next() (Frame, error) {
	f, n, err := Decode(a.buf, a.limits)
	if err != nil {
		return Frame{}, err
	}
	rest := copy(a.buf, a.buf[n:])
	a.buf = a.buf[:rest]
	return f, nil
}

// Buffered reports how many undecoded bytes are held.
func (a *Accumulator) Buffered() int {
	return len(a.buf)
}

// Free reports how many more bytes may be fed before overflow.
func (a *Accumulator) Free() int {
	return a.limits.MaxBufferBytes - len(a.buf)
}

// Reader drives an Accumulator from a blocking io.Reader. Reads never ask
// for more than the accumulator has room for, so a peer cannot make the
// buffer exceed its capacity.
type Reader struct {
	src     io.Reader
	acc     *Accumulator
	chunk   []byte
	pending error
}

func NewReader(src io.Reader, limits Limits) *Reader {
	return &Reader{
		src:   src,
		acc:   NewAccumulator(limits),
		chunk: make([]byte, limits.MaxBufferBytes),
	}
}

// ReadFrame returns the next frame. Underruns are retried in place; io.EOF is
// returned only on a clean boundary, io.ErrUnexpectedEOF when the peer stops
// mid-frame.
func (r *Reader) ReadFrame() (Frame, error) {
	for {
		f, err := r.acc.Next()
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, ErrIncomplete) {
			return Frame{}, err
		}
		if r.pending != nil {
			if errors.Is(r.pending, io.EOF) && r.acc.Buffered() > 0 {
				return Frame{}, io.ErrUnexpectedEOF
			}
			return Frame{}, r.pending
		}
		free := r.acc.Free()
		if free == 0 {
			return Frame{}, ErrBufferOverflow
		}
		n, err := r.src.Read(r.chunk[:free])
		if n > 0 {
			if ferr := r.acc.Feed(r.chunk[:n]); ferr != nil {
				return Frame{}, ferr
			}
		}
		if err != nil {
			r.pending = err
		}
	}
}
