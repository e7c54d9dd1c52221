package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// DefaultMaxFrame is the largest frame accepted unless configured otherwise.
const DefaultMaxFrame = 1 << 24

// ErrFrameTooLarge is returned for frames over the configured limit.
var ErrFrameTooLarge = errors.New("transport: frame too large")

// WriteFrame writes b prefixed with its length as u32 little endian.
func WriteFrame(w io.Writer, b []byte) error {
	if uint64(len(b)) > 1<<32-1 {
		return ErrFrameTooLarge
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(b)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadFrame reads one frame written by WriteFrame. Frames over max fail
// with ErrFrameTooLarge.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if uint64(n) > uint64(max) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, max)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

type frameStream struct {
	wmu sync.Mutex
	br  *bufio.Reader
	bw  *bufio.Writer
	c   io.Closer
	max int
}

// NewFrameStream frames rwc. Closing the stream closes rwc.
func NewFrameStream(rwc io.ReadWriteCloser, maxFrame int) Stream {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrame
	}
	return &frameStream{br: bufio.NewReader(rwc), bw: bufio.NewWriter(rwc), c: rwc, max: maxFrame}
}

func (s *frameStream) SendBytes(b []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := WriteFrame(s.bw, b); err != nil {
		return err
	}
	return s.bw.Flush()
}

func (s *frameStream) RecvBytes() ([]byte, error) { return ReadFrame(s.br, s.max) }

func (s *frameStream) Close() error { return s.c.Close() }
