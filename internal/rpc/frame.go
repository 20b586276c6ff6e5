// Package rpc carries plugin calls to out-of-process engine hosts. Every
// message is a msgpack Envelope behind a 4-byte big-endian length.
package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"fortio.org/safecast"
)

// MaxFrameSize bounds a single message. Asset content travels inline, so
// the limit is generous.
const MaxFrameSize = 64 << 20

var ErrFrameTooLarge = errors.New("rpc: frame exceeds size limit")

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	n, err := safecast.Conv[uint32](len(payload))
	if err != nil || n > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, n)
	copy(buf[4:], payload)
	_, err = w.Write(buf)
	return err
}
