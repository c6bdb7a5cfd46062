// Package daemon implements the per-repository IPC server and client
// (SPEC_FULL §4.8): one long-lived daemon per store_id, reached over a Unix
// domain socket by length-prefixed, gob-encoded frames.
package daemon

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// MaxFrameSize is the hard cap on a single frame's payload (SPEC_FULL §4.8/§6).
const MaxFrameSize = 16 * 1024 * 1024

// WriteFrame gob-encodes v and writes it as a 4-byte little-endian
// length-prefixed frame, grounded on original_source's SocketBuffer framing
// (src/ipc.rs).
func WriteFrame(w io.Writer, v any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if buf.Len() > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes exceeds %d byte cap", buf.Len(), MaxFrameSize)
	}

	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r and gob-decodes it into v.
func ReadFrame(r io.Reader, v any) error {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return fmt.Errorf("read frame length: %w", err)
	}

	size := binary.LittleEndian.Uint32(lenPrefix[:])
	if size > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes exceeds %d byte cap", size, MaxFrameSize)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("read frame body: %w", err)
	}

	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}
