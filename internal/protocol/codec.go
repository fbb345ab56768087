package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// maxFrameSize bounds a single decoded frame. Real client messages are
// tiny; anything near this size is a corrupt stream.
const maxFrameSize = 256 * 1024

// ReadFrame reads one length-prefixed frame from r. Wire format:
// [4 bytes BE: payload length][payload].
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > maxFrameSize {
		return nil, fmt.Errorf("invalid frame length: %d", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading frame payload (%d bytes): %w", size, err)
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed frame to w. Header and payload
// go out in a single Write call so small messages aren't split across
// segments.
func WriteFrame(w io.Writer, data []byte) error {
	// Same bounds as ReadFrame, so anything we emit is readable by a
	// peer running this codec.
	if len(data) == 0 || len(data) > maxFrameSize {
		return fmt.Errorf("invalid frame length: %d", len(data))
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(data)))
	copy(frame[4:], data)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Channel is a duplex stream of decoded messages for one connection.
// Receive and Send are FIFO per connection; Send is safe for
// concurrent use.
type Channel interface {
	Receive() (Message, error)
	Send(Message) error
	// SendEncoded writes an already-marshaled envelope payload, as
	// produced by Marshal. Used for fan-out deliveries.
	SendEncoded(data []byte) error
	Close() error
}

// streamChannel frames messages over any byte stream.
type streamChannel struct {
	rw io.ReadWriteCloser

	wmu sync.Mutex
}

// NewChannel wraps rw in a framed message channel.
func NewChannel(rw io.ReadWriteCloser) Channel {
	return &streamChannel{rw: rw}
}

func (c *streamChannel) Receive() (Message, error) {
	payload, err := ReadFrame(c.rw)
	if err != nil {
		return nil, err
	}
	return Unmarshal(payload)
}

func (c *streamChannel) Send(msg Message) error {
	payload, err := Marshal(msg)
	if err != nil {
		return err
	}

	return c.SendEncoded(payload)
}

func (c *streamChannel) SendEncoded(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteFrame(c.rw, data)
}

func (c *streamChannel) Close() error {
	return c.rw.Close()
}
