package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/pixil98/go-testutil"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := map[string]struct {
		payload []byte
	}{
		"single byte":   {payload: []byte{0x42}},
		"short message": {payload: []byte(`{"type":"ping"}`)},
		"binary data":   {payload: []byte{0x00, 0xff, 0x00, 0xff}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteFrame(&buf, tt.payload); err != nil {
				t.Fatalf("write: %v", err)
			}

			testutil.AssertEqual(t, "frame size", buf.Len(), 4+len(tt.payload))

			got, err := ReadFrame(&buf)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			testutil.AssertEqual(t, "payload", string(got), string(tt.payload))
		})
	}
}

func TestReadFrameRejectsBadLengths(t *testing.T) {
	tests := map[string]struct {
		length uint32
	}{
		"zero length":      {length: 0},
		"oversized length": {length: maxFrameSize + 1},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			var header [4]byte
			binary.BigEndian.PutUint32(header[:], tt.length)
			buf.Write(header[:])

			if _, err := ReadFrame(&buf); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestWriteFrameRejectsBadLengths(t *testing.T) {
	tests := map[string]struct {
		data []byte
	}{
		"empty payload":     {data: nil},
		"oversized payload": {data: make([]byte, maxFrameSize+1)},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteFrame(&buf, tt.data); err == nil {
				t.Fatal("expected error, got nil")
			}
			testutil.AssertEqual(t, "bytes written", buf.Len(), 0)
		})
	}
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 10)
	buf.Write(header[:])
	buf.Write([]byte("short"))

	_, err := ReadFrame(&buf)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
}

func TestReadFrameEOF(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

// pipeConn adapts an in-memory duplex pipe to io.ReadWriteCloser.
type pipeConn struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *pipeConn) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeConn) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *pipeConn) Close() error {
	p.r.Close()
	return p.w.Close()
}

func TestChannelSendReceive(t *testing.T) {
	cr, sw := io.Pipe()
	sr, cw := io.Pipe()
	server := NewChannel(&pipeConn{r: sr, w: sw})
	client := NewChannel(&pipeConn{r: cr, w: cw})

	go func() {
		if err := server.Send(&Welcome{Player: 7, Name: "alice", Token: "tok"}); err != nil {
			t.Errorf("send: %v", err)
		}
	}()

	msg, err := client.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	welcome, ok := msg.(*Welcome)
	if !ok {
		t.Fatalf("expected *Welcome, got %T", msg)
	}
	testutil.AssertEqual(t, "player", uint64(welcome.Player), uint64(7))
	testutil.AssertEqual(t, "name", welcome.Name, "alice")
}

func TestChannelSendEncoded(t *testing.T) {
	cr, sw := io.Pipe()
	sr, cw := io.Pipe()
	server := NewChannel(&pipeConn{r: sr, w: sw})
	client := NewChannel(&pipeConn{r: cr, w: cw})

	payload, err := Marshal(&GameClosed{Game: 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	go func() {
		if err := server.SendEncoded(payload); err != nil {
			t.Errorf("send encoded: %v", err)
		}
	}()

	msg, err := client.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	closed, ok := msg.(*GameClosed)
	if !ok {
		t.Fatalf("expected *GameClosed, got %T", msg)
	}
	testutil.AssertEqual(t, "game", uint64(closed.Game), uint64(3))
}
