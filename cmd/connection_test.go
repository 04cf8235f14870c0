// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/hbloader/pkg/hbloader"
	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

// fakePort behaves like an opened serial port: reads time out with (0, nil)
// when nothing is queued. With autoAck every write queues an ack.
type fakePort struct {
	rx       []byte
	tx       bytes.Buffer
	timeouts []time.Duration
	autoAck  bool

	inputResets  int
	outputResets int
	closed       bool
	readErr      error
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.rx) == 0 {
		if len(p.timeouts) > 0 && p.timeouts[len(p.timeouts)-1] == serial.NoTimeout {
			// A real port would block forever
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.tx.Write(b)
	if p.autoAck {
		p.rx = append(p.rx, hbloader.RespAck)
	}
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeouts = append(p.timeouts, t)
	return nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.inputResets++
	p.rx = nil
	return nil
}

func (p *fakePort) ResetOutputBuffer() error {
	p.outputResets++
	return nil
}

func TestSerialChannel_PollHoldsByte(t *testing.T) {
	port := &fakePort{rx: []byte{0xA0, 0x42}}
	ch := NewSerialChannel(port)

	ready, err := ch.Poll(50 * time.Millisecond)
	if err != nil || !ready {
		t.Fatalf("Poll = %v, %v; want ready", ready, err)
	}
	if port.timeouts[0] != 50*time.Millisecond {
		t.Errorf("read timeout = %v, want 50ms", port.timeouts[0])
	}

	// A second poll must not consume another byte
	if ready, _ := ch.Poll(time.Millisecond); !ready {
		t.Error("second Poll not ready")
	}

	b, err := ch.ReadByte()
	if err != nil || b != 0xA0 {
		t.Fatalf("ReadByte = 0x%02X, %v; want 0xA0", b, err)
	}
	b, err = ch.ReadByte()
	if err != nil || b != 0x42 {
		t.Fatalf("ReadByte = 0x%02X, %v; want 0x42", b, err)
	}
	if last := port.timeouts[len(port.timeouts)-1]; last != serial.NoTimeout {
		t.Errorf("blocking read used timeout %v", last)
	}
}

func TestSerialChannel_PollTimeout(t *testing.T) {
	ch := NewSerialChannel(&fakePort{})

	ready, err := ch.Poll(time.Millisecond)
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if ready {
		t.Error("Poll reported ready with nothing received")
	}
}

func TestSerialChannel_PollError(t *testing.T) {
	boom := errors.New("device unplugged")
	ch := NewSerialChannel(&fakePort{readErr: boom})

	if _, err := ch.Poll(time.Millisecond); !errors.Is(err, boom) {
		t.Errorf("Poll error = %v, want %v", err, boom)
	}
}

func TestSerialChannel_FlushDropsHeldByte(t *testing.T) {
	port := &fakePort{rx: []byte{0x99}}
	ch := NewSerialChannel(port)

	if ready, _ := ch.Poll(time.Millisecond); !ready {
		t.Fatal("Poll not ready")
	}
	if err := ch.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if port.inputResets != 1 || port.outputResets != 1 {
		t.Errorf("resets = %d/%d, want 1/1", port.inputResets, port.outputResets)
	}
	if ready, _ := ch.Poll(time.Millisecond); ready {
		t.Error("held byte survived Flush")
	}
}

func TestSerialChannel_Session(t *testing.T) {
	port := &fakePort{autoAck: true}
	ch := NewSerialChannel(port)

	input := []byte{hbloader.CmdWrite, 0x01}
	input = append(input, bytes.Repeat([]byte{0xEE}, hbloader.PageDataSize)...)
	input = append(input, 0x7F)
	input = append(input, hbloader.CmdJump, 0x00, 0x00)

	err := hbloader.NewSession(ch, bytes.NewReader(input),
		hbloader.WithPace(0),
		hbloader.WithHandshake(1, time.Millisecond),
	).Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !bytes.Equal(port.tx.Bytes(), input) {
		t.Errorf("port received % X\nwant % X", port.tx.Bytes(), input)
	}
	if !port.closed {
		t.Error("port not closed")
	}
	if port.inputResets != 2 {
		t.Errorf("input resets = %d, want one per command", port.inputResets)
	}
}

func TestSerialChannel_SessionTimeout(t *testing.T) {
	port := &fakePort{}
	ch := NewSerialChannel(port)

	err := hbloader.NewSession(ch, bytes.NewReader([]byte{hbloader.CmdJump, 0x12, 0x34}),
		hbloader.WithPace(0),
		hbloader.WithHandshake(3, time.Millisecond),
	).Run()
	if !errors.Is(err, hbloader.ErrHandshakeTimeout) {
		t.Fatalf("Run error = %v, want handshake timeout", err)
	}
	if len(port.timeouts) != 3 {
		t.Errorf("polls = %d, want 3", len(port.timeouts))
	}
}

func TestOpenSerialChannel_Missing(t *testing.T) {
	_, err := OpenSerialChannel("/dev/hbloader-test-does-not-exist", 115200)
	if !errors.Is(err, hbloader.ErrTransportOpen) {
		t.Fatalf("error = %v, want ErrTransportOpen", err)
	}
	if ExitCode(err) != 2 {
		t.Errorf("ExitCode = %d, want 2", ExitCode(err))
	}
}

func TestDescribePortError(t *testing.T) {
	plain := errors.New("plain")
	if got := describePortError(plain); got != "plain" {
		t.Errorf("describePortError(plain) = %q", got)
	}
}

// bridge is a WebSocket serial bridge test server. Each binary message is
// forwarded to received and answered by reply, when reply is not nil.
type bridge struct {
	server   *httptest.Server
	received chan []byte
	reply    func(conn *websocket.Conn, msg []byte)
	auth     chan string
}

func newBridge(t *testing.T, reply func(conn *websocket.Conn, msg []byte)) *bridge {
	t.Helper()

	b := &bridge{
		received: make(chan []byte, 16),
		reply:    reply,
		auth:     make(chan string, 1),
	}
	upgrader := websocket.Upgrader{}

	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.auth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			messageType, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			b.received <- msg
			if b.reply != nil {
				b.reply(conn, msg)
			}
		}
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *bridge) url() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

func ackReply(conn *websocket.Conn, msg []byte) {
	conn.WriteMessage(websocket.BinaryMessage, []byte{hbloader.RespAck})
}

func TestWebSocketChannel_Session(t *testing.T) {
	b := newBridge(t, ackReply)

	ch, err := OpenWebSocketChannel(b.url(), "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketChannel: %v", err)
	}

	input := []byte{hbloader.CmdWrite, 0x03}
	input = append(input, make([]byte, hbloader.PageDataSize)...)
	input = append(input, 0x00)
	input = append(input, hbloader.CmdJump, 0x01, 0x00)

	stats := hbloader.NewStatistics()
	err = hbloader.NewSession(ch, bytes.NewReader(input),
		hbloader.WithPace(0),
		hbloader.WithHandshake(3, time.Second),
		hbloader.WithObserver(stats.Observe),
	).Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	frames := [][]byte{<-b.received, <-b.received}
	if len(frames[0]) != hbloader.WriteFrameSize || frames[0][1] != 0x03 {
		t.Errorf("first frame = % X", frames[0])
	}
	if !bytes.Equal(frames[1], []byte{hbloader.CmdJump, 0x01, 0x00}) {
		t.Errorf("second frame = % X", frames[1])
	}
	if stats.Acks != 2 {
		t.Errorf("acks = %d, want 2", stats.Acks)
	}
}

func TestWebSocketChannel_PollTimeout(t *testing.T) {
	b := newBridge(t, nil)

	ch, err := OpenWebSocketChannel(b.url(), "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketChannel: %v", err)
	}
	defer ch.Close()

	start := time.Now()
	ready, err := ch.Poll(20 * time.Millisecond)
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if ready {
		t.Error("Poll ready with nothing sent")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Poll returned after %v, before its timeout", elapsed)
	}
}

func TestWebSocketChannel_IgnoresTextMessages(t *testing.T) {
	b := newBridge(t, func(conn *websocket.Conn, msg []byte) {
		conn.WriteMessage(websocket.TextMessage, []byte("status: ok"))
		conn.WriteMessage(websocket.BinaryMessage, []byte{0x5A})
	})

	ch, err := OpenWebSocketChannel(b.url(), "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketChannel: %v", err)
	}
	defer ch.Close()

	if _, err := ch.Write([]byte{hbloader.CmdJump, 0, 0}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if ready, err := ch.Poll(time.Second); !ready || err != nil {
		t.Fatalf("Poll = %v, %v", ready, err)
	}
	got, err := ch.ReadByte()
	if err != nil || got != 0x5A {
		t.Errorf("ReadByte = 0x%02X, %v; want 0x5A", got, err)
	}
}

func TestWebSocketChannel_FlushDropsPending(t *testing.T) {
	b := newBridge(t, func(conn *websocket.Conn, msg []byte) {
		conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02})
	})

	ch, err := OpenWebSocketChannel(b.url(), "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketChannel: %v", err)
	}
	defer ch.Close()

	ch.Write([]byte{0x00})
	if ready, _ := ch.Poll(time.Second); !ready {
		t.Fatal("Poll not ready")
	}
	if err := ch.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if ready, _ := ch.Poll(20 * time.Millisecond); ready {
		t.Error("stale data survived Flush")
	}
}

func TestWebSocketChannel_ServerClosed(t *testing.T) {
	b := newBridge(t, func(conn *websocket.Conn, msg []byte) {
		conn.Close()
	})

	ch, err := OpenWebSocketChannel(b.url(), "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketChannel: %v", err)
	}
	defer ch.Close()

	ch.Write([]byte{0x00})
	if _, err := ch.Poll(time.Second); err == nil {
		t.Fatal("Poll succeeded on a closed connection")
	}
	if _, err := ch.Write([]byte{0x00}); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Write error = %v, want ErrConnectionClosed", err)
	}
	if _, err := ch.ReadByte(); err == nil {
		t.Error("ReadByte succeeded on a closed connection")
	}
}

func TestWebSocketChannel_CloseOnce(t *testing.T) {
	b := newBridge(t, nil)

	ch, err := OpenWebSocketChannel(b.url(), "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketChannel: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOpenWebSocketChannel_BasicAuth(t *testing.T) {
	b := newBridge(t, nil)

	ch, err := OpenWebSocketChannel(b.url(), "admin", "secret", false)
	if err != nil {
		t.Fatalf("OpenWebSocketChannel: %v", err)
	}
	defer ch.Close()

	// base64("admin:secret")
	if got := <-b.auth; got != "Basic YWRtaW46c2VjcmV0" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestOpenWebSocketChannel_Errors(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"http scheme", "http://localhost/ws"},
		{"bad url", "ws://[::1"},
		{"refused", "ws://127.0.0.1:1/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenWebSocketChannel(tt.url, "", "", false)
			if !errors.Is(err, hbloader.ErrTransportOpen) {
				t.Errorf("error = %v, want ErrTransportOpen", err)
			}
		})
	}
}

func TestOpenChannel_DefaultsToSink(t *testing.T) {
	cfg := DefaultSettings()
	ch, info, err := OpenChannel(&cfg)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	if info != "stdout" {
		t.Errorf("info = %q, want stdout", info)
	}
	if _, ok := ch.(*hbloader.Sink); !ok {
		t.Errorf("channel = %T, want *hbloader.Sink", ch)
	}
	if _, ok := ch.(hbloader.DuplexChannel); ok {
		t.Error("stdout sink must not be duplex")
	}
}

func TestOpenChannel_WebSocket(t *testing.T) {
	b := newBridge(t, nil)

	cfg := DefaultSettings()
	cfg.URL = b.url()
	ch, info, err := OpenChannel(&cfg)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	defer ch.Close()

	if !strings.HasPrefix(info, "WebSocket: ws://") {
		t.Errorf("info = %q", info)
	}
	if _, ok := ch.(hbloader.DuplexChannel); !ok {
		t.Errorf("channel %T is not duplex", ch)
	}
}
