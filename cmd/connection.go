// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/hbloader/pkg/hbloader"
	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// serialPort is the subset of serial.Port the bootloader channel uses
type serialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// SerialChannel wraps a serial port. A byte seen while polling is held
// back and returned by the next ReadByte.
type SerialChannel struct {
	port       serialPort
	pending    byte
	hasPending bool
}

// NewSerialChannel wraps an opened port
func NewSerialChannel(port serialPort) *SerialChannel {
	return &SerialChannel{port: port}
}

func (s *SerialChannel) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialChannel) Close() error {
	return s.port.Close()
}

// Flush discards both queues and any byte held back by Poll
func (s *SerialChannel) Flush() error {
	s.hasPending = false
	return errors.Join(s.port.ResetInputBuffer(), s.port.ResetOutputBuffer())
}

// Poll waits up to timeout for one byte to arrive
func (s *SerialChannel) Poll(timeout time.Duration) (bool, error) {
	if s.hasPending {
		return true, nil
	}
	if err := s.port.SetReadTimeout(timeout); err != nil {
		return false, err
	}

	var buf [1]byte
	n, err := s.port.Read(buf[:])
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	s.pending = buf[0]
	s.hasPending = true
	return true, nil
}

// ReadByte returns the held-back byte, or blocks for the next one
func (s *SerialChannel) ReadByte() (byte, error) {
	if s.hasPending {
		s.hasPending = false
		return s.pending, nil
	}
	if err := s.port.SetReadTimeout(serial.NoTimeout); err != nil {
		return 0, err
	}

	var buf [1]byte
	for {
		n, err := s.port.Read(buf[:])
		if err != nil {
			return 0, err
		}
		if n == 1 {
			return buf[0], nil
		}
	}
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// WebSocketChannel talks to a serial bridge over a WebSocket. A reader
// goroutine queues incoming binary messages so that Poll can give up
// without putting a read deadline on the connection.
type WebSocketChannel struct {
	conn *websocket.Conn
	msgs chan []byte
	errc chan error
	done chan struct{}

	buf       []byte
	bufOffset int
	err       error
	closeOnce sync.Once
}

func newWebSocketChannel(conn *websocket.Conn) *WebSocketChannel {
	w := &WebSocketChannel{
		conn: conn,
		msgs: make(chan []byte, 64),
		errc: make(chan error, 1),
		done: make(chan struct{}),
	}
	go w.readLoop()
	return w
}

func (w *WebSocketChannel) readLoop() {
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.errc <- err
			return
		}

		// Only binary messages carry bootloader bytes
		if messageType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}

		select {
		case w.msgs <- data:
		case <-w.done:
			return
		}
	}
}

func (w *WebSocketChannel) buffered() int {
	return len(w.buf) - w.bufOffset
}

func (w *WebSocketChannel) fill(data []byte) {
	w.buf = data
	w.bufOffset = 0
}

func (w *WebSocketChannel) fail(err error) error {
	if w.err == nil {
		w.err = err
	}
	return w.err
}

// Poll waits up to timeout for data from the bridge
func (w *WebSocketChannel) Poll(timeout time.Duration) (bool, error) {
	if w.buffered() > 0 {
		return true, nil
	}
	if w.err != nil {
		return false, w.err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-w.msgs:
		w.fill(data)
		return true, nil
	case err := <-w.errc:
		return false, w.fail(err)
	case <-timer.C:
		return false, nil
	}
}

// ReadByte blocks until the bridge delivers a byte
func (w *WebSocketChannel) ReadByte() (byte, error) {
	if w.buffered() == 0 {
		if w.err != nil {
			return 0, w.err
		}
		select {
		case data := <-w.msgs:
			w.fill(data)
		case err := <-w.errc:
			return 0, w.fail(err)
		}
	}

	b := w.buf[w.bufOffset]
	w.bufOffset++
	return b, nil
}

// Flush drops everything received but not yet read
func (w *WebSocketChannel) Flush() error {
	w.buf = nil
	w.bufOffset = 0
	for {
		select {
		case <-w.msgs:
		default:
			return nil
		}
	}
}

func (w *WebSocketChannel) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, ErrConnectionClosed
	}
	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketChannel) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.conn.Close()
	})
	return err
}

// OpenSerialChannel opens a serial port connection (8N1)
func OpenSerialChannel(portName string, baudRate int) (*SerialChannel, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open serial port %s: %s", hbloader.ErrTransportOpen, portName, describePortError(err))
	}

	return NewSerialChannel(port), nil
}

// describePortError adds a hint for the common serial open failures
func describePortError(err error) string {
	var portErr *serial.PortError
	if !errors.As(err, &portErr) {
		return err.Error()
	}
	switch portErr.Code() {
	case serial.PortNotFound:
		return fmt.Sprintf("%v (is the device plugged in?)", err)
	case serial.PortBusy:
		return fmt.Sprintf("%v (is another program using it?)", err)
	case serial.PermissionDenied:
		return fmt.Sprintf("%v (check membership of the dialout group)", err)
	default:
		return err.Error()
	}
}

// OpenWebSocketChannel opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketChannel(wsURL, username, password string, skipSSLVerify bool) (*WebSocketChannel, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %v", hbloader.ErrTransportOpen, err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("%w: unsupported URL scheme: %s (use ws:// or wss://)", hbloader.ErrTransportOpen, u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: WebSocket connection failed (HTTP %d): %v", hbloader.ErrTransportOpen, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: WebSocket connection failed: %v", hbloader.ErrTransportOpen, err)
	}

	return newWebSocketChannel(conn), nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("HBLOADER_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	// stdin usually carries the command stream, so prompt on the terminal
	// only when there is one
	if !term.IsTerminal(int(syscall.Stdin)) {
		tty, err := os.Open("/dev/tty")
		if err != nil {
			return "", fmt.Errorf("no terminal to prompt for password; set HBLOADER_PASSWORD")
		}
		defer tty.Close()
		return readPassword(int(tty.Fd()), tty)
	}
	return readPassword(int(syscall.Stdin), os.Stdin)
}

func readPassword(fd int, r io.Reader) (string, error) {
	passwordBytes, err := term.ReadPassword(fd)
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(r)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenChannel opens the channel selected by the connection settings:
// WebSocket bridge, serial port, or a write-only sink on stdout when
// neither is given.
func OpenChannel(cfg *Settings) (hbloader.Channel, string, error) {
	if cfg.URL != "" {
		password := ""
		if cfg.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", fmt.Errorf("%w: %v", hbloader.ErrTransportOpen, err)
			}
		}

		ch, err := OpenWebSocketChannel(cfg.URL, cfg.Username, password, cfg.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}

		return ch, fmt.Sprintf("WebSocket: %s", cfg.URL), nil
	}

	if cfg.Port != "" {
		ch, err := OpenSerialChannel(cfg.Port, cfg.Baud)
		if err != nil {
			return nil, "", err
		}

		return ch, fmt.Sprintf("Serial: %s @ %d baud", cfg.Port, cfg.Baud), nil
	}

	return hbloader.NewSink(os.Stdout), "stdout", nil
}
