// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hbloader

import (
	"io"
	"time"
)

// Channel is an opened link to the bootloader.
type Channel interface {
	io.Writer
	io.Closer

	// Flush discards data queued in either direction.
	Flush() error
}

// DuplexChannel is a Channel the device answers on. Only duplex channels
// take part in the acknowledgement handshake.
type DuplexChannel interface {
	Channel
	io.ByteReader

	// Poll waits up to timeout for incoming data. It returns true when a
	// byte can be read without blocking and false, nil on timeout.
	Poll(timeout time.Duration) (bool, error)
}

// Sink is a write-only Channel. Frames written to it are never
// acknowledged, so sessions over a Sink skip the handshake.
type Sink struct {
	w io.Writer
}

// NewSink wraps w as a write-only channel.
func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

func (s *Sink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

// Flush is a no-op; a sink has no input queue.
func (s *Sink) Flush() error {
	return nil
}

// Close closes the underlying writer if it is an io.Closer.
func (s *Sink) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
