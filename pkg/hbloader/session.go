// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hbloader

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Session relays a command stream to the device, one acknowledged command
// at a time. A Session is single use and not safe for concurrent use.
type Session struct {
	ch        Channel
	in        io.Reader
	config    Config
	handshake *Handshake
	closed    bool
}

// NewSession creates a session that reads commands from in and sends them
// over ch. The session owns ch and closes it when Run returns.
func NewSession(ch Channel, in io.Reader, opts ...Option) *Session {
	if ch == nil {
		panic("channel cannot be nil")
	}
	if in == nil {
		panic("input cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Session{
		ch:     ch,
		in:     in,
		config: cfg,
		handshake: &Handshake{
			Attempts: cfg.PollAttempts,
			Timeout:  cfg.PollTimeout,
			Logger:   cfg.Logger,
			observe:  cfg.Observer,
		},
	}
}

// Run processes commands until the input is exhausted or a command fails.
// It returns nil only when the input ended exactly on a command boundary.
// The channel is closed before Run returns, whatever the outcome.
func (s *Session) Run() (err error) {
	defer func() {
		if cerr := s.close(); cerr != nil && err == nil {
			err = fmt.Errorf("close channel: %w", cerr)
		}
		s.emit(Event{Kind: EventDone, Err: err})
	}()

	for {
		done, err := s.step()
		if err != nil {
			s.config.Logger.Debug().Err(err).Msg("session terminated")
			return err
		}
		if done {
			s.config.Logger.Debug().Msg("end of input")
			return nil
		}
		if s.config.Pace > 0 {
			time.Sleep(s.config.Pace)
		}
	}
}

// step processes a single command. done is true when the input ended
// before an opcode byte was read.
func (s *Session) step() (done bool, err error) {
	var op [1]byte
	n, err := io.ReadFull(s.in, op[:])
	if n == 0 && err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInputRead, err)
	}

	cmd, err := DecodeCommand(op[0], s.in)
	if err != nil {
		return false, &CommandError{Opcode: op[0], Err: err}
	}
	s.emit(Event{Kind: EventCommand, Command: cmd})

	if err := s.send(cmd); err != nil {
		return false, &CommandError{Opcode: op[0], Command: cmd, Err: err}
	}
	return false, nil
}

// send flushes stale data, writes the frame and waits for the device to
// acknowledge it.
func (s *Session) send(cmd Command) error {
	s.logCommand(cmd)

	if err := s.ch.Flush(); err != nil {
		s.config.Logger.Warn().Err(err).Msg("failed to flush channel")
	}

	frame := cmd.Encode()
	if err := WriteFrame(s.ch, frame); err != nil {
		return err
	}
	s.emit(Event{Kind: EventSent, Command: cmd, Bytes: len(frame)})

	duplex, ok := s.ch.(DuplexChannel)
	if !ok {
		return nil
	}

	resp, err := s.handshake.Await(duplex)
	if err != nil {
		return err
	}
	s.emit(Event{Kind: EventAck, Command: cmd, Response: resp})
	return nil
}

func (s *Session) logCommand(cmd Command) {
	switch c := cmd.(type) {
	case WriteCommand:
		s.config.Logger.Info().Str("page", fmt.Sprintf("0x%02X", c.Page)).Msg("writing page")
	case JumpCommand:
		s.config.Logger.Info().Str("address", fmt.Sprintf("0x%02X%02X", c.Address[0], c.Address[1])).Msg("jumping")
	}
}

func (s *Session) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.ch.Close()
}

func (s *Session) emit(ev Event) {
	if s.config.Observer == nil {
		return
	}
	ev.Time = time.Now()
	s.config.Observer(ev)
}

// ExitCode maps a session result to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrTransportOpen):
		return 2
	default:
		return 1
	}
}
