// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hbloader

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a Session matches exactly one of
// these with errors.Is.
var (
	ErrTransportOpen     = errors.New("transport open failure")
	ErrInputRead         = errors.New("input read failure")
	ErrShortRead         = errors.New("short read")
	ErrWriteFailure      = errors.New("write failure")
	ErrHandshakeTimeout  = errors.New("handshake timeout")
	ErrHandshakeMismatch = errors.New("handshake mismatch")
	ErrUnknownCommand    = errors.New("unknown command")
)

// ShortReadError reports a command payload cut off by the end of the input.
type ShortReadError struct {
	Want int
	Got  int
	Err  error
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("short read: got %d of %d payload bytes", e.Got, e.Want)
}

func (e *ShortReadError) Is(target error) bool { return target == ErrShortRead }

func (e *ShortReadError) Unwrap() error { return e.Err }

// WriteError reports a frame the channel did not fully accept.
type WriteError struct {
	Want  int
	Wrote int
	Err   error
}

func (e *WriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("write failure: wrote %d of %d bytes: %v", e.Wrote, e.Want, e.Err)
	}
	return fmt.Sprintf("write failure: wrote %d of %d bytes", e.Wrote, e.Want)
}

func (e *WriteError) Is(target error) bool { return target == ErrWriteFailure }

func (e *WriteError) Unwrap() error { return e.Err }

// TimeoutError reports a device that never became readable.
type TimeoutError struct {
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("handshake timeout: no response after %d attempts", e.Attempts)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrHandshakeTimeout }

// MismatchError reports a response byte other than RespAck. Got is RespNone
// when the read itself failed, in which case Err holds the cause.
type MismatchError struct {
	Got byte
	Err error
}

func (e *MismatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("handshake mismatch: got 0x%02X: %v", e.Got, e.Err)
	}
	return fmt.Sprintf("handshake mismatch: got 0x%02X", e.Got)
}

func (e *MismatchError) Is(target error) bool { return target == ErrHandshakeMismatch }

func (e *MismatchError) Unwrap() error { return e.Err }

// UnknownCommandError reports an opcode outside the recognised set.
type UnknownCommandError struct {
	Opcode byte
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unrecognized command 0x%02X", e.Opcode)
}

func (e *UnknownCommandError) Is(target error) bool { return target == ErrUnknownCommand }

// CommandError attaches the command being processed to a failure.
// Command is nil when the payload could not be decoded.
type CommandError struct {
	Opcode  byte
	Command Command
	Err     error
}

func (e *CommandError) Error() string {
	if e.Command != nil {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: %v", FormatOpcode(e.Opcode), e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
