// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hbloader implements the host side of the HB serial bootloader
// protocol.
//
// A command stream (write page, jump to address) is read from an input
// stream, framed onto a Channel, and each frame is confirmed by a single
// acknowledgement byte from the device. The package covers the frame codec,
// the acknowledgement handshake and the command loop; opening the transport
// is left to the caller.
package hbloader

import "time"

// Command opcodes (first byte of every frame)
const (
	CmdWrite byte = 0xA7
	CmdJump  byte = 0xA9
)

// Acknowledgement values
const (
	RespAck byte = 0xA0

	// RespNone stands in for the response when no byte was received.
	// Derived from RespAck so the two can never collide.
	RespNone = ^RespAck
)

// Payload sizes
const (
	PageDataSize     = 64
	JumpAddrSize     = 2
	WritePayloadSize = 1 + PageDataSize + 1 // page + data + checksum
	WriteFrameSize   = 1 + WritePayloadSize
	JumpFrameSize    = 1 + JumpAddrSize
)

// Handshake and pacing defaults
const (
	DefaultPollTimeout  = 2 * time.Second
	DefaultPollAttempts = 3
	DefaultPace         = time.Millisecond
)
