// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hbloader

import (
	"fmt"
	"io"
)

// Command is one decoded bootloader command.
type Command interface {
	// Opcode returns the frame's leading byte.
	Opcode() byte
	// Encode returns the complete wire frame, opcode included.
	Encode() []byte
	String() string
}

// WriteCommand programs one flash page. Checksum is forwarded verbatim;
// it is never computed or checked on the host.
type WriteCommand struct {
	Page     byte
	Data     [PageDataSize]byte
	Checksum byte
}

// JumpCommand starts execution at Address. The two bytes keep the order
// they arrived in.
type JumpCommand struct {
	Address [JumpAddrSize]byte
}

func (WriteCommand) Opcode() byte { return CmdWrite }

func (JumpCommand) Opcode() byte { return CmdJump }

// Encode produces the 67-byte write frame: opcode, page, data, checksum.
func (c WriteCommand) Encode() []byte {
	frame := make([]byte, 0, WriteFrameSize)
	frame = append(frame, CmdWrite, c.Page)
	frame = append(frame, c.Data[:]...)
	frame = append(frame, c.Checksum)
	return frame
}

// Encode produces the 3-byte jump frame: opcode, address.
func (c JumpCommand) Encode() []byte {
	return []byte{CmdJump, c.Address[0], c.Address[1]}
}

func (c WriteCommand) String() string {
	return fmt.Sprintf("write page 0x%02X", c.Page)
}

func (c JumpCommand) String() string {
	return fmt.Sprintf("jump to 0x%02X%02X", c.Address[0], c.Address[1])
}

// DecodeWrite reads a write payload (page, 64 data bytes, checksum) from r.
// Any byte values are accepted.
func DecodeWrite(r io.Reader) (WriteCommand, error) {
	var buf [WritePayloadSize]byte
	if n, err := io.ReadFull(r, buf[:]); err != nil {
		return WriteCommand{}, shortRead(len(buf), n, err)
	}

	var c WriteCommand
	c.Page = buf[0]
	copy(c.Data[:], buf[1:1+PageDataSize])
	c.Checksum = buf[1+PageDataSize]
	return c, nil
}

// DecodeJump reads a 2-byte jump address from r.
func DecodeJump(r io.Reader) (JumpCommand, error) {
	var c JumpCommand
	if n, err := io.ReadFull(r, c.Address[:]); err != nil {
		return JumpCommand{}, shortRead(JumpAddrSize, n, err)
	}
	return c, nil
}

// DecodeCommand decodes the payload that follows opcode. Unknown opcodes
// return an UnknownCommandError without touching r.
func DecodeCommand(opcode byte, r io.Reader) (Command, error) {
	switch opcode {
	case CmdWrite:
		c, err := DecodeWrite(r)
		if err != nil {
			return nil, err
		}
		return c, nil
	case CmdJump:
		c, err := DecodeJump(r)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, &UnknownCommandError{Opcode: opcode}
	}
}

// WriteFrame sends frame in a single write. A partial write is a failure;
// the rest of the frame is never retried.
func WriteFrame(w io.Writer, frame []byte) error {
	n, err := w.Write(frame)
	if err != nil || n < len(frame) {
		return &WriteError{Want: len(frame), Wrote: n, Err: err}
	}
	return nil
}

// shortRead turns an io.ReadFull failure into a ShortReadError. Errors other
// than EOF are kept as the cause.
func shortRead(want, got int, err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return &ShortReadError{Want: want, Got: got}
	}
	return &ShortReadError{Want: want, Got: got, Err: err}
}
