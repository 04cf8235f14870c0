// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hbloader

import (
	"fmt"
	"strings"
)

// FormatOpcode returns the human-readable name for an opcode
func FormatOpcode(opcode byte) string {
	switch opcode {
	case CmdWrite:
		return "WRITE"
	case CmdJump:
		return "JUMP"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", opcode)
	}
}

// FormatResponse returns the human-readable name for a response byte
func FormatResponse(resp byte) string {
	switch resp {
	case RespAck:
		return "ACK"
	case RespNone:
		return "NONE"
	default:
		return fmt.Sprintf("0x%02X", resp)
	}
}

// FormatCommand formats a command into a one-line summary, optionally
// followed by a hex dump of a write command's data block.
func FormatCommand(c Command, hexdump bool) string {
	var result string

	switch cmd := c.(type) {
	case WriteCommand:
		result = fmt.Sprintf("%s (0x%02X) page=0x%02X checksum=0x%02X len=%d\n",
			FormatOpcode(CmdWrite), CmdWrite, cmd.Page, cmd.Checksum, WriteFrameSize)
		if hexdump {
			result += FormatData(cmd.Data[:])
		}
	case JumpCommand:
		result = fmt.Sprintf("%s (0x%02X) address=0x%02X%02X len=%d\n",
			FormatOpcode(CmdJump), CmdJump, cmd.Address[0], cmd.Address[1], JumpFrameSize)
	default:
		result = fmt.Sprintf("%s\n", c)
	}

	return result
}

// FormatData hex dumps data, 16 bytes per line
func FormatData(data []byte) string {
	var sb strings.Builder
	sb.WriteString("  Data: ")
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			sb.WriteString("\n        ")
		}
		fmt.Fprintf(&sb, "%02X ", b)
	}
	sb.WriteString("\n")
	return sb.String()
}
