// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hbloader

import (
	"fmt"
	"time"
)

// Statistics tracks what a session sent and how the device answered
type Statistics struct {
	StartTime      time.Time `toml:"start_time" cbor:"1,keyasint"`
	LastUpdateTime time.Time `toml:"last_update_time" cbor:"2,keyasint"`
	EndTime        time.Time `toml:"end_time,omitempty" cbor:"3,keyasint,omitempty"`

	// Counters
	Commands     uint64 `toml:"commands" cbor:"4,keyasint"`
	Writes       uint64 `toml:"writes" cbor:"5,keyasint"`
	Jumps        uint64 `toml:"jumps" cbor:"6,keyasint"`
	FramesSent   uint64 `toml:"frames_sent" cbor:"7,keyasint"`
	BytesSent    uint64 `toml:"bytes_sent" cbor:"8,keyasint"`
	Acks         uint64 `toml:"acks" cbor:"9,keyasint"`
	PollTimeouts uint64 `toml:"poll_timeouts" cbor:"10,keyasint"`
	PollErrors   uint64 `toml:"poll_errors" cbor:"11,keyasint"`
	LastPage     int    `toml:"last_page" cbor:"12,keyasint"` // -1 until a page is written

	// Rates (calculated)
	CommandRate float64 `toml:"command_rate" cbor:"13,keyasint"` // commands/sec
	ByteRate    float64 `toml:"byte_rate" cbor:"14,keyasint"`    // bytes/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		LastPage:       -1,
	}
}

// Observe updates the counters from a session event. It can be passed
// directly to WithObserver.
func (s *Statistics) Observe(ev Event) {
	switch ev.Kind {
	case EventCommand:
		s.Commands++
		switch c := ev.Command.(type) {
		case WriteCommand:
			s.Writes++
			s.LastPage = int(c.Page)
		case JumpCommand:
			s.Jumps++
		}
	case EventSent:
		s.FramesSent++
		s.BytesSent += uint64(ev.Bytes)
	case EventAck:
		s.Acks++
	case EventPollTimeout:
		s.PollTimeouts++
	case EventPollError:
		s.PollErrors++
	case EventDone:
		s.EndTime = ev.Time
	}

	if !ev.Time.IsZero() {
		s.LastUpdateTime = ev.Time
	}
}

// Elapsed returns the time from start to the end of the session, or to
// now while it is still running.
func (s *Statistics) Elapsed() time.Duration {
	if !s.EndTime.IsZero() {
		return s.EndTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}

// CalculateRates calculates command and byte rates
func (s *Statistics) CalculateRates() {
	elapsed := s.Elapsed().Seconds()
	if elapsed > 0 {
		s.CommandRate = float64(s.Commands) / elapsed
		s.ByteRate = float64(s.BytesSent) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	result := fmt.Sprintf("=== Statistics (%.1f seconds) ===\n", s.Elapsed().Seconds())
	result += fmt.Sprintf("Commands:        %8d\n", s.Commands)
	result += fmt.Sprintf("  Writes:        %8d\n", s.Writes)
	result += fmt.Sprintf("  Jumps:         %8d\n", s.Jumps)
	result += fmt.Sprintf("Bytes Sent:      %8d\n", s.BytesSent)
	result += fmt.Sprintf("Acknowledged:    %8d\n", s.Acks)

	if s.PollTimeouts > 0 {
		result += fmt.Sprintf("Poll Timeouts:   %8d\n", s.PollTimeouts)
	}
	if s.PollErrors > 0 {
		result += fmt.Sprintf("Poll Errors:     %8d\n", s.PollErrors)
	}
	if s.LastPage >= 0 {
		result += fmt.Sprintf("Last Page:           0x%02X\n", s.LastPage)
	}

	result += fmt.Sprintf("Command Rate:    %8.1f cmds/sec\n", s.CommandRate)
	result += fmt.Sprintf("Byte Rate:       %8.1f bytes/sec\n", s.ByteRate)
	result += "================================\n"

	return result
}
