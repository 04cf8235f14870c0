// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hbloader

import "time"

// EventKind identifies a step of the command loop.
type EventKind int

const (
	EventCommand     EventKind = iota // command decoded from input
	EventSent                         // frame written to the channel
	EventPollTimeout                  // one poll attempt timed out
	EventPollError                    // one poll attempt failed
	EventAck                          // device acknowledged the frame
	EventDone                         // session ended, Err holds the outcome
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventSent:
		return "sent"
	case EventPollTimeout:
		return "poll_timeout"
	case EventPollError:
		return "poll_error"
	case EventAck:
		return "ack"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event is delivered to an Observer as the session progresses.
type Event struct {
	Kind     EventKind
	Time     time.Time
	Command  Command
	Bytes    int  // frame size for EventSent
	Attempt  int  // 1-based poll attempt for poll events
	Response byte // for EventAck
	Err      error
}

// Observer receives session events synchronously, on the session's
// goroutine. It must return quickly.
type Observer func(Event)
