// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hbloader

import (
	"time"

	"github.com/rs/zerolog"
)

// Handshake waits for and checks the device's reply to a frame.
type Handshake struct {
	Attempts int
	Timeout  time.Duration
	Logger   zerolog.Logger

	observe Observer
}

// NewHandshake returns a handshake with the default retry budget:
// 3 polls of 2 seconds each.
func NewHandshake() *Handshake {
	return &Handshake{
		Attempts: DefaultPollAttempts,
		Timeout:  DefaultPollTimeout,
		Logger:   zerolog.Nop(),
	}
}

// Await polls ch until it is readable, reads one response byte and compares
// it with RespAck. At most Attempts polls are made; once a poll reports
// data no further polls happen.
//
// The returned byte is the response received, or RespNone if none was.
func (h *Handshake) Await(ch DuplexChannel) (byte, error) {
	if !h.wait(ch) {
		return RespNone, &TimeoutError{Attempts: h.Attempts}
	}

	resp, err := ch.ReadByte()
	if err != nil {
		return RespNone, &MismatchError{Got: RespNone, Err: err}
	}
	if resp != RespAck {
		return resp, &MismatchError{Got: resp}
	}
	return resp, nil
}

// wait reports whether any of the poll attempts found data.
func (h *Handshake) wait(ch DuplexChannel) bool {
	for attempt := 1; attempt <= h.Attempts; attempt++ {
		ready, err := ch.Poll(h.Timeout)
		switch {
		case err != nil:
			h.Logger.Warn().Err(err).Int("attempt", attempt).Msg("error polling for response")
			h.emit(Event{Kind: EventPollError, Attempt: attempt, Err: err})
		case !ready:
			h.Logger.Warn().Int("attempt", attempt).Dur("timeout", h.Timeout).Msg("timeout waiting for response")
			h.emit(Event{Kind: EventPollTimeout, Attempt: attempt})
		default:
			return true
		}
	}
	return false
}

func (h *Handshake) emit(ev Event) {
	if h.observe == nil {
		return
	}
	ev.Time = time.Now()
	h.observe(ev)
}
