// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hbloader

import (
	"time"

	"github.com/rs/zerolog"
)

// Config holds the session configuration.
type Config struct {
	// Logger receives progress and failure messages (default: disabled)
	Logger zerolog.Logger

	// PollAttempts is the number of readiness polls per handshake
	PollAttempts int

	// PollTimeout bounds each readiness poll
	PollTimeout time.Duration

	// Pace is the pause after each acknowledged command
	Pace time.Duration

	// Observer receives session events (optional)
	Observer Observer
}

func defaultConfig() Config {
	return Config{
		Logger:       zerolog.Nop(),
		PollAttempts: DefaultPollAttempts,
		PollTimeout:  DefaultPollTimeout,
		Pace:         DefaultPace,
	}
}

// Option is a functional option for configuring a Session.
type Option func(*Config)

// WithLogger sets the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithHandshake overrides the handshake retry budget. Non-positive values
// keep the defaults.
//
// Example:
//
//	s := hbloader.NewSession(ch, os.Stdin, hbloader.WithHandshake(5, time.Second))
func WithHandshake(attempts int, timeout time.Duration) Option {
	return func(c *Config) {
		if attempts > 0 {
			c.PollAttempts = attempts
		}
		if timeout > 0 {
			c.PollTimeout = timeout
		}
	}
}

// WithPace sets the pause between commands. Zero disables it.
func WithPace(pace time.Duration) Option {
	return func(c *Config) {
		if pace >= 0 {
			c.Pace = pace
		}
	}
}

// WithObserver registers a callback for session events. Multiple observers
// are called in registration order.
func WithObserver(observer Observer) Option {
	return func(c *Config) {
		if observer == nil {
			return
		}
		if prev := c.Observer; prev != nil {
			c.Observer = func(ev Event) {
				prev(ev)
				observer(ev)
			}
			return
		}
		c.Observer = observer
	}
}
