// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Thermoquad/hbloader/pkg/hbloader"
)

// Settings is the merged result of the config file and command line
type Settings struct {
	Port        string
	Baud        int
	URL         string
	Username    string
	NoSSLVerify bool
	LogLevel    string

	PollAttempts int
	PollTimeout  time.Duration
	Pace         time.Duration
}

// DefaultSettings matches the bootloader's link: 115200 baud, 3 polls of 2s
func DefaultSettings() Settings {
	return Settings{
		Baud:         115200,
		LogLevel:     "info",
		PollAttempts: hbloader.DefaultPollAttempts,
		PollTimeout:  hbloader.DefaultPollTimeout,
		Pace:         hbloader.DefaultPace,
	}
}

type fileConfig struct {
	Port        string `toml:"port"`
	Baud        int    `toml:"baud"`
	URL         string `toml:"url"`
	Username    string `toml:"username"`
	NoSSLVerify bool   `toml:"no_ssl_verify"`
	LogLevel    string `toml:"log_level"`

	Handshake struct {
		Attempts    int    `toml:"attempts"`
		PollTimeout string `toml:"poll_timeout"`
		Pace        string `toml:"pace"`
	} `toml:"handshake"`
}

// loadSettingsFile applies the keys defined in a TOML file on top of cfg
func loadSettingsFile(path string, cfg *Settings) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") {
		if raw.Baud <= 0 {
			return fmt.Errorf("parse baud: must be positive, got %d", raw.Baud)
		}
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("username") {
		cfg.Username = strings.TrimSpace(raw.Username)
	}
	if meta.IsDefined("no_ssl_verify") {
		cfg.NoSSLVerify = raw.NoSSLVerify
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("handshake", "attempts") {
		if raw.Handshake.Attempts <= 0 {
			return fmt.Errorf("parse handshake.attempts: must be positive, got %d", raw.Handshake.Attempts)
		}
		cfg.PollAttempts = raw.Handshake.Attempts
	}
	if meta.IsDefined("handshake", "poll_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Handshake.PollTimeout))
		if err != nil {
			return fmt.Errorf("parse handshake.poll_timeout: %w", err)
		}
		cfg.PollTimeout = d
	}
	if meta.IsDefined("handshake", "pace") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Handshake.Pace))
		if err != nil {
			return fmt.Errorf("parse handshake.pace: %w", err)
		}
		cfg.Pace = d
	}

	return nil
}

// Validate rejects settings the session cannot run with
func (s *Settings) Validate() error {
	if s.URL != "" && s.Port != "" {
		return fmt.Errorf("--port and --url are mutually exclusive")
	}
	if s.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", s.Baud)
	}
	if s.PollAttempts <= 0 {
		return fmt.Errorf("poll attempts must be positive, got %d", s.PollAttempts)
	}
	if s.PollTimeout <= 0 {
		return fmt.Errorf("poll timeout must be positive, got %v", s.PollTimeout)
	}
	if s.Pace < 0 {
		return fmt.Errorf("pace must not be negative, got %v", s.Pace)
	}
	return nil
}
