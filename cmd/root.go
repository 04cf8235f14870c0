// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/hbloader/pkg/hbloader"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// errConfig marks command line and config file problems (exit status 2)
var errConfig = errors.New("configuration error")

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// General flags
	configPath string
	logLevel   string

	// Session flags
	inputPath    string
	pollAttempts int
	pollTimeout  time.Duration
	pace         time.Duration
	useTUI       bool
	showStats    bool
	reportPath   string
)

var rootCmd = &cobra.Command{
	Use:   "hbloader [device]",
	Short: "HB bootloader flashing driver",
	Long: `hbloader - Relay a bootloader command stream to a device.

Reads write-page (0xA7) and jump (0xA9) commands from standard input (or
--input) and sends each one to the bootloader, waiting for the device's
0xA0 acknowledgement before sending the next. The first command that fails
stops the session.

Connection modes:
  Serial:    hbloader /dev/ttyUSB0  or  --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]
  None:      frames are written to stdout and never acknowledged

For WebSocket authentication, the password is read from the HBLOADER_PASSWORD
environment variable, or prompted on the terminal if not set.

Exit codes:
  0 - Input exhausted, every command acknowledged
  1 - Session failed (short input, write failure, handshake failure,
      unknown command)
  2 - Connection or configuration error`,
	Version:       "1.0.0",
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runFlash,
}

func init() {
	bindConnectionFlags(rootCmd.PersistentFlags())
	bindSessionFlags(rootCmd.Flags())

	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errConfig, err)
	})
}

// bindConnectionFlags registers the flags shared by every subcommand
func bindConnectionFlags(fs *pflag.FlagSet) {
	// Serial connection flags
	fs.StringVarP(&portName, "port", "p", "", "Serial port device")
	fs.IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	fs.StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	fs.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	fs.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	fs.StringVarP(&configPath, "config", "c", "", "TOML config file")
	fs.StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error, off)")
}

// bindSessionFlags registers the flags of the flashing session
func bindSessionFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&inputPath, "input", "i", "", "Read commands from a file instead of stdin")
	fs.IntVar(&pollAttempts, "attempts", hbloader.DefaultPollAttempts, "Readiness polls per acknowledgement")
	fs.DurationVar(&pollTimeout, "poll-timeout", hbloader.DefaultPollTimeout, "Timeout of each readiness poll")
	fs.DurationVar(&pace, "pace", hbloader.DefaultPace, "Pause after each acknowledged command")
	fs.BoolVar(&useTUI, "tui", false, "Show a progress dashboard on the terminal")
	fs.BoolVar(&showStats, "stats", false, "Print session statistics when done")
	fs.StringVar(&reportPath, "report", "", "Write a session report (.toml or .cbor)")
}

// resolveSettings merges defaults, the config file and the flags the user
// actually set, in that order
func resolveSettings(cmd *cobra.Command, args []string) (Settings, error) {
	cfg := DefaultSettings()

	if configPath != "" {
		if err := loadSettingsFile(configPath, &cfg); err != nil {
			return Settings{}, fmt.Errorf("%w: %v", errConfig, err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("attempts") {
		cfg.PollAttempts = pollAttempts
	}
	if flags.Changed("poll-timeout") {
		cfg.PollTimeout = pollTimeout
	}
	if flags.Changed("pace") {
		cfg.Pace = pace
	}

	if len(args) == 1 {
		if flags.Changed("port") && portName != args[0] {
			return Settings{}, fmt.Errorf("%w: device given both as argument and --port", errConfig)
		}
		cfg.Port = args[0]
	}

	if err := cfg.Validate(); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", errConfig, err)
	}
	return cfg, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps an Execute error to the process exit status
func ExitCode(err error) int {
	if errors.Is(err, errConfig) {
		return 2
	}
	return hbloader.ExitCode(err)
}
