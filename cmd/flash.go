// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/hbloader/internal/logging"
	"github.com/Thermoquad/hbloader/pkg/hbloader"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// flashRun is everything one flashing session needs
type flashRun struct {
	settings  Settings
	log       zerolog.Logger
	in        io.Reader
	inputSize int64 // 0 when unknown (stdin)
	ch        hbloader.Channel
	connInfo  string
	stats     *hbloader.Statistics
}

func (r *flashRun) options(extra ...hbloader.Option) []hbloader.Option {
	opts := []hbloader.Option{
		hbloader.WithLogger(r.log),
		hbloader.WithHandshake(r.settings.PollAttempts, r.settings.PollTimeout),
		hbloader.WithPace(r.settings.Pace),
		hbloader.WithObserver(r.stats.Observe),
	}
	return append(opts, extra...)
}

func runFlash(cmd *cobra.Command, args []string) error {
	settings, err := resolveSettings(cmd, args)
	if err != nil {
		return err
	}

	var reportFormat hbloader.ReportFormat
	if reportPath != "" {
		reportFormat, err = hbloader.ReportFormatFor(reportPath)
		if err != nil {
			return fmt.Errorf("%w: %v", errConfig, err)
		}
	}

	in, size, closeInput, err := openInput(inputPath)
	if err != nil {
		return err
	}
	defer closeInput()

	log := logging.New(os.Stderr, settings.LogLevel)

	ch, connInfo, err := OpenChannel(&settings)
	if err != nil {
		return err
	}
	log.Info().Str("connection", connInfo).Msg("channel open")

	run := &flashRun{
		settings:  settings,
		log:       log,
		in:        in,
		inputSize: size,
		ch:        ch,
		connInfo:  connInfo,
		stats:     hbloader.NewStatistics(),
	}

	tui := useTUI
	if tui && !term.IsTerminal(int(os.Stderr.Fd())) {
		log.Warn().Msg("stderr is not a terminal, --tui ignored")
		tui = false
	}

	if tui {
		err = runFlashTUI(run)
	} else {
		err = hbloader.NewSession(run.ch, run.in, run.options()...).Run()
	}

	if err != nil {
		log.Error().Err(err).Str("kind", hbloader.ErrorKind(err)).Msg("session failed")
		// Already reported through the logger
		cmd.SilenceErrors = true
	} else {
		log.Info().
			Uint64("commands", run.stats.Commands).
			Uint64("bytes", run.stats.BytesSent).
			Dur("elapsed", run.stats.Elapsed()).
			Msg("input exhausted, session complete")
	}

	if showStats {
		fmt.Fprint(os.Stderr, run.stats.String())
	}

	if reportPath != "" {
		if rerr := writeReport(reportPath, reportFormat, hbloader.NewReport(connInfo, run.stats, err)); rerr != nil {
			log.Error().Err(rerr).Str("path", reportPath).Msg("failed to write report")
		}
	}

	return err
}

// openInput returns the command source and its size when known
func openInput(path string) (io.Reader, int64, func(), error) {
	if path == "" || path == "-" {
		return bufio.NewReader(os.Stdin), 0, func() {}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("%w: %v", errConfig, err)
	}

	var size int64
	if info, err := f.Stat(); err == nil && info.Mode().IsRegular() {
		size = info.Size()
	}
	return bufio.NewReader(f), size, func() { f.Close() }, nil
}

func writeReport(path string, format hbloader.ReportFormat, report *hbloader.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.Encode(f, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
