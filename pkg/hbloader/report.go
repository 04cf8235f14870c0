// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hbloader

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fxamacker/cbor/v2"
)

// Outcome values recorded in a Report
const (
	OutcomeClean = "clean"
	OutcomeError = "error"
)

// ReportFormat selects the encoding of a written Report.
type ReportFormat int

const (
	ReportTOML ReportFormat = iota
	ReportCBOR
)

// Report summarises one session for machine consumption.
type Report struct {
	Transport  string      `toml:"transport" cbor:"1,keyasint"`
	Outcome    string      `toml:"outcome" cbor:"2,keyasint"`
	Error      string      `toml:"error,omitempty" cbor:"3,keyasint,omitempty"`
	ErrorKind  string      `toml:"error_kind,omitempty" cbor:"4,keyasint,omitempty"`
	ExitStatus int         `toml:"exit_status" cbor:"5,keyasint"`
	Statistics *Statistics `toml:"statistics" cbor:"6,keyasint"`
}

// NewReport builds a report from the session result.
func NewReport(transport string, stats *Statistics, err error) *Report {
	r := &Report{
		Transport:  transport,
		Outcome:    OutcomeClean,
		ExitStatus: ExitCode(err),
		Statistics: stats,
	}
	if err != nil {
		r.Outcome = OutcomeError
		r.Error = err.Error()
		r.ErrorKind = ErrorKind(err)
	}
	if stats != nil {
		stats.CalculateRates()
	}
	return r
}

// ReportFormatFor picks the report format from a file extension.
func ReportFormatFor(path string) (ReportFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return ReportTOML, nil
	case ".cbor":
		return ReportCBOR, nil
	default:
		return 0, fmt.Errorf("unsupported report format %q (use .toml or .cbor)", filepath.Ext(path))
	}
}

// Encode writes the report to w in the given format.
func (r *Report) Encode(w io.Writer, format ReportFormat) error {
	switch format {
	case ReportTOML:
		if err := toml.NewEncoder(w).Encode(r); err != nil {
			return fmt.Errorf("failed to encode TOML report: %w", err)
		}
	case ReportCBOR:
		data, err := cbor.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode CBOR report: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown report format %d", format)
	}
	return nil
}

// ErrorKind names the error kind err matches, or "" for nil.
func ErrorKind(err error) string {
	kinds := []struct {
		err  error
		name string
	}{
		{ErrTransportOpen, "transport_open"},
		{ErrInputRead, "input_read"},
		{ErrShortRead, "short_read"},
		{ErrWriteFailure, "write_failure"},
		{ErrHandshakeTimeout, "handshake_timeout"},
		{ErrHandshakeMismatch, "handshake_mismatch"},
		{ErrUnknownCommand, "unknown_command"},
	}
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "other"
}
