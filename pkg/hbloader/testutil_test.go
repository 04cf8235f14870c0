// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hbloader

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// fakeChannel simulates a bootloader link. Polls are answered by poll
// (ready by default) and each ReadByte pops the next scripted response.
type fakeChannel struct {
	ops       []string
	written   bytes.Buffer
	frames    [][]byte
	responses []byte
	poll      func(attempt int) (bool, error)

	pollCalls int
	reads     int
	flushes   int
	closes    int

	shortBy  int // accept this many bytes fewer than requested
	writeErr error
	readErr  error
	flushErr error
	closeErr error
}

func newFakeChannel(responses ...byte) *fakeChannel {
	return &fakeChannel{responses: responses}
}

// acking returns a channel that acknowledges n frames.
func acking(n int) *fakeChannel {
	return newFakeChannel(bytes.Repeat([]byte{RespAck}, n)...)
}

func (f *fakeChannel) Write(p []byte) (int, error) {
	f.ops = append(f.ops, "write")
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	n := len(p) - f.shortBy
	if n < 0 {
		n = 0
	}
	f.written.Write(p[:n])
	f.frames = append(f.frames, append([]byte(nil), p[:n]...))
	return n, nil
}

func (f *fakeChannel) Flush() error {
	f.ops = append(f.ops, "flush")
	f.flushes++
	return f.flushErr
}

func (f *fakeChannel) Close() error {
	f.ops = append(f.ops, "close")
	f.closes++
	return f.closeErr
}

func (f *fakeChannel) Poll(timeout time.Duration) (bool, error) {
	f.ops = append(f.ops, "poll")
	f.pollCalls++
	if f.poll == nil {
		return true, nil
	}
	return f.poll(f.pollCalls)
}

func (f *fakeChannel) ReadByte() (byte, error) {
	f.ops = append(f.ops, "read")
	f.reads++
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.responses) == 0 {
		return 0, io.EOF
	}
	b := f.responses[0]
	f.responses = f.responses[1:]
	return b, nil
}

// neverReady is a poll script for a silent device.
func neverReady(int) (bool, error) { return false, nil }

// readyOn returns a poll script that times out until the given attempt.
func readyOn(attempt int) func(int) (bool, error) {
	return func(n int) (bool, error) {
		return n >= attempt, nil
	}
}

// writeStream builds an input stream for a write command.
func writeStream(page byte, data [PageDataSize]byte, checksum byte) []byte {
	return WriteCommand{Page: page, Data: data, Checksum: checksum}.Encode()
}

// errReader fails every read after the prefix is consumed.
type errReader struct {
	prefix []byte
	err    error
}

func (r *errReader) Read(p []byte) (int, error) {
	if len(r.prefix) > 0 {
		n := copy(p, r.prefix)
		r.prefix = r.prefix[n:]
		return n, nil
	}
	return 0, r.err
}

var errBoom = errors.New("boom")

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}
