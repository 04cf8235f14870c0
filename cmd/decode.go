// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/Thermoquad/hbloader/pkg/hbloader"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var decodeHexdump bool

var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Display a command stream in human-readable format",
	Long: `Decode a bootloader command stream without sending it anywhere.

Each write-page and jump command is printed with its offset in the stream.
Reads standard input when no file is given. Decoding stops at the first
truncated or unrecognized command.

Exit codes:
  0 - Stream decoded completely
  1 - Truncated or unrecognized command
  2 - File could not be opened`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().BoolVar(&decodeHexdump, "hexdump", false, "Show page data of write commands")
}

func runDecode(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}

	in, _, closeInput, err := openInput(path)
	if err != nil {
		return err
	}
	defer closeInput()

	_, err = decodeStream(in, cmd.OutOrStdout(), decodeHexdump)
	return err
}

// countingReader tracks the stream offset for error and listing output
type countingReader struct {
	r   io.Reader
	off int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.off += int64(n)
	return n, err
}

// decodeStream prints every command in r and returns how many it decoded
func decodeStream(r io.Reader, w io.Writer, hexdump bool) (int, error) {
	offsetStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	cr := &countingReader{r: r}
	br := bufio.NewReader(cr)
	offset := func() int64 { return cr.off - int64(br.Buffered()) }

	count := 0
	for {
		start := offset()
		opcode, err := br.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("%w: %w", hbloader.ErrInputRead, err)
		}

		c, err := hbloader.DecodeCommand(opcode, br)
		if err != nil {
			return count, fmt.Errorf("offset 0x%06X: %w", start, &hbloader.CommandError{Opcode: opcode, Err: err})
		}

		fmt.Fprintf(w, "%s %s", offsetStyle.Render(fmt.Sprintf("%06X", start)), hbloader.FormatCommand(c, hexdump))
		count++
	}

	fmt.Fprintf(w, "%d commands\n", count)
	return count, nil
}
