// Package hexdump renders byte slices as offset/hex/ASCII columns for
// terminal output.
package hexdump

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// Options controls dump formatting.
type Options struct {
	// BytesPerLine is the number of bytes rendered per output line.
	BytesPerLine int

	// OffsetWidth is the width of the offset column in hex digits.
	OffsetWidth int

	// Highlight marks every occurrence of this byte sequence.
	Highlight []byte

	OffsetColor       coloransi.ColorCode
	HexColor          coloransi.ColorCode
	ASCIIColor        coloransi.ColorCode
	NonPrintableColor coloransi.ColorCode
	HighlightColor    coloransi.ColorCode
}

// DefaultOptions returns the formatting used by the CLI.
func DefaultOptions() Options {
	return Options{
		BytesPerLine:      16,
		OffsetWidth:       16,
		OffsetColor:       coloransi.ColorTeal,
		HexColor:          coloransi.ColorLimeGreen,
		ASCIIColor:        coloransi.White,
		NonPrintableColor: coloransi.BrightBlack,
		HighlightColor:    coloransi.BrightRed,
	}
}

// Dump renders data with default options, labeling offsets from base.
func Dump(data []byte, base uint64) string {
	return DumpWithOptions(data, base, DefaultOptions())
}

// DumpHighlight renders data with every occurrence of needle marked.
func DumpHighlight(data []byte, base uint64, needle []byte) string {
	opts := DefaultOptions()
	opts.Highlight = needle
	return DumpWithOptions(data, base, opts)
}

// DumpWithOptions renders data as offset/hex/ASCII lines.
func DumpWithOptions(data []byte, base uint64, opts Options) string {
	if opts.BytesPerLine <= 0 {
		opts.BytesPerLine = 16
	}
	if opts.OffsetWidth <= 0 {
		opts.OffsetWidth = 16
	}

	marked := markHighlights(data, opts.Highlight)

	var sb strings.Builder
	for line := 0; line < len(data); line += opts.BytesPerLine {
		end := line + opts.BytesPerLine
		if end > len(data) {
			end = len(data)
		}

		offset := fmt.Sprintf("%0*x", opts.OffsetWidth, base+uint64(line))
		sb.WriteString(coloransi.Foreground(opts.OffsetColor, offset))
		sb.WriteString("  ")

		for i := line; i < line+opts.BytesPerLine; i++ {
			if i >= len(data) {
				sb.WriteString("   ")
				continue
			}
			hexValue := fmt.Sprintf("%02x", data[i])
			color := opts.HexColor
			if marked[i] {
				color = opts.HighlightColor
			}
			sb.WriteString(coloransi.Foreground(color, hexValue))
			sb.WriteString(" ")
		}

		sb.WriteString(" ")
		for i := line; i < end; i++ {
			c := rune(data[i])
			color := opts.ASCIIColor
			out := string(c)
			if !unicode.IsPrint(c) || c > unicode.MaxASCII {
				color = opts.NonPrintableColor
				out = "."
			}
			if marked[i] {
				color = opts.HighlightColor
			}
			sb.WriteString(coloransi.Foreground(color, out))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// markHighlights flags every byte covered by an occurrence of needle.
func markHighlights(data, needle []byte) []bool {
	marked := make([]bool, len(data))
	if len(needle) == 0 {
		return marked
	}
	for off := 0; ; {
		idx := bytes.Index(data[off:], needle)
		if idx < 0 {
			break
		}
		for i := 0; i < len(needle); i++ {
			marked[off+idx+i] = true
		}
		off += idx + 1
	}
	return marked
}
