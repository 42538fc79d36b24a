// Package textutil classifies blob content for display.
package textutil

import "bytes"

// BinarySniffLength is the number of leading bytes scanned for a NUL byte,
// the same heuristic git uses.
const BinarySniffLength = 8000

// IsBinary reports whether data has a NUL byte in its first BinarySniffLength
// bytes. Empty data is text.
func IsBinary(data []byte) bool {
	sniff := data
	if len(sniff) > BinarySniffLength {
		sniff = sniff[:BinarySniffLength]
	}

	return bytes.IndexByte(sniff, 0) >= 0
}

// CountLines counts newline-terminated lines plus a trailing partial line.
func CountLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}

	lines := bytes.Count(data, []byte{'\n'})

	if data[len(data)-1] != '\n' {
		lines++
	}

	return lines
}
