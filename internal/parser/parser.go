// Package parser splits raw source lines into delimited fields.
package parser

import (
	"bufio"
	"bytes"
	"strings"
	"unicode"
)

// DefaultDelimiter separates fields in a source line.
const DefaultDelimiter = "\t"

// Fields splits line on sep. Every delimiter starts a new field, so empty
// fields are kept wherever they occur, including after a terminal delimiter.
// An empty line has no fields at all. A trailing carriage return is stripped
// so CRLF sources parse like LF ones.
func Fields(line, sep string) []string {
	if sep == "" {
		sep = DefaultDelimiter
	}
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return nil
	}
	return strings.Split(line, sep)
}

// Blank reports whether line holds only whitespace. Delimiter characters are
// content: a line of bare tabs is not blank under the tab delimiter.
func Blank(line, sep string) bool {
	if sep == "" {
		sep = DefaultDelimiter
	}
	for _, r := range line {
		if !unicode.IsSpace(r) || strings.ContainsRune(sep, r) {
			return false
		}
	}
	return true
}

// Lines splits raw source bytes into lines. The last line may omit its
// newline terminator.
func Lines(data []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out
}
