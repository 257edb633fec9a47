// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package tools

import (
	"fmt"
	"regexp"
	"strings"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]|\x1b\][^\x1b]*(?:\x07|\x1b\\)`)

// maxTruncationMarkerLen bounds the length of any marker produced below.
const maxTruncationMarkerLen = 96

// truncationMarker is appended after an excerpt of shown bytes out of total.
func truncationMarker(shown, total int) string {
	return fmt.Sprintf("\n[truncated: showing first %d of %d bytes]", shown, total)
}

// truncateBytes cuts input to exactly max bytes and appends a marker.
func truncateBytes(input string, max int) (string, bool) {
	if max <= 0 || len(input) <= max {
		return input, false
	}
	return input[:max] + truncationMarker(max, len(input)), true
}

// SanitizeOutput removes terminal escape sequences and control characters
// other than newline, carriage return and tab.
func SanitizeOutput(output string) string {
	return stripControlChars(ansiPattern.ReplaceAllString(output, ""))
}

func stripControlChars(input string) string {
	var builder strings.Builder
	builder.Grow(len(input))
	for _, r := range input {
		if r == '\n' || r == '\r' || r == '\t' {
			builder.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

// cappedBuffer keeps the first limit bytes written to it and counts the rest.
type cappedBuffer struct {
	limit   int
	buf     []byte
	dropped int
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	room := c.limit - len(c.buf)
	if room > len(p) {
		room = len(p)
	}
	if room > 0 {
		c.buf = append(c.buf, p[:room]...)
	}
	c.dropped += len(p) - room
	return len(p), nil
}

// String returns the captured bytes, with a marker if anything was dropped.
func (c *cappedBuffer) String() string {
	if c.dropped == 0 {
		return string(c.buf)
	}
	return string(c.buf) + truncationMarker(len(c.buf), len(c.buf)+c.dropped)
}
