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

// Limits configures size bounds for tool operations.
type Limits struct {
	// MaxReadBytes is the read-file excerpt ceiling.
	MaxReadBytes int
	// MaxStreamBytes caps captured stdout and stderr, each.
	MaxStreamBytes int
	// MaxOutputBytes caps the text of any tool result.
	MaxOutputBytes int
	// MaxFileSizeBytes caps files read into memory and content written.
	MaxFileSizeBytes    int64
	MaxDirectoryEntries int
}

const (
	defaultMaxReadBytes              = 2000
	defaultMaxStreamBytes            = 8 * 1024
	defaultMaxOutputBytes            = 20 * 1024
	defaultMaxFileSizeBytes    int64 = 10 * 1024 * 1024
	defaultMaxDirectoryEntries       = 2000
)

// DefaultLimits returns the default resource limits for tool operations.
func DefaultLimits() Limits {
	return Limits{
		MaxReadBytes:        defaultMaxReadBytes,
		MaxStreamBytes:      defaultMaxStreamBytes,
		MaxOutputBytes:      defaultMaxOutputBytes,
		MaxFileSizeBytes:    defaultMaxFileSizeBytes,
		MaxDirectoryEntries: defaultMaxDirectoryEntries,
	}
}

// normalizeLimits fills zero values with defaults and keeps the result cap
// wide enough that a read-file excerpt is never cut a second time.
func normalizeLimits(l Limits) Limits {
	if l.MaxReadBytes <= 0 {
		l.MaxReadBytes = defaultMaxReadBytes
	}
	if l.MaxStreamBytes <= 0 {
		l.MaxStreamBytes = defaultMaxStreamBytes
	}
	if l.MaxOutputBytes <= 0 {
		l.MaxOutputBytes = defaultMaxOutputBytes
	}
	if l.MaxFileSizeBytes <= 0 {
		l.MaxFileSizeBytes = defaultMaxFileSizeBytes
	}
	if l.MaxDirectoryEntries <= 0 {
		l.MaxDirectoryEntries = defaultMaxDirectoryEntries
	}
	if floor := l.MaxReadBytes + maxTruncationMarkerLen; l.MaxOutputBytes < floor {
		l.MaxOutputBytes = floor
	}
	if floor := 2*l.MaxStreamBytes + 2*maxTruncationMarkerLen + 64; l.MaxOutputBytes < floor {
		l.MaxOutputBytes = floor
	}
	return l
}
