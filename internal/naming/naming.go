// Package naming derives the file and directory names used for working
// copies and audio files. Everything here is pure: no filesystem access.
package naming

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// TimestampLayout is the second-resolution stamp appended to names.
const TimestampLayout = "2006-01-02_15-04-05"

var timestampSuffix = regexp.MustCompile(`_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}$`)

// FormatTimestamp returns the stamp for now, including the leading underscore
func FormatTimestamp(now time.Time) string {
	return "_" + now.Format(TimestampLayout)
}

// WithTimestamp appends the formatted timestamp to name
func WithTimestamp(name string, now time.Time) string {
	return name + FormatTimestamp(now)
}

// StripTimestamp removes a trailing _YYYY-MM-DD_HH-MM-SS from name.
// Names without one are returned unchanged.
func StripTimestamp(name string) string {
	loc := timestampSuffix.FindStringIndex(name)
	if loc == nil {
		return name
	}
	return name[:loc[0]]
}

// HasTimestamp reports whether name ends in a timestamp suffix
func HasTimestamp(name string) bool {
	return timestampSuffix.MatchString(name)
}

// AudioFileName builds the bare file name of a side's audio file.
// The result is deterministic for identical text and second.
func AudioFileName(prefix, text, ext string, timestamped bool, now time.Time) string {
	name := prefix + SafeName(text)
	if timestamped {
		name = WithTimestamp(name, now)
	}
	return name + ext
}

// CanonicalAudioName drops the timestamp from an audio file name while
// keeping its extension, so cat_2024-01-02_03-04-05.wav becomes cat.wav.
func CanonicalAudioName(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return StripTimestamp(stem) + ext
}

// WorkingName returns the timestamped name (without extension) of a new
// working copy for a file named fileNameNoExt with extension ext.
func WorkingName(fileNameNoExt, ext string, now time.Time) string {
	return WithTimestamp(WorkingStem(fileNameNoExt, ext), now)
}

// WorkingStem is WorkingName without the new stamp: the name every working
// copy of the same source shares.
func WorkingStem(fileNameNoExt, ext string) string {
	name := fileNameNoExt
	if ext != "" {
		// deck.txt.txt style names keep only the part before the first ".txt"
		if i := strings.Index(name, "."+ext); i > 0 {
			name = name[:i]
		}
	}
	return StripTimestamp(name)
}

// SafeName replaces characters that cannot appear in a file name on the
// common platforms. Ordinary text, including spaces and non-Latin
// letters, passes through untouched.
func SafeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteRune('_')
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "." || out == ".." {
		return strings.Repeat("_", len(out))
	}
	return out
}
