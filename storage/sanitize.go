package storage

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var invalidChars = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)
var pathSeparators = regexp.MustCompile(`[/\\]`)

var windowsDeviceNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// sanitizeName renders a namespace key into a filesystem-safe directory
// name: NFKD-normalise, replace path separators with spaces, join
// whitespace-separated runs with a single underscore, strip any character
// outside [A-Za-z0-9_.-], trim leading dots/underscores, and guard against
// Windows reserved device names (spec §6.1).
func sanitizeName(s string) string {
	s = norm.NFKD.String(s)
	s = pathSeparators.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), "_")
	s = invalidChars.ReplaceAllString(s, "")
	s = strings.TrimLeft(s, "._")
	if s == "" {
		s = "_"
	}
	if windowsDeviceNames[strings.ToUpper(s)] {
		s = "_" + s
	}
	return s
}
