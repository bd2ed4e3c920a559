package utils

import (
	"strings"
	"unicode/utf8"
)

// MaxFilenameLength is the longest name accepted by common filesystems
const MaxFilenameLength = 255

const filenameBlacklist = "\\/:*?\"<>|\x00"

var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SanitizeFilename turns an untrusted display name into a name that is safe on
// the most restrictive common filesystem. It never fails and never returns "".
func SanitizeFilename(raw string) string {
	name := raw

	// Decoding can expose new escapes and stripping can glue a '%' to two hex
	// digits, so both steps repeat until neither changes the name.
	for {
		next := stripUnsafe(percentDecode(name))
		if next == name {
			break
		}
		name = next
	}

	name = finishName(name)
	if utf8.RuneCountInString(name) > MaxFilenameLength {
		// cutting the tail can leave trailing spaces or a bare reserved name
		name = finishName(truncateName(name))
	}
	return name
}

// finishName trims the name and fixes up the cases no filesystem accepts
func finishName(name string) string {
	name = trimName(name)

	if name != "" && strings.Trim(name, ".") == "" {
		name = "_" + name
	}
	if _, reserved := reservedNames[strings.ToUpper(name)]; reserved {
		name = "_" + name
	}
	if name == "" {
		name = "_"
	}
	return name
}

// percentDecode decodes valid %XX escapes and leaves malformed ones untouched.
// Byte sequences that do not form UTF-8 become '_'.
func percentDecode(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return strings.ToValidUTF8(b.String(), "_")
}

func stripUnsafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 || strings.ContainsRune(filenameBlacklist, r) {
			return -1
		}
		return r
	}, s)
}

// trimName drops trailing dots and spaces and surrounding whitespace until stable
func trimName(s string) string {
	for {
		t := strings.TrimSpace(strings.TrimRight(s, ". "))
		if t == s {
			return s
		}
		s = t
	}
}

// truncateName shortens the base name, keeping the last extension intact
func truncateName(name string) string {
	if utf8.RuneCountInString(name) <= MaxFilenameLength {
		return name
	}

	base, ext := name, ""
	if i := strings.LastIndex(name, "."); i >= 0 {
		base, ext = name[:i], name[i:]
	}

	budget := MaxFilenameLength - utf8.RuneCountInString(ext)
	if ext == "" || budget < 1 {
		return firstRunes(name, MaxFilenameLength)
	}

	return firstRunes(base, budget) + ext
}

func firstRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
