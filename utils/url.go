package utils

import (
	"regexp"
	"strings"

	"drivefetch/internal"
)

// Markers used to classify a resolved URL
const (
	FilePathMarker   = "/file/d/"
	FolderPathMarker = "/folders/"
	DownloadMarker   = "uc?"
)

// idPatterns are tried in order; the catch-all must stay last so that it only
// applies to bare identifiers and never shadows a structured URL.
var idPatterns = []*regexp.Regexp{
	// File view/edit URL: https://drive.google.com/file/d/<id>/view
	regexp.MustCompile(`/file/d/([0-9A-Za-z_-]+)`),

	// Folder URL: https://drive.google.com/drive/folders/<id>
	regexp.MustCompile(`/folders/([0-9A-Za-z_-]+)`),

	// open?id=<id>, uc?id=<id>&export=download
	regexp.MustCompile(`[?&]id=([0-9A-Za-z_-]+)`),

	// Bare identifier
	regexp.MustCompile(`([0-9A-Za-z_-]{10,})`),
}

var schemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)

// ResolveID extracts the resource identifier from a shared URL or a bare id
func ResolveID(urlOrID string) (string, bool) {
	for _, pattern := range idPatterns {
		if m := pattern.FindStringSubmatch(urlOrID); len(m) > 1 {
			return m[1], true
		}
	}
	return "", false
}

// HasScheme reports whether the input looks like an absolute URL rather than a bare id
func HasScheme(input string) bool {
	return schemePattern.MatchString(input)
}

// ClassifyURL decides whether a URL names a file or a folder
func ClassifyURL(rawURL string) internal.ResourceKind {
	switch {
	case strings.Contains(rawURL, FilePathMarker), strings.Contains(rawURL, DownloadMarker):
		return internal.KindFile
	case strings.Contains(rawURL, FolderPathMarker):
		return internal.KindFolder
	default:
		return internal.KindUnknown
	}
}

// ParseReference resolves the id and classifies the URL in one step
func ParseReference(rawURL string) (internal.ResourceRef, bool) {
	id, ok := ResolveID(rawURL)
	if !ok {
		return internal.ResourceRef{}, false
	}
	return internal.ResourceRef{ID: id, Kind: ClassifyURL(rawURL)}, true
}
