package downloader

import (
	"fmt"
	"io"
	"mime"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"drivefetch/internal"
)

// maxPageSize bounds how much of an HTML page is read into memory
const maxPageSize = 4 << 20

var quotaMarkers = []string{
	"Quota exceeded",
	"Too many users have viewed or downloaded this file recently",
}

var (
	confirmPattern = regexp.MustCompile(`confirm=([0-9A-Za-z_-]+)`)
	uuidPattern    = regexp.MustCompile(`uuid=([0-9A-Za-z_-]+)`)

	// used only when mime.ParseMediaType rejects the header
	extFilenamePattern    = regexp.MustCompile(`(?i)filename\*\s*=\s*(?:UTF-8|ISO-8859-1)?'[^']*'([^;]+)`)
	quotedFilenamePattern = regexp.MustCompile(`(?i)filename\s*=\s*"([^"]*)"`)
	plainFilenamePattern  = regexp.MustCompile(`(?i)filename\s*=\s*([^;]+)`)
)

// readPage reads at most maxPageSize bytes of an HTML body
func readPage(body io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxPageSize))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// isQuotaPage reports whether the page is the service's download quota notice
func isQuotaPage(page string) bool {
	for _, marker := range quotaMarkers {
		if strings.Contains(page, marker) {
			return true
		}
	}
	return false
}

// extractConfirmState scrapes confirmation tokens from an interstitial page.
// The confirm token comes from any confirm= query parameter in the raw markup,
// then from the form's hidden confirm input. The uuid comes from the hidden
// uuid input, then from any uuid= parameter.
func extractConfirmState(page string) internal.ConfirmState {
	var state internal.ConfirmState

	if m := confirmPattern.FindStringSubmatch(page); len(m) > 1 {
		state.Confirm = m[1]
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err == nil {
		if state.Confirm == "" {
			state.Confirm = strings.TrimSpace(doc.Find(`input[name="confirm"]`).First().AttrOr("value", ""))
		}
		state.UUID = strings.TrimSpace(doc.Find(`input[name="uuid"]`).First().AttrOr("value", ""))
	}

	if state.UUID == "" {
		if m := uuidPattern.FindStringSubmatch(page); len(m) > 1 {
			state.UUID = m[1]
		}
	}

	return state
}

// ParseFolderListing extracts the children of an embedded folder view, in
// document order. Entries without a link are ignored; duplicates are kept.
func ParseFolderListing(r io.Reader) ([]internal.FolderEntry, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse folder listing: %w", err)
	}

	var entries []internal.FolderEntry
	doc.Find(".flip-entry").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Find("a[href]").First().Attr("href")
		if !ok || href == "" {
			return
		}
		entries = append(entries, internal.FolderEntry{
			URL:      href,
			Title:    strings.TrimSpace(s.Find(".flip-entry-title").First().Text()),
			Modified: strings.TrimSpace(s.Find(".flip-entry-last-modified").First().Text()),
		})
	})

	return entries, nil
}

// filenameFromDisposition returns the file name announced by a
// Content-Disposition header, or fallback when none can be recovered.
func filenameFromDisposition(header, fallback string) string {
	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := strings.TrimSpace(params["filename"]); name != "" {
			return name
		}
		return fallback
	}

	if m := extFilenamePattern.FindStringSubmatch(header); len(m) > 1 {
		raw := strings.Trim(strings.TrimSpace(m[1]), `"`)
		if name, err := url.PathUnescape(raw); err == nil && name != "" {
			return name
		}
	}
	if m := quotedFilenamePattern.FindStringSubmatch(header); len(m) > 1 && strings.TrimSpace(m[1]) != "" {
		return strings.TrimSpace(m[1])
	}
	if m := plainFilenamePattern.FindStringSubmatch(header); len(m) > 1 {
		if name := strings.Trim(strings.TrimSpace(m[1]), `"`); name != "" {
			return name
		}
	}
	return fallback
}
