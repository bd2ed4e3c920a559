package downloader

import (
	"net/url"
	"strings"

	"drivefetch/internal"
)

// LoginHost is where the service sends anonymous visitors of non-public resources
const LoginHost = "accounts.google.com"

// Endpoints builds the three URLs the retrieval engine talks to
type Endpoints struct {
	BaseURL string
}

// NewEndpoints creates Endpoints rooted at baseURL, or at the public service when empty
func NewEndpoints(baseURL string) Endpoints {
	if baseURL == "" {
		baseURL = internal.DefaultBaseURL
	}
	return Endpoints{BaseURL: strings.TrimRight(baseURL, "/")}
}

// LookupURL is the generic open endpoint; its redirect reveals whether id is a file or a folder
func (e Endpoints) LookupURL(id string) string {
	return e.BaseURL + "/open?id=" + url.QueryEscape(id)
}

// DownloadURL is the direct download endpoint, carrying any scraped confirmation tokens
func (e Endpoints) DownloadURL(id string, state internal.ConfirmState) string {
	q := url.Values{}
	q.Set("export", "download")
	q.Set("id", id)
	if state.Confirm != "" {
		q.Set("confirm", state.Confirm)
	}
	if state.UUID != "" {
		q.Set("uuid", state.UUID)
	}
	return e.BaseURL + "/uc?" + encodeOrdered(q, "export", "id", "confirm", "uuid")
}

// FolderURL is the embedded folder view listing the children of id
func (e Endpoints) FolderURL(id string) string {
	return e.BaseURL + "/embeddedfolderview?id=" + url.QueryEscape(id)
}

// IsLoginURL reports whether u is a sign-in page
func IsLoginURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), LoginHost) || strings.Contains(u.Path, "ServiceLogin")
}

// encodeOrdered encodes q with keys in the given order; url.Values.Encode sorts alphabetically
func encodeOrdered(q url.Values, keys ...string) string {
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		if v := q.Get(key); v != "" {
			parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}
