package internal

import (
	"context"
	"net/http"
)

// CookieRecorder accumulates session cookies and renders them for outgoing requests
type CookieRecorder interface {
	Record(values ...string)
	Header() string
}

// Fetcher issues a GET and follows redirects itself, feeding every hop's cookies to the recorder
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, cookies CookieRecorder) (*http.Response, error)
}

// Retriever downloads shared files and folder trees into a local directory
type Retriever interface {
	Fetch(ctx context.Context, input, destDir string) error
	Run(ctx context.Context, inputs []string, destDir string) error
}
