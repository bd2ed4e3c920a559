package downloader

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"drivefetch/internal"
	"drivefetch/utils"
)

// maxConfirmAttempts is how many times a download is re-requested with
// scraped confirmation tokens before giving up.
const maxConfirmAttempts = 2

// fallbackConfirmToken is accepted by the service for most small interstitials
const fallbackConfirmToken = "t"

var _ internal.Retriever = (*Engine)(nil)

// Engine downloads shared files and walks shared folders. All work is
// sequential and every request goes through the session's cookie store.
type Engine struct {
	fetcher     internal.Fetcher
	fileOps     *utils.FileOperations
	endpoints   Endpoints
	session     *Session
	config      *internal.DownloadConfig
	now         func() time.Time
	progressOut io.Writer
}

// NewEngine creates an Engine from its collaborators
func NewEngine(fetcher internal.Fetcher, fileOps *utils.FileOperations, endpoints Endpoints, session *Session, config *internal.DownloadConfig) *Engine {
	if config == nil {
		config = &internal.DownloadConfig{}
	}
	if session == nil {
		session = NewSession()
	}
	if fileOps == nil {
		fileOps = utils.NewFileOperations()
	}
	return &Engine{
		fetcher:     fetcher,
		fileOps:     fileOps,
		endpoints:   endpoints,
		session:     session,
		config:      config,
		now:         time.Now,
		progressOut: os.Stderr,
	}
}

// NewDefaultEngine wires an Engine to the real network and filesystem using cfg
func NewDefaultEngine(cfg *internal.Config, outputName string) *Engine {
	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries

	client := utils.NewHTTPClientWithConfig(&utils.HTTPClientConfig{
		Timeout:      time.Duration(cfg.Timeout) * time.Second,
		ProxyURL:     cfg.ProxyURL,
		UserAgent:    cfg.UserAgent,
		MaxRedirects: cfg.MaxRedirects,
		RetryConfig:  retry,
	})

	return NewEngine(client, utils.NewFileOperations(), NewEndpoints(cfg.BaseURL), NewSession(), cfg.DownloadConfig(outputName))
}

// Session returns the run state
func (e *Engine) Session() *Session {
	return e.session
}

// SetClock replaces the time source used to interpret listing timestamps
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// SetProgressOutput sets where the progress bar is drawn
func (e *Engine) SetProgressOutput(w io.Writer) {
	e.progressOut = w
}

// Run fetches every input in order into destDir. It stops at the first
// error only in fail-fast mode; otherwise errors are collected and reported
// together once all inputs have been tried.
func (e *Engine) Run(ctx context.Context, inputs []string, destDir string) error {
	internal.LogDebug("Session %s: %d input(s) into %s", e.session.ID, len(inputs), destDir)

	for _, input := range inputs {
		if err := e.checkCancelled(ctx); err != nil {
			return err
		}
		if err := e.Fetch(ctx, input, destDir); err != nil {
			return err
		}
	}

	if err := e.checkCancelled(ctx); err != nil {
		return err
	}
	if e.session.Failed() {
		return internal.NewRunFailedError(len(e.session.Errors()))
	}
	return nil
}

// Fetch resolves a single URL or bare identifier and downloads it into destDir
func (e *Engine) Fetch(ctx context.Context, input, destDir string) error {
	ref, ok := utils.ParseReference(input)
	if !ok {
		return e.fail(internal.NewUnresolvableIDError(input))
	}

	target := input
	if !utils.HasScheme(input) {
		ref.Kind = internal.KindUnknown
	}

	if ref.Kind == internal.KindUnknown {
		lookup := e.endpoints.LookupURL(ref.ID)
		resp, err := e.fetcher.Fetch(ctx, lookup, e.session.Cookies)
		if err != nil {
			return e.fail(err)
		}
		target = finalURL(resp, lookup)
		discard(resp)
		ref.Kind = utils.ClassifyURL(target)
		internal.LogDebug("Lookup of %s resolved to %s (%s)", ref.ID, target, ref.Kind)
	}

	switch ref.Kind {
	case internal.KindFile:
		return e.DownloadFile(ctx, ref.ID, destDir, e.config.OutputName, "")
	case internal.KindFolder:
		if e.config.OutputName != "" {
			internal.LogWarn("Ignoring output name %q for folder %s", e.config.OutputName, ref.ID)
		}
		return e.DownloadFolder(ctx, ref.ID, destDir)
	default:
		return e.fail(internal.NewUnrecognizedURLError(ref.ID, target))
	}
}

// DownloadFile downloads the file id into dir. nameHint, when set, names the
// local file and allows the freshness check to skip the request entirely.
// modifiedText is the listing timestamp used to decide freshness and to stamp
// the downloaded file.
func (e *Engine) DownloadFile(ctx context.Context, id, dir, nameHint, modifiedText string) error {
	var expected *int64
	if e.config.HonorModTimes && modifiedText != "" {
		if epoch, ok := utils.ParseModifiedTime(modifiedText, e.now()); ok {
			expected = &epoch
		} else {
			internal.LogDebug("Could not parse modified time %q for %s", modifiedText, id)
		}
	}

	path := ""
	if nameHint != "" {
		path = filepath.Join(dir, utils.SanitizeFilename(nameHint))
		if e.fileOps.IsFresh(path, expected, e.config.Overwrite) {
			e.skip(path)
			return nil
		}
	}

	var state internal.ConfirmState
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return e.fail(internal.NewNetworkError(e.endpoints.DownloadURL(id, state), err).WithID(id))
		}

		downloadURL := e.endpoints.DownloadURL(id, state)
		resp, err := e.fetcher.Fetch(ctx, downloadURL, e.session.Cookies)
		if err != nil {
			return e.fail(err)
		}

		if IsLoginURL(requestURL(resp)) {
			discard(resp)
			return e.fail(internal.NewSharingDisabledError(id))
		}

		if disposition := resp.Header.Get("Content-Disposition"); disposition != "" {
			return e.saveResponse(ctx, resp, id, dir, path, disposition, expected)
		}

		page, err := readPage(resp.Body)
		resp.Body.Close()
		if err != nil {
			return e.fail(internal.NewNetworkError(downloadURL, err).WithID(id))
		}

		if isQuotaPage(page) {
			return e.fail(internal.NewQuotaExceededError(id))
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return e.fail(internal.NewInvalidResponseError(resp.StatusCode, downloadURL).WithID(id))
		}
		if attempt >= maxConfirmAttempts {
			return e.fail(internal.NewConfirmationLoopError(id, attempt))
		}

		scraped := extractConfirmState(page)
		switch {
		case scraped.Confirm != "" && scraped.Confirm != state.Confirm:
			state.Confirm = scraped.Confirm
		case state.Confirm != fallbackConfirmToken:
			state.Confirm = fallbackConfirmToken
		default:
			return e.fail(internal.NewConfirmationLoopError(id, attempt))
		}
		if scraped.UUID != "" {
			state.UUID = scraped.UUID
		}
		internal.LogDebug("Confirmation page for %s, retrying (attempt %d/%d)", id, attempt+1, maxConfirmAttempts)
	}
}

// saveResponse writes a file response to disk, naming it from the response when no hint was given
func (e *Engine) saveResponse(ctx context.Context, resp *http.Response, id, dir, path, disposition string, expected *int64) error {
	defer resp.Body.Close()

	if path == "" {
		name := utils.SanitizeFilename(filenameFromDisposition(disposition, id))
		path = filepath.Join(dir, name)
		if e.fileOps.IsFresh(path, expected, e.config.Overwrite) {
			e.skip(path)
			return nil
		}
	}

	if err := e.fileOps.EnsureDir(path); err != nil {
		return e.fail(internal.NewIOError("create directory for", path, err).WithID(id))
	}

	internal.LogInfo("Downloading %s", path)
	if err := e.saveBody(ctx, resp.Body, path, resp.ContentLength); err != nil {
		return e.fail(err)
	}

	if expected != nil {
		if err := e.fileOps.SetModTime(path, *expected); err != nil {
			return e.fail(internal.NewIOError("set modification time of", path, err).WithID(id))
		}
	}

	e.session.RecordDownload(path)
	return nil
}

// DownloadFolder mirrors the folder id into dir, recursing into subfolders.
// A folder already entered during this run is skipped.
func (e *Engine) DownloadFolder(ctx context.Context, id, dir string) error {
	if !e.session.MarkVisited(id) {
		internal.LogInfo("Folder %s already visited, skipping", id)
		return nil
	}

	listingURL := e.endpoints.FolderURL(id)
	resp, err := e.fetcher.Fetch(ctx, listingURL, e.session.Cookies)
	if err != nil {
		return e.fail(err)
	}

	entries, err := ParseFolderListing(io.LimitReader(resp.Body, maxPageSize))
	loginRedirect := IsLoginURL(requestURL(resp))
	resp.Body.Close()
	if err != nil {
		return e.fail(internal.NewNetworkError(listingURL, err).WithID(id))
	}

	if len(entries) == 0 && loginRedirect {
		return e.fail(internal.NewSharingDisabledError(id))
	}
	internal.LogInfo("Folder %s: %d entries", id, len(entries))

	for _, entry := range entries {
		if err := e.checkCancelled(ctx); err != nil {
			return err
		}
		if err := e.downloadEntry(ctx, entry, dir); err != nil {
			return err
		}
	}

	if err := e.fileOps.MkdirAll(dir); err != nil {
		return e.fail(internal.NewIOError("create directory", dir, err).WithID(id))
	}
	return nil
}

// downloadEntry handles one child of a folder listing. Children that are
// neither files nor folders (native documents, shortcuts) cannot be exported
// anonymously and are skipped with a warning.
func (e *Engine) downloadEntry(ctx context.Context, entry internal.FolderEntry, dir string) error {
	ref, ok := utils.ParseReference(entry.URL)
	if !ok {
		return e.fail(internal.NewUnresolvableIDError(entry.URL))
	}

	switch ref.Kind {
	case internal.KindFile:
		return e.DownloadFile(ctx, ref.ID, dir, entry.Title, entry.Modified)
	case internal.KindFolder:
		return e.DownloadFolder(ctx, ref.ID, filepath.Join(dir, utils.SanitizeFilename(entry.Title)))
	default:
		internal.LogWarn("Skipping %q (%s): not a file or folder", entry.Title, ref.ID)
		return nil
	}
}

// fail records err in the session and logs it. The error is handed back to
// the caller, stopping the run, only in fail-fast mode.
func (e *Engine) fail(err error) error {
	e.session.RecordError(err)
	internal.LogFetchError(err)
	if e.config.FailFast {
		return err
	}
	return nil
}

// checkCancelled records and returns the context error once the run is cancelled
func (e *Engine) checkCancelled(ctx context.Context) error {
	err := ctx.Err()
	if err != nil {
		e.session.RecordError(err)
	}
	return err
}

func (e *Engine) skip(path string) {
	internal.LogInfo("%s exists, skipping", path)
	e.session.RecordSkip(path)
}

// requestURL is the URL of the last hop that produced resp
func requestURL(resp *http.Response) *url.URL {
	if resp.Request == nil {
		return nil
	}
	return resp.Request.URL
}

func finalURL(resp *http.Response, fallback string) string {
	if u := requestURL(resp); u != nil {
		return u.String()
	}
	return fallback
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageSize))
	resp.Body.Close()
}
