package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"drivefetch/internal"
	"drivefetch/utils"
)

var testNow = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

type fakeFile struct {
	name    string
	content []byte
	confirm string // token required before the file is served
	uuid    string
	quota   bool
	stuck   bool // always answers with the same interstitial
}

// fakeDrive serves the lookup, download and folder listing endpoints
type fakeDrive struct {
	files   map[string]fakeFile
	folders map[string][]internal.FolderEntry
	private map[string]bool

	mutex    sync.Mutex
	requests map[string]int
	queries  []string
	server   *httptest.Server
}

func newFakeDrive(t *testing.T) *fakeDrive {
	d := &fakeDrive{
		files:    make(map[string]fakeFile),
		folders:  make(map[string][]internal.FolderEntry),
		private:  make(map[string]bool),
		requests: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/open", d.handleOpen)
	mux.HandleFunc("/uc", d.handleDownload)
	mux.HandleFunc("/embeddedfolderview", d.handleListing)
	mux.HandleFunc("/ServiceLogin", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>Sign in</body></html>"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>viewer</body></html>"))
	})

	d.server = httptest.NewServer(mux)
	t.Cleanup(d.server.Close)
	return d
}

func (d *fakeDrive) record(r *http.Request) string {
	id := r.URL.Query().Get("id")
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.requests[r.URL.Path+"?"+id]++
	d.queries = append(d.queries, r.URL.RawQuery)
	return id
}

func (d *fakeDrive) count(path, id string) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.requests[path+"?"+id]
}

func (d *fakeDrive) handleOpen(w http.ResponseWriter, r *http.Request) {
	id := d.record(r)
	switch {
	case d.private[id]:
		http.Redirect(w, r, "/ServiceLogin?continue=x", http.StatusFound)
	case d.files[id].content != nil:
		http.Redirect(w, r, "/file/d/"+id+"/view", http.StatusFound)
	case d.folders[id] != nil:
		http.Redirect(w, r, "/drive/folders/"+id, http.StatusFound)
	default:
		http.NotFound(w, r)
	}
}

func (d *fakeDrive) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := d.record(r)
	if d.private[id] {
		http.Redirect(w, r, "/ServiceLogin?continue=x", http.StatusFound)
		return
	}

	file, ok := d.files[id]
	if !ok {
		http.NotFound(w, r)
		return
	}

	if file.quota {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><p>Too many users have viewed or downloaded this file recently.</p></body></html>"))
		return
	}

	if file.stuck {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><a href="/uc?export=download&amp;confirm=ABCD&amp;id=%s">Download anyway</a></body></html>`, id)
		return
	}

	if file.confirm != "" && r.URL.Query().Get("confirm") != file.confirm {
		http.SetCookie(w, &http.Cookie{Name: "download_warning_" + id, Value: file.confirm, Path: "/"})
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><p>Google Drive can't scan this file for viruses.</p>
<form id="download-form" action="/uc" method="get">
<input type="hidden" name="id" value="%s">
<input type="hidden" name="export" value="download">
<input type="hidden" name="confirm" value="%s">
<input type="hidden" name="uuid" value="%s">
<input type="submit" value="Download anyway">
</form></body></html>`, id, file.confirm, file.uuid)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.name))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(file.content)
}

func (d *fakeDrive) handleListing(w http.ResponseWriter, r *http.Request) {
	id := d.record(r)
	if d.private[id] {
		http.Redirect(w, r, "/ServiceLogin?continue=x", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(listingHTML(d.folders[id]...)))
}

func listingHTML(entries ...internal.FolderEntry) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="flip-entries">`)
	for i, entry := range entries {
		fmt.Fprintf(&b, `<div class="flip-entry" id="entry-%d"><div class="flip-entry-info">`+
			`<a href="%s" target="_blank"><div class="flip-entry-title">%s</div></a></div>`+
			`<div class="flip-entry-last-modified"><div>%s</div></div></div>`,
			i, html.EscapeString(entry.URL), html.EscapeString(entry.Title), html.EscapeString(entry.Modified))
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func fileEntry(id, title, modified string) internal.FolderEntry {
	return internal.FolderEntry{URL: "https://drive.google.com/file/d/" + id + "/view?usp=drive_web", Title: title, Modified: modified}
}

func folderEntry(id, title string) internal.FolderEntry {
	return internal.FolderEntry{URL: "https://drive.google.com/drive/folders/" + id, Title: title}
}

func newTestEngine(d *fakeDrive, fs afero.Fs, config *internal.DownloadConfig) *Engine {
	client := utils.NewHTTPClientWithConfig(&utils.HTTPClientConfig{
		RetryConfig: &utils.RetryConfig{MaxAttempts: 1},
	})
	config.Quiet = true

	engine := NewEngine(client, utils.NewFileOperationsWithFS(fs), NewEndpoints(d.server.URL), NewSession(), config)
	engine.SetClock(func() time.Time { return testNow })
	engine.SetProgressOutput(io.Discard)
	return engine
}

func TestMain(m *testing.M) {
	internal.SetLogger(internal.NewSecureLogger(io.Discard, internal.LogLevelDebug, false, false))
	os.Exit(m.Run())
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("ReadFile(%s) failed: %v", path, err)
	}
	return string(content)
}

func fileExists(fs afero.Fs, path string) bool {
	exists, _ := afero.Exists(fs, path)
	return exists
}

func seedFile(t *testing.T, fs afero.Fs, path, content string, mtime time.Time) {
	t.Helper()
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if !mtime.IsZero() {
		if err := fs.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("Chtimes failed: %v", err)
		}
	}
}

func TestEngine_FolderWithFileAndSubfolder(t *testing.T) {
	d := newFakeDrive(t)
	d.folders["ROOT_FOLDER_1"] = []internal.FolderEntry{
		fileEntry("FILE_AAAA_1", "a.txt", "Dec 25"),
		folderEntry("SUB_FOLDER_1", "sub"),
	}
	d.folders["SUB_FOLDER_1"] = []internal.FolderEntry{
		fileEntry("FILE_BBBB_1", "b:txt?.dat", ""),
	}
	d.files["FILE_AAAA_1"] = fakeFile{name: "a.txt", content: []byte("alpha")}
	d.files["FILE_BBBB_1"] = fakeFile{name: "b.dat", content: []byte("bravo")}

	fs := afero.NewMemMapFs()
	engine := newTestEngine(d, fs, &internal.DownloadConfig{HonorModTimes: true})

	if err := engine.Run(context.Background(), []string{"https://drive.google.com/drive/folders/ROOT_FOLDER_1"}, "out"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if errs := engine.Session().Errors(); len(errs) != 0 {
		t.Fatalf("Unexpected errors: %v", errs)
	}

	if got := readFile(t, fs, filepath.Join("out", "a.txt")); got != "alpha" {
		t.Errorf("Expected alpha, got %q", got)
	}
	if got := readFile(t, fs, filepath.Join("out", "sub", "btxt.dat")); got != "bravo" {
		t.Errorf("Expected bravo, got %q", got)
	}

	info, err := fs.Stat(filepath.Join("out", "a.txt"))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if want := time.Date(2024, time.December, 25, 0, 0, 0, 0, time.UTC).Unix(); info.ModTime().Unix() != want {
		t.Errorf("Expected mtime %d, got %d", want, info.ModTime().Unix())
	}

	if got := engine.Session().VisitLog(); !slices.Equal(got, []string{"ROOT_FOLDER_1", "SUB_FOLDER_1"}) {
		t.Errorf("Unexpected visit order %v", got)
	}
	wantDownloaded := []string{filepath.Join("out", "a.txt"), filepath.Join("out", "sub", "btxt.dat")}
	if got := engine.Session().Downloaded(); !slices.Equal(got, wantDownloaded) {
		t.Errorf("Expected downloads %v, got %v", wantDownloaded, got)
	}
	if n := d.count("/open", "ROOT_FOLDER_1"); n != 0 {
		t.Errorf("Folder URLs must not need a lookup, got %d", n)
	}
}

func TestEngine_FolderCycleVisitsEachFolderOnce(t *testing.T) {
	d := newFakeDrive(t)
	d.folders["FOLDER_AAA_1"] = []internal.FolderEntry{folderEntry("FOLDER_BBB_1", "b")}
	d.folders["FOLDER_BBB_1"] = []internal.FolderEntry{
		folderEntry("FOLDER_AAA_1", "a-again"),
		folderEntry("FOLDER_BBB_1", "self"),
	}

	fs := afero.NewMemMapFs()
	engine := newTestEngine(d, fs, &internal.DownloadConfig{})

	if err := engine.Run(context.Background(), []string{"https://drive.google.com/drive/folders/FOLDER_AAA_1"}, "out"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, id := range []string{"FOLDER_AAA_1", "FOLDER_BBB_1"} {
		if n := d.count("/embeddedfolderview", id); n != 1 {
			t.Errorf("Expected one listing request for %s, got %d", id, n)
		}
	}
	if got := engine.Session().VisitLog(); !slices.Equal(got, []string{"FOLDER_AAA_1", "FOLDER_BBB_1"}) {
		t.Errorf("Unexpected visit order %v", got)
	}
	if errs := engine.Session().Errors(); len(errs) != 0 {
		t.Errorf("Unexpected errors: %v", errs)
	}

	if exists, _ := afero.DirExists(fs, filepath.Join("out", "b")); !exists {
		t.Error("Visited folders are created even when empty")
	}
	if exists, _ := afero.DirExists(fs, filepath.Join("out", "b", "a-again")); exists {
		t.Error("A revisited folder must not be mirrored again")
	}
}

func TestEngine_ConfirmationFlow(t *testing.T) {
	d := newFakeDrive(t)
	d.files["BIG_FILE_001"] = fakeFile{name: "big file.zip", content: []byte("zipped"), confirm: "XyZ_123", uuid: "4f1c-uuid"}

	fs := afero.NewMemMapFs()
	engine := newTestEngine(d, fs, &internal.DownloadConfig{})

	if err := engine.Run(context.Background(), []string{"https://drive.google.com/file/d/BIG_FILE_001/view"}, "out"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := readFile(t, fs, filepath.Join("out", "big file.zip")); got != "zipped" {
		t.Errorf("Expected zipped, got %q", got)
	}

	if n := d.count("/uc", "BIG_FILE_001"); n != 2 {
		t.Errorf("Expected 2 download requests, got %d", n)
	}
	if len(d.queries) != 2 {
		t.Fatalf("Expected 2 queries, got %v", d.queries)
	}
	if !strings.Contains(d.queries[1], "confirm=XyZ_123") || !strings.Contains(d.queries[1], "uuid=4f1c-uuid") {
		t.Errorf("Second request should carry the scraped tokens, got %q", d.queries[1])
	}

	if header := engine.Session().Cookies.Header(); !strings.Contains(header, "download_warning_BIG_FILE_001=XyZ_123") {
		t.Errorf("Warning cookie should be kept in the session, got %q", header)
	}
}

func TestEngine_ConfirmationLoopIsBounded(t *testing.T) {
	d := newFakeDrive(t)
	d.files["LOOP_FILE_01"] = fakeFile{name: "loop.bin", content: []byte("x"), stuck: true}

	fs := afero.NewMemMapFs()
	engine := newTestEngine(d, fs, &internal.DownloadConfig{})

	// errors are only returned in fail-fast mode
	if err := engine.Fetch(context.Background(), "https://drive.google.com/uc?id=LOOP_FILE_01&export=download", "out"); err != nil {
		t.Fatalf("Fetch returned %v", err)
	}

	if n := d.count("/uc", "LOOP_FILE_01"); n != 1+maxConfirmAttempts {
		t.Errorf("Expected %d download requests, got %d", 1+maxConfirmAttempts, n)
	}
	errs := engine.Session().Errors()
	if len(errs) != 1 || !internal.IsType(errs[0], internal.ErrConfirmationLoop) {
		t.Fatalf("Expected one confirmation loop error, got %v", errs)
	}

	if len(d.queries) != 3 {
		t.Fatalf("Expected 3 queries, got %v", d.queries)
	}
	if strings.Contains(d.queries[0], "confirm=") {
		t.Errorf("First request must not carry a token, got %q", d.queries[0])
	}
	if !strings.Contains(d.queries[1], "confirm=ABCD") {
		t.Errorf("Second request should use the scraped token, got %q", d.queries[1])
	}
	if !strings.Contains(d.queries[2], "confirm=t") {
		t.Errorf("Third request should fall back to t, got %q", d.queries[2])
	}

	if fileExists(fs, filepath.Join("out", "loop.bin")) {
		t.Error("No file should be written")
	}
}

func TestEngine_MidStreamFailureLeavesNoFile(t *testing.T) {
	d := newFakeDrive(t)
	d.files["LARGE_FILE_1"] = fakeFile{name: "large.bin", content: bytes.Repeat([]byte("z"), 200*1024)}

	fs := &failingFs{Fs: afero.NewMemMapFs(), failAfter: 70 * 1024}
	engine := newTestEngine(d, fs, &internal.DownloadConfig{})

	err := engine.Run(context.Background(), []string{"https://drive.google.com/file/d/LARGE_FILE_1/view"}, "out")
	if !internal.IsType(err, internal.ErrRunFailed) {
		t.Fatalf("Expected RunFailed, got %v", err)
	}

	errs := engine.Session().Errors()
	if len(errs) != 1 {
		t.Fatalf("Expected one error, got %v", errs)
	}
	if !internal.IsType(errs[0], internal.ErrIO) || !errors.Is(errs[0], errDiskFull) {
		t.Errorf("Expected an IO error wrapping the disk failure, got %v", errs[0])
	}

	if fileExists(fs, filepath.Join("out", "large.bin")) {
		t.Error("Partial file must be removed")
	}
	if got := engine.Session().Downloaded(); len(got) != 0 {
		t.Errorf("Nothing should be recorded as downloaded, got %v", got)
	}
}

func TestEngine_SharingDisabled(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		input string
	}{
		{"file", "PRIVATE_FILE", "https://drive.google.com/file/d/PRIVATE_FILE/view"},
		{"folder", "PRIVATE_DIR1", "https://drive.google.com/drive/folders/PRIVATE_DIR1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDrive(t)
			d.private[tt.id] = true

			engine := newTestEngine(d, afero.NewMemMapFs(), &internal.DownloadConfig{FailFast: true})
			err := engine.Fetch(context.Background(), tt.input, "out")

			if !internal.IsType(err, internal.ErrSharingDisabled) {
				t.Errorf("Expected SharingDisabled, got %v", err)
			}
		})
	}
}

func TestEngine_QuotaExceeded(t *testing.T) {
	d := newFakeDrive(t)
	d.files["POPULAR_FILE"] = fakeFile{name: "popular.mp4", content: []byte("v"), quota: true}

	engine := newTestEngine(d, afero.NewMemMapFs(), &internal.DownloadConfig{FailFast: true})
	err := engine.Fetch(context.Background(), "https://drive.google.com/file/d/POPULAR_FILE/view", "out")

	if !internal.IsType(err, internal.ErrQuotaExceeded) {
		t.Fatalf("Expected QuotaExceeded, got %v", err)
	}
	if n := d.count("/uc", "POPULAR_FILE"); n != 1 {
		t.Errorf("Quota pages are not retried, got %d requests", n)
	}
}

func TestEngine_FreshFileIsSkippedWithoutRequest(t *testing.T) {
	d := newFakeDrive(t)
	d.folders["FRESH_DIR_01"] = []internal.FolderEntry{fileEntry("FRESH_FILE_1", "report.pdf", "12/25/23")}
	d.files["FRESH_FILE_1"] = fakeFile{name: "report.pdf", content: []byte("new")}

	fs := afero.NewMemMapFs()
	path := filepath.Join("out", "report.pdf")
	seedFile(t, fs, path, "old", time.Date(2023, time.December, 25, 0, 0, 0, 0, time.UTC))

	engine := newTestEngine(d, fs, &internal.DownloadConfig{HonorModTimes: true})
	if err := engine.Run(context.Background(), []string{"https://drive.google.com/drive/folders/FRESH_DIR_01"}, "out"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if n := d.count("/uc", "FRESH_FILE_1"); n != 0 {
		t.Errorf("A fresh file must not be requested, got %d requests", n)
	}
	if got := engine.Session().Skipped(); !slices.Equal(got, []string{path}) {
		t.Errorf("Expected %s to be skipped, got %v", path, got)
	}
	if got := readFile(t, fs, path); got != "old" {
		t.Errorf("Existing file must be kept, got %q", got)
	}
}

func TestEngine_StaleFileIsDownloadedAgain(t *testing.T) {
	d := newFakeDrive(t)
	d.folders["STALE_DIR_01"] = []internal.FolderEntry{fileEntry("STALE_FILE_1", "report.pdf", "12/25/23")}
	d.files["STALE_FILE_1"] = fakeFile{name: "report.pdf", content: []byte("new")}

	fs := afero.NewMemMapFs()
	path := filepath.Join("out", "report.pdf")
	seedFile(t, fs, path, "old", time.Date(2023, time.December, 25, 0, 0, 1, 0, time.UTC))

	engine := newTestEngine(d, fs, &internal.DownloadConfig{HonorModTimes: true})
	if err := engine.Run(context.Background(), []string{"https://drive.google.com/drive/folders/STALE_DIR_01"}, "out"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if n := d.count("/uc", "STALE_FILE_1"); n != 1 {
		t.Errorf("Expected one download request, got %d", n)
	}
	if got := readFile(t, fs, path); got != "new" {
		t.Errorf("Expected the file to be replaced, got %q", got)
	}
}

func TestEngine_FailFast(t *testing.T) {
	entries := []internal.FolderEntry{
		{URL: "https://short.io/x", Title: "broken"},
		fileEntry("AFTER_FILE_1", "after.txt", ""),
	}

	t.Run("stops_on_first_error", func(t *testing.T) {
		d := newFakeDrive(t)
		d.folders["MIXED_DIR_01"] = entries
		d.files["AFTER_FILE_1"] = fakeFile{name: "after.txt", content: []byte("ok")}

		engine := newTestEngine(d, afero.NewMemMapFs(), &internal.DownloadConfig{FailFast: true})
		err := engine.Run(context.Background(), []string{"https://drive.google.com/drive/folders/MIXED_DIR_01"}, "out")

		if !internal.IsType(err, internal.ErrUnresolvableID) {
			t.Fatalf("Expected UnresolvableID, got %v", err)
		}
		if n := d.count("/uc", "AFTER_FILE_1"); n != 0 {
			t.Errorf("Later entries must not be fetched, got %d requests", n)
		}
	})

	t.Run("continues_and_reports", func(t *testing.T) {
		d := newFakeDrive(t)
		d.folders["MIXED_DIR_01"] = entries
		d.files["AFTER_FILE_1"] = fakeFile{name: "after.txt", content: []byte("ok")}

		fs := afero.NewMemMapFs()
		engine := newTestEngine(d, fs, &internal.DownloadConfig{})
		err := engine.Run(context.Background(), []string{"https://drive.google.com/drive/folders/MIXED_DIR_01"}, "out")

		if !internal.IsType(err, internal.ErrRunFailed) {
			t.Fatalf("Expected RunFailed, got %v", err)
		}
		if n := d.count("/uc", "AFTER_FILE_1"); n != 1 {
			t.Errorf("Expected the remaining entry to be fetched once, got %d", n)
		}
		if !fileExists(fs, filepath.Join("out", "after.txt")) {
			t.Error("Remaining entry should be downloaded")
		}
	})
}

func TestEngine_NativeDocumentEntryIsSkipped(t *testing.T) {
	d := newFakeDrive(t)
	d.folders["DOCS_DIR_001"] = []internal.FolderEntry{
		{URL: "https://docs.google.com/document/d/DOCUMENT_ID_1/edit", Title: "notes"},
		fileEntry("PLAIN_FILE_1", "plain.txt", ""),
	}
	d.files["PLAIN_FILE_1"] = fakeFile{name: "plain.txt", content: []byte("p")}

	fs := afero.NewMemMapFs()
	engine := newTestEngine(d, fs, &internal.DownloadConfig{FailFast: true})

	if err := engine.Run(context.Background(), []string{"https://drive.google.com/drive/folders/DOCS_DIR_001"}, "out"); err != nil {
		t.Fatalf("A native document must not fail the run, got %v", err)
	}
	if errs := engine.Session().Errors(); len(errs) != 0 {
		t.Errorf("Unexpected errors: %v", errs)
	}
	if n := d.count("/uc", "DOCUMENT_ID_1"); n != 0 {
		t.Errorf("Native documents must not be requested, got %d", n)
	}
	if !fileExists(fs, filepath.Join("out", "plain.txt")) {
		t.Error("Sibling files should still be downloaded")
	}
}

func TestEngine_FetchBareIDUsesLookup(t *testing.T) {
	d := newFakeDrive(t)
	d.files["BARE_FILE_ID"] = fakeFile{name: "server-name.bin", content: []byte("payload")}

	fs := afero.NewMemMapFs()
	engine := newTestEngine(d, fs, &internal.DownloadConfig{OutputName: "renamed.bin"})

	if err := engine.Run(context.Background(), []string{"BARE_FILE_ID"}, "dest"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if n := d.count("/open", "BARE_FILE_ID"); n != 1 {
		t.Errorf("Expected one lookup request, got %d", n)
	}
	if got := readFile(t, fs, filepath.Join("dest", "renamed.bin")); got != "payload" {
		t.Errorf("Expected payload, got %q", got)
	}
}

func TestEngine_FetchLookupOfFolderIgnoresOutputName(t *testing.T) {
	d := newFakeDrive(t)
	d.folders["BARE_FOLDER1"] = []internal.FolderEntry{fileEntry("INNER_FILE_1", "inner.txt", "")}
	d.files["INNER_FILE_1"] = fakeFile{name: "inner.txt", content: []byte("in")}

	fs := afero.NewMemMapFs()
	engine := newTestEngine(d, fs, &internal.DownloadConfig{OutputName: "ignored.bin"})

	if err := engine.Run(context.Background(), []string{"https://drive.google.com/open?id=BARE_FOLDER1"}, "dest"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !fileExists(fs, filepath.Join("dest", "inner.txt")) {
		t.Error("Folder contents should keep their own names")
	}
	if fileExists(fs, filepath.Join("dest", "ignored.bin")) {
		t.Error("The output name must not be used for a folder")
	}
}

func TestEngine_UnresolvableInput(t *testing.T) {
	d := newFakeDrive(t)
	engine := newTestEngine(d, afero.NewMemMapFs(), &internal.DownloadConfig{FailFast: true})

	err := engine.Fetch(context.Background(), "tiny", "out")
	if !internal.IsType(err, internal.ErrUnresolvableID) {
		t.Errorf("Expected UnresolvableID, got %v", err)
	}
}

func TestEngine_OverwriteRedownloads(t *testing.T) {
	d := newFakeDrive(t)
	d.files["OVERWRITE_01"] = fakeFile{name: "data.csv", content: []byte("fresh")}

	fs := afero.NewMemMapFs()
	path := filepath.Join("out", "data.csv")
	seedFile(t, fs, path, "stale", time.Time{})

	t.Run("existing_file_kept", func(t *testing.T) {
		engine := newTestEngine(d, fs, &internal.DownloadConfig{})
		if err := engine.Run(context.Background(), []string{"https://drive.google.com/file/d/OVERWRITE_01/view"}, "out"); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if got := readFile(t, fs, path); got != "stale" {
			t.Errorf("Expected the existing file to be kept, got %q", got)
		}
		if got := engine.Session().Skipped(); len(got) != 1 {
			t.Errorf("Expected one skipped file, got %v", got)
		}
	})

	t.Run("overwrite_replaces", func(t *testing.T) {
		engine := newTestEngine(d, fs, &internal.DownloadConfig{Overwrite: true})
		if err := engine.Run(context.Background(), []string{"https://drive.google.com/file/d/OVERWRITE_01/view"}, "out"); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if got := readFile(t, fs, path); got != "fresh" {
			t.Errorf("Expected the file to be replaced, got %q", got)
		}
	})
}

func TestEngine_CancelledRunReturnsContextError(t *testing.T) {
	d := newFakeDrive(t)
	d.files["CANCEL_FILE1"] = fakeFile{name: "never.bin", content: []byte("x")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := newTestEngine(d, afero.NewMemMapFs(), &internal.DownloadConfig{})
	err := engine.Run(ctx, []string{"https://drive.google.com/file/d/CANCEL_FILE1/view"}, "out")

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if n := d.count("/uc", "CANCEL_FILE1"); n != 0 {
		t.Errorf("No request should be made after cancellation, got %d", n)
	}
	if got := engine.Session().Downloaded(); len(got) != 0 {
		t.Errorf("Nothing should be downloaded, got %v", got)
	}
}

var errDiskFull = errors.New("no space left on device")

// failingFs hands out files whose writes fail once failAfter bytes were written
type failingFs struct {
	afero.Fs
	failAfter int
}

func (f *failingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &failingFile{File: file, remaining: f.failAfter}, nil
}

type failingFile struct {
	afero.File
	remaining int
}

func (f *failingFile) Write(p []byte) (int, error) {
	if len(p) > f.remaining {
		n, _ := f.File.Write(p[:f.remaining])
		f.remaining = 0
		return n, errDiskFull
	}
	f.remaining -= len(p)
	return f.File.Write(p)
}
