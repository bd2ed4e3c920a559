package downloader

import (
	"github.com/google/uuid"

	"drivefetch/utils"
)

// Session is the mutable state of one run. It is created once, passed by
// pointer through every operation and discarded at the end; nothing in it is
// persisted. A Session is not safe for concurrent use.
type Session struct {
	ID      string
	Cookies *utils.CookieStore

	visited    map[string]struct{}
	visitOrder []string
	errors     []error
	downloaded []string
	skipped    []string
}

// NewSession creates an empty session with a fresh run id
func NewSession() *Session {
	return &Session{
		ID:      uuid.NewString(),
		Cookies: utils.NewCookieStore(),
		visited: make(map[string]struct{}),
	}
}

// MarkVisited adds a folder id to the visited set. It returns false if the id was already there.
func (s *Session) MarkVisited(id string) bool {
	if _, seen := s.visited[id]; seen {
		return false
	}
	s.visited[id] = struct{}{}
	s.visitOrder = append(s.visitOrder, id)
	return true
}

// VisitLog returns folder ids in the order they were first entered
func (s *Session) VisitLog() []string {
	return append([]string(nil), s.visitOrder...)
}

// RecordError appends err to the run's error list
func (s *Session) RecordError(err error) {
	if err != nil {
		s.errors = append(s.errors, err)
	}
}

// Errors returns the recorded errors in order
func (s *Session) Errors() []error {
	return append([]error(nil), s.errors...)
}

// Failed reports whether any error was recorded
func (s *Session) Failed() bool {
	return len(s.errors) > 0
}

// RecordDownload notes a file written to disk
func (s *Session) RecordDownload(path string) {
	s.downloaded = append(s.downloaded, path)
}

// Downloaded returns the paths written during this run
func (s *Session) Downloaded() []string {
	return append([]string(nil), s.downloaded...)
}

// RecordSkip notes a file left alone because a current copy already existed
func (s *Session) RecordSkip(path string) {
	s.skipped = append(s.skipped, path)
}

// Skipped returns the paths skipped as already present
func (s *Session) Skipped() []string {
	return append([]string(nil), s.skipped...)
}
