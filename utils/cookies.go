package utils

import (
	"strings"
	"sync"
)

// CookieStore accumulates the cookies a server hands out across a redirect chain.
// Later values replace earlier ones for the same name; attributes, expiry and
// domain scoping are ignored, every cookie lives until the run ends.
type CookieStore struct {
	values map[string]string
	order  []string
	mutex  sync.RWMutex
}

// NewCookieStore creates an empty store
func NewCookieStore() *CookieStore {
	return &CookieStore{
		values: make(map[string]string),
	}
}

// Record parses Set-Cookie header values of the form "name=value; attr..."
func (s *CookieStore) Record(values ...string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, raw := range values {
		pair := raw
		if i := strings.IndexByte(pair, ';'); i >= 0 {
			pair = pair[:i]
		}
		eq := strings.IndexByte(pair, '=')
		if eq <= 0 {
			continue
		}
		name := strings.TrimSpace(pair[:eq])
		if name == "" {
			continue
		}
		value := strings.TrimSpace(pair[eq+1:])

		if _, exists := s.values[name]; !exists {
			s.order = append(s.order, name)
		}
		s.values[name] = value
	}
}

// Header renders all cookies as a single Cookie request header value
func (s *CookieStore) Header() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	parts := make([]string, 0, len(s.order))
	for _, name := range s.order {
		parts = append(parts, name+"="+s.values[name])
	}
	return strings.Join(parts, "; ")
}
