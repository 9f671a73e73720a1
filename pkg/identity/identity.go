// Package identity turns free-text profile links into account handles.
package identity

import (
	"net/url"
	"sort"
	"strings"
)

// DefaultHost is the canonical profile host used when none is configured
const DefaultHost = "github.com"

// Handle is a normalized account identifier extracted from a profile link
type Handle string

// Key returns the comparison key for the handle. Logins are case-insensitive.
func (h Handle) Key() string {
	return strings.ToLower(string(h))
}

// String implements fmt.Stringer
func (h Handle) String() string {
	return string(h)
}

// Extractor resolves profile links against a canonical host
type Extractor struct {
	host string
}

// NewExtractor creates an extractor for the given host. An empty host falls back to DefaultHost.
func NewExtractor(host string) *Extractor {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		host = DefaultHost
	}
	return &Extractor{host: host}
}

// Host returns the canonical host
func (e *Extractor) Host() string {
	return e.host
}

// Extract returns the handle referenced by profile, or false when the link
// cannot be resolved. It never fails loudly: malformed input is unresolvable.
func (e *Extractor) Extract(profile string) (Handle, bool) {
	text := strings.TrimSpace(profile)
	if text == "" {
		return "", false
	}

	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, e.host+"/"), strings.HasPrefix(lower, "www."+e.host+"/"):
		text = "https://" + text
	case !strings.Contains(lower, "://"):
		text = "https://" + e.host + "/" + strings.TrimPrefix(text, "@")
	}

	parsed, err := url.Parse(text)
	if err != nil {
		return "", false
	}

	host := strings.ToLower(parsed.Hostname())
	if host != e.host && host != "www."+e.host {
		return "", false
	}

	for _, segment := range strings.Split(parsed.Path, "/") {
		if segment == "" {
			continue
		}
		if !validLogin(segment) {
			return "", false
		}
		return Handle(segment), true
	}

	return "", false
}

// validLogin rejects first path segments that cannot be account logins,
// such as a foreign host name pasted without a scheme.
func validLogin(segment string) bool {
	for _, r := range segment {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

var defaultExtractor = NewExtractor(DefaultHost)

// Extract resolves profile against DefaultHost
func Extract(profile string) (Handle, bool) {
	return defaultExtractor.Extract(profile)
}

// Set is a collection of handles keyed case-insensitively. The first spelling added wins.
type Set map[string]Handle

// NewSet builds a set from handles
func NewSet(handles ...Handle) Set {
	s := make(Set, len(handles))
	for _, h := range handles {
		s.Add(h)
	}
	return s
}

// NewSetFromStrings builds a set from raw login strings, skipping blanks
func NewSetFromStrings(logins ...string) Set {
	s := make(Set, len(logins))
	for _, login := range logins {
		if login = strings.TrimSpace(login); login != "" {
			s.Add(Handle(login))
		}
	}
	return s
}

// Add inserts h unless an equal handle is already present
func (s Set) Add(h Handle) {
	if _, ok := s[h.Key()]; !ok {
		s[h.Key()] = h
	}
}

// Contains reports whether h is in the set
func (s Set) Contains(h Handle) bool {
	_, ok := s[h.Key()]
	return ok
}

// Len returns the number of handles
func (s Set) Len() int {
	return len(s)
}

// Sorted returns the handles ordered by their comparison key
func (s Set) Sorted() []Handle {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	handles := make([]Handle, 0, len(keys))
	for _, k := range keys {
		handles = append(handles, s[k])
	}
	return handles
}
