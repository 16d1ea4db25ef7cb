package proxy

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter selects which proxied requests are published as recordings.
// Requests that do not pass are still forwarded.
type Filter struct {
	IncludePaths   []string // record only if the path matches one (empty = all)
	ExcludePaths   []string // never record if the path matches one
	ExcludeMethods []string // never record these methods
}

// Validate checks every glob.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	for _, p := range append(append([]string(nil), f.IncludePaths...), f.ExcludePaths...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid path pattern %q", p)
		}
	}
	return nil
}

// ShouldRecord reports whether a request passes the filter.
// Exclusions win over inclusions.
func (f *Filter) ShouldRecord(method, path string) bool {
	if f == nil {
		return true
	}

	for _, m := range f.ExcludeMethods {
		if strings.EqualFold(m, method) {
			return false
		}
	}

	for _, pattern := range f.ExcludePaths {
		if matchPath(pattern, path) {
			return false
		}
	}

	if len(f.IncludePaths) == 0 {
		return true
	}
	for _, pattern := range f.IncludePaths {
		if matchPath(pattern, path) {
			return true
		}
	}
	return false
}

// matchPath matches a doublestar glob: * stays within a segment, ** spans
// segments.
func matchPath(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}
