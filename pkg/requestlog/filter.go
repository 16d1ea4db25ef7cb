package requestlog

import "strings"

// Filter defines criteria for selecting exchanges, for example from a
// broadcaster snapshot served by the admin API.
type Filter struct {
	// Method filters by HTTP method (case-insensitive).
	Method string

	// Path filters by path prefix.
	Path string

	// StatusCode filters by response status code.
	StatusCode int

	// HasError filters by failure presence.
	HasError *bool

	// Limit is the maximum number of exchanges to return.
	Limit int
}

// Matches reports whether e satisfies every criterion in f.
func (f *Filter) Matches(e NetworkExchange) bool {
	if f == nil {
		return true
	}
	if f.Method != "" && !strings.EqualFold(e.Request.Method, f.Method) {
		return false
	}
	if f.Path != "" && !strings.HasPrefix(e.Request.Path, f.Path) {
		return false
	}
	if f.StatusCode != 0 && e.Response.StatusCode != f.StatusCode {
		return false
	}
	if f.HasError != nil && *f.HasError != e.Failed() {
		return false
	}
	return true
}

// Apply returns the matching exchanges newest first, honoring Limit.
// exchanges must be ordered oldest first, as broadcaster snapshots are.
func (f *Filter) Apply(exchanges []NetworkExchange) []NetworkExchange {
	result := make([]NetworkExchange, 0, len(exchanges))
	for i := len(exchanges) - 1; i >= 0; i-- {
		if !f.Matches(exchanges[i]) {
			continue
		}
		result = append(result, exchanges[i])
		if f != nil && f.Limit > 0 && len(result) == f.Limit {
			break
		}
	}
	return result
}
