package admin

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/mockdeck/mockdeck/pkg/requestlog"
)

// parseFilter builds an exchange filter from query parameters.
func parseFilter(r *http.Request) (*requestlog.Filter, error) {
	q := r.URL.Query()
	f := &requestlog.Filter{
		Method: q.Get("method"),
		Path:   q.Get("path"),
	}

	if v := q.Get("status"); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil || code < 100 || code > 999 {
			return nil, fmt.Errorf("invalid status %q", v)
		}
		f.StatusCode = code
	}

	if v := q.Get("error"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid error flag %q", v)
		}
		f.HasError = &b
	}

	if v := q.Get("limit"); v != "" {
		n, ok := parsePositiveInt(v)
		if !ok {
			return nil, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	return f, nil
}
