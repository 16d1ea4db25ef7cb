package recording

import (
	"net/url"
	"strings"

	"github.com/mockdeck/mockdeck/pkg/requestlog"
)

// SensitiveDataWarning represents a warning about potentially sensitive data.
type SensitiveDataWarning struct {
	Type     string `json:"type"`     // "header", "cookie", "query"
	Field    string `json:"field"`    // The specific field name
	Location string `json:"location"` // "request" or "response"
}

// Sensitive header patterns to check
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"x-access-token":      true,
	"api-key":             true,
	"apikey":              true,
	"x-csrf-token":        true,
	"x-xsrf-token":        true,
	"proxy-authorization": true,
}

// Sensitive cookie name patterns
var sensitiveCookiePatterns = []string{
	"session",
	"token",
	"auth",
	"jwt",
	"sid",
	"csrf",
	"xsrf",
}

// Sensitive query parameter patterns
var sensitiveQueryParams = map[string]bool{
	"api_key":      true,
	"apikey":       true,
	"api-key":      true,
	"access_token": true,
	"token":        true,
	"auth":         true,
	"key":          true,
	"secret":       true,
	"password":     true,
	"passwd":       true,
	"pwd":          true,
}

// CheckSensitiveData flags credentials a recorded exchange may carry. Only
// response headers end up in a converted definition, but request data is
// reported too since it shows up in the exchange stream.
func CheckSensitiveData(ex requestlog.NetworkExchange) []SensitiveDataWarning {
	var warnings []SensitiveDataWarning

	for header := range ex.Request.Headers {
		if sensitiveHeaders[strings.ToLower(header)] {
			warnings = append(warnings, SensitiveDataWarning{Type: "header", Field: header, Location: "request"})
		}
	}

	for _, cookie := range ex.Response.Headers.Values("Set-Cookie") {
		name, _, _ := strings.Cut(cookie, "=")
		lower := strings.ToLower(strings.TrimSpace(name))
		for _, p := range sensitiveCookiePatterns {
			if strings.Contains(lower, p) {
				warnings = append(warnings, SensitiveDataWarning{Type: "cookie", Field: name, Location: "response"})
				break
			}
		}
	}

	if u, err := url.Parse(ex.Request.URI); err == nil {
		for param := range u.Query() {
			if sensitiveQueryParams[strings.ToLower(param)] {
				warnings = append(warnings, SensitiveDataWarning{Type: "query", Field: param, Location: "request"})
			}
		}
	}

	return warnings
}
