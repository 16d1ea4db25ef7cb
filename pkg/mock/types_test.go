package mock

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseMethod(t *testing.T) {
	for _, m := range Methods {
		got, err := ParseMethod(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	got, err := ParseMethod(" get ")
	require.NoError(t, err)
	assert.Equal(t, MethodGet, got)

	_, err = ParseMethod("PROPFIND")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestStatusAllowsBody(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{100, false},
		{101, false},
		{103, false},
		{199, false},
		{200, true},
		{201, true},
		{204, false},
		{206, true},
		{304, false},
		{404, true},
		{500, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusAllowsBody(tt.status), "status %d", tt.status)
	}
}

func TestRequestedResponse_EffectiveBody(t *testing.T) {
	body := &ResponseBody{ContentType: ContentTypeJSON, FileLocation: "users.json"}

	for _, status := range []int{100, 101, 102, 204, 304} {
		r := RequestedResponse{Status: status, Body: body}
		assert.Nil(t, r.EffectiveBody(), "status %d must not carry a body", status)
	}

	r := RequestedResponse{Status: http.StatusOK, Body: body}
	assert.Same(t, body, r.EffectiveBody())

	r = RequestedResponse{Status: http.StatusOK}
	assert.Nil(t, r.EffectiveBody())
}

func TestRequestedResponse_ReasonPhrase(t *testing.T) {
	assert.Equal(t, "OK", RequestedResponse{Status: 200}.ReasonPhrase())
	assert.Equal(t, "All Good", RequestedResponse{Status: 200, Reason: "All Good"}.ReasonPhrase())
}

func TestResponseBody_IsValidFileFormat(t *testing.T) {
	tests := []struct {
		ct   ContentType
		file string
		want bool
	}{
		{ContentTypeJSON, "users.json", true},
		{ContentTypeJSON, "users.txt", false},
		{ContentTypeJSON, "users", false},
		{ContentTypeCSS, "/srv/site.css", true},
		{ContentTypeCSS, "/srv/site.scss", false},
		{ContentTypeCSV, "report.csv", true},
		{ContentTypeCSV, "report.tsv", false},
		{ContentTypeHTML, "index.html", true},
		{ContentTypeHTML, "index.htm", false},
		{ContentTypeText, "notes.txt", true},
		{ContentTypeText, "notes.text", false},
		{ContentTypeXML, "feed.xml", true},
		{ContentTypeXML, "feed.json", false},
		{ContentTypeJSON, "USERS.JSON", true},
		{ContentTypeCustom, "anything.bin", true},
		{ContentTypeCustom, "no-extension", true},
	}

	for _, tt := range tests {
		b := ResponseBody{ContentType: tt.ct, FileLocation: tt.file}
		assert.Equal(t, tt.want, b.IsValidFileFormat(), "%s / %s", tt.ct, tt.file)
		if tt.want {
			assert.NoError(t, b.CheckFileFormat())
		} else {
			assert.ErrorIs(t, b.CheckFileFormat(), ErrInvalidFileFormat)
		}
	}
}

func TestContentType(t *testing.T) {
	ct, err := ParseContentType("plain")
	require.NoError(t, err)
	assert.Equal(t, ContentTypeText, ct)
	assert.Equal(t, ".txt", ct.Extension())
	assert.Equal(t, "text/plain", ct.MIMEType())

	assert.Equal(t, "application/json", ContentTypeJSON.MIMEType())
	assert.Empty(t, ContentTypeCustom.MIMEType())
	assert.Empty(t, ContentTypeCustom.Extension())

	assert.Equal(t, ContentTypeXML, ContentTypeForExtension(".XML"))
	assert.Equal(t, ContentTypeCustom, ContentTypeForExtension(".bin"))

	_, err = ParseContentType("yaml")
	assert.ErrorIs(t, err, ErrUnknownContentType)
}

func TestHeaders(t *testing.T) {
	h := Headers{
		{Name: "Set-Cookie", Value: "a=1"},
		{Name: "X-Trace", Value: "abc"},
		{Name: "set-cookie", Value: "b=2"},
	}

	v, ok := h.Get("x-trace")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	_, ok = h.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"a=1", "b=2"}, h.Values("SET-COOKIE"))
	assert.Equal(t, []string{"a=1", "b=2"}, h.HTTPHeader().Values("Set-Cookie"))
}

func TestRequestSet(t *testing.T) {
	t.Run("rejects duplicate method and path", func(t *testing.T) {
		s := &RequestSet{}
		require.NoError(t, s.Add(NewRequest(MethodGet, "/api/users", 200)))
		require.NoError(t, s.Add(NewRequest(MethodPost, "/api/users", 201)))

		err := s.Add(NewRequest(MethodGet, "api/users/", 500))
		assert.ErrorIs(t, err, ErrDuplicateRequest)
		assert.Equal(t, 2, s.Len())
	})

	t.Run("wildcard patterns are distinct keys", func(t *testing.T) {
		s, err := NewRequestSet(
			NewRequest(MethodGet, "/api/users/me", 200),
			NewRequest(MethodGet, "/api/users/*", 200),
			NewRequest(MethodGet, "/api/users/**", 200),
		)
		require.NoError(t, err)
		assert.Equal(t, 3, s.Len())
		assert.True(t, s.Contains(Key{Method: MethodGet, Path: "/api/users/*"}))
	})

	t.Run("keeps insertion order", func(t *testing.T) {
		s, err := NewRequestSet(
			NewRequest(MethodPut, "/b", 200),
			NewRequest(MethodGet, "/a", 200),
		)
		require.NoError(t, err)
		all := s.All()
		require.Len(t, all, 2)
		assert.Equal(t, "/b", all[0].Path)
		assert.Equal(t, "/a", all[1].Path)
	})

	t.Run("nil set is empty", func(t *testing.T) {
		var s *RequestSet
		assert.Equal(t, 0, s.Len())
		assert.Nil(t, s.All())
		assert.NoError(t, s.Validate())
	})
}

func TestRequestSet_Decoding(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		src := `
- method: get
  path: /api/users
  response:
    status: 200
    headers:
      - name: X-Mock
        value: "yes"
    body:
      contentType: json
      file: users.json
- method: POST
  path: /api/users
  response:
    status: 204
`
		var s RequestSet
		require.NoError(t, yaml.Unmarshal([]byte(src), &s))
		require.Equal(t, 2, s.Len())

		r, ok := s.Get(Key{Method: MethodGet, Path: "/api/users"})
		require.True(t, ok)
		require.NotNil(t, r.Response.Body)
		assert.Equal(t, ContentTypeJSON, r.Response.Body.ContentType)
		assert.Equal(t, "users.json", r.Response.Body.FileLocation)
	})

	t.Run("json duplicate", func(t *testing.T) {
		src := `[{"method":"GET","path":"/a","response":{"status":200}},{"method":"GET","path":"/a/","response":{"status":404}}]`
		var s RequestSet
		err := json.Unmarshal([]byte(src), &s)
		assert.ErrorIs(t, err, ErrDuplicateRequest)
	})

	t.Run("json round trip keeps order", func(t *testing.T) {
		s, err := NewRequestSet(NewRequest(MethodGet, "/z", 200), NewRequest(MethodGet, "/a", 200))
		require.NoError(t, err)
		data, err := json.Marshal(s)
		require.NoError(t, err)

		var decoded RequestSet
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, s.All(), decoded.All())
	})
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{name: "valid", req: NewRequest(MethodGet, "/api/*", 200)},
		{name: "unknown method", req: NewRequest(Method("BREW"), "/coffee", 418), wantErr: true},
		{name: "catch-all not last", req: NewRequest(MethodGet, "/api/**/x", 200), wantErr: true},
		{name: "status out of range", req: NewRequest(MethodGet, "/", 42), wantErr: true},
		{name: "informational status", req: NewRequest(MethodGet, "/early", 103), wantErr: true},
		{name: "switching protocols", req: NewRequest(MethodGet, "/upgrade", 101), wantErr: true},
		{
			name: "bad header name",
			req: Request{Method: MethodGet, Path: "/", Response: RequestedResponse{
				Status: 200, Headers: Headers{{Name: "Bad Header", Value: "x"}},
			}},
			wantErr: true,
		},
		{
			name: "body without file",
			req: Request{Method: MethodGet, Path: "/", Response: RequestedResponse{
				Status: 200, Body: &ResponseBody{ContentType: ContentTypeJSON},
			}},
			wantErr: true,
		},
		{
			name: "extension mismatch still registers",
			req: Request{Method: MethodGet, Path: "/", Response: RequestedResponse{
				Status: 200, Body: &ResponseBody{ContentType: ContentTypeJSON, FileLocation: "a.txt"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequestSet_FileFormatProblems(t *testing.T) {
	s, err := NewRequestSet(
		Request{Method: MethodGet, Path: "/ok", Response: RequestedResponse{
			Status: 200, Body: &ResponseBody{ContentType: ContentTypeJSON, FileLocation: "ok.json"},
		}},
		Request{Method: MethodGet, Path: "/bad", Response: RequestedResponse{
			Status: 200, Body: &ResponseBody{ContentType: ContentTypeJSON, FileLocation: "bad.csv"},
		}},
	)
	require.NoError(t, err)

	problems := s.FileFormatProblems()
	require.Len(t, problems, 1)
	assert.ErrorIs(t, problems[0], ErrInvalidFileFormat)
	assert.Contains(t, problems[0].Error(), "GET /bad")
}
