package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockdeck/mockdeck/pkg/logging"
	"github.com/mockdeck/mockdeck/pkg/requestlog"
)

type sliceSink struct {
	mu  sync.Mutex
	got []requestlog.NetworkExchange
}

func (s *sliceSink) Send(ex requestlog.NetworkExchange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, ex)
}

func (s *sliceSink) all() []requestlog.NetworkExchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]requestlog.NetworkExchange(nil), s.got...)
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestNewRecorder_RejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"/relative", "ftp://example.com", "http://"} {
		_, err := NewRecorder(mustURL(t, raw), &sliceSink{})
		assert.ErrorIs(t, err, ErrInvalidBaseURL, raw)
	}
	_, err := NewRecorder(nil, &sliceSink{})
	assert.ErrorIs(t, err, ErrInvalidBaseURL)
}

func TestRecorder_TargetURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base string
		in   string
		want string
	}{
		{"http://upstream:9000", "/api/users", "http://upstream:9000/api/users"},
		{"http://upstream:9000/", "/api/users?page=2", "http://upstream:9000/api/users?page=2"},
		{"https://upstream/v1", "/users", "https://upstream/v1/users"},
		{"http://upstream", "/a%20b", "http://upstream/a%20b"},
	}

	for _, tt := range tests {
		rec, err := NewRecorder(mustURL(t, tt.base), nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, rec.TargetURL(mustURL(t, tt.in)))
	}
}

func TestRecorder_ForwardsAndRecords(t *testing.T) {
	t.Parallel()

	var gotHost, gotMethod, gotPath, gotQuery, gotBody, gotCustom, gotConnection string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotCustom = r.Header.Get("X-Custom")
		gotConnection = r.Header.Get("Proxy-Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer upstream.Close()

	recordings := &sliceSink{}
	exchanges := &sliceSink{}
	rec, err := NewRecorder(mustURL(t, upstream.URL), recordings,
		WithExchangeSink(exchanges), WithLogger(logging.Nop()))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "http://mock.local:8080/api/users?x=1", strings.NewReader(`{"name":"ann"}`))
	req.Header.Set("X-Custom", "kept")
	req.Header.Set("Proxy-Authorization", "dropped")
	w := httptest.NewRecorder()

	rec.ServeHTTP(w, req)

	// upstream saw the original request, addressed to itself
	assert.Equal(t, strings.TrimPrefix(upstream.URL, "http://"), gotHost)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/users", gotPath)
	assert.Equal(t, "x=1", gotQuery)
	assert.Equal(t, `{"name":"ann"}`, gotBody)
	assert.Equal(t, "kept", gotCustom)
	assert.Empty(t, gotConnection)

	// caller got the upstream response verbatim
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, `{"id":7}`, w.Body.String())
	assert.Equal(t, "yes", w.Header().Get("X-Upstream"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	got := recordings.all()
	require.Len(t, got, 1)
	ex := got[0]
	assert.Equal(t, requestlog.ModeRecord, ex.Mode)
	assert.False(t, ex.Failed())
	assert.Equal(t, http.MethodPost, ex.Request.Method)
	assert.Equal(t, `{"name":"ann"}`, string(ex.Request.Body))
	assert.Equal(t, http.StatusCreated, ex.Response.StatusCode)
	assert.Equal(t, "Created", ex.Response.Reason)
	assert.Equal(t, upstream.URL+"/api/users?x=1", ex.Response.URI)
	assert.Equal(t, `{"id":7}`, string(ex.Response.Body))
	assert.False(t, ex.Response.Timestamp.Before(ex.Request.Timestamp))

	assert.Equal(t, got, exchanges.all())
}

func TestRecorder_DoesNotFollowRedirects(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer upstream.Close()

	recordings := &sliceSink{}
	rec, err := NewRecorder(mustURL(t, upstream.URL), recordings, WithLogger(logging.Nop()))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	rec.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/old", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/elsewhere", w.Header().Get("Location"))
	require.Len(t, recordings.all(), 1)
}

func TestRecorder_UpstreamFailure(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := upstream.URL
	upstream.Close()

	recordings := &sliceSink{}
	exchanges := &sliceSink{}
	rec, err := NewRecorder(mustURL(t, base), recordings,
		WithExchangeSink(exchanges), WithLogger(logging.Nop()))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	rec.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "connect")
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))

	assert.Empty(t, recordings.all())

	failed := exchanges.all()
	require.Len(t, failed, 1)
	assert.True(t, failed[0].Failed())
	assert.Equal(t, http.StatusBadGateway, failed[0].Response.StatusCode)
	assert.Nil(t, failed[0].Response.Body)
}

func TestRecorder_RejectsUnknownMethod(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer upstream.Close()

	recordings := &sliceSink{}
	exchanges := &sliceSink{}
	rec, err := NewRecorder(mustURL(t, upstream.URL), recordings,
		WithExchangeSink(exchanges), WithLogger(logging.Nop()))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	rec.ServeHTTP(w, httptest.NewRequest("BREW", "/coffee", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Zero(t, hits.Load(), "request is not forwarded")
	assert.Empty(t, recordings.all())

	rejected := exchanges.all()
	require.Len(t, rejected, 1)
	assert.True(t, rejected[0].Failed())
	assert.Equal(t, "BREW", rejected[0].Request.Method)
	assert.Equal(t, http.StatusMethodNotAllowed, rejected[0].Response.StatusCode)
}

func TestRemoveHopByHopHeaders(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	for _, name := range []string{"Connection", "Keep-Alive", "TE", "Trailer", "Transfer-Encoding", "Upgrade", "Proxy-Authorization"} {
		h.Set(name, "x")
	}
	h.Set("Content-Type", "application/json")
	h.Set("X-Request-Id", "42")

	removeHopByHopHeaders(h)

	assert.Equal(t, http.Header{
		"Content-Type": {"application/json"},
		"X-Request-Id": {"42"},
	}, h)
}

func TestRecorder_FilterLimitsRecordings(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	recordings := &sliceSink{}
	rec, err := NewRecorder(mustURL(t, upstream.URL), recordings,
		WithFilter(&Filter{ExcludePaths: []string{"/static/**"}}), WithLogger(logging.Nop()))
	require.NoError(t, err)

	for _, path := range []string{"/api/users", "/static/app.js"} {
		w := httptest.NewRecorder()
		rec.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, "ok", w.Body.String())
	}

	got := recordings.all()
	require.Len(t, got, 1)
	assert.Equal(t, "/api/users", got[0].Request.Path)
}
