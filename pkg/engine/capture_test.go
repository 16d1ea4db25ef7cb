package engine

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
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

var testOrigin = requestlog.Origin{Scheme: "http", Host: "127.0.0.1", Port: 8080}

func TestCapture_Success(t *testing.T) {
	t.Parallel()

	var seenBody string
	next := ResponderFunc(func(w http.ResponseWriter, r *http.Request) error {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		seenBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
		return nil
	})

	sink := &sliceSink{}
	c := CaptureMiddleware(next, sink, testOrigin, WithCaptureLogger(logging.Nop()))

	req := httptest.NewRequest(http.MethodPost, "/api/users?x=1", strings.NewReader(`{"name":"ann"}`))
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)

	assert.Equal(t, `{"name":"ann"}`, seenBody, "responder sees the restored body")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, `{"ok":true}`, rec.Body.String())

	got := sink.all()
	require.Len(t, got, 1)
	ex := got[0]
	assert.NotEmpty(t, ex.ID)
	assert.Equal(t, requestlog.ModeMock, ex.Mode)
	assert.False(t, ex.Failed())
	assert.Equal(t, http.MethodPost, ex.Request.Method)
	assert.Equal(t, `{"name":"ann"}`, string(ex.Request.Body))
	assert.Equal(t, http.StatusCreated, ex.Response.StatusCode)
	assert.Equal(t, "Created", ex.Response.Reason)
	assert.Equal(t, "http://127.0.0.1:8080/api/users?x=1", ex.Response.URI)
	assert.Equal(t, "application/json", ex.Response.Headers.Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, string(ex.Response.Body))
	assert.False(t, ex.Response.Timestamp.Before(ex.Request.Timestamp))
}

func TestCapture_ImplicitOK(t *testing.T) {
	t.Parallel()

	next := ResponderFunc(func(w http.ResponseWriter, _ *http.Request) error {
		_, _ = w.Write([]byte("plain"))
		return nil
	})
	sink := &sliceSink{}
	c := CaptureMiddleware(next, sink, testOrigin, WithCaptureLogger(logging.Nop()))

	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Len(t, sink.all(), 1)
	assert.Equal(t, http.StatusOK, sink.all()[0].Response.StatusCode)
	assert.Equal(t, "plain", string(sink.all()[0].Response.Body))
}

func TestCapture_Failure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "request error", err: NewRequestError(http.StatusNotFound, ErrRouteNotFound), wantStatus: http.StatusNotFound},
		{name: "plain error", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			next := ResponderFunc(func(w http.ResponseWriter, _ *http.Request) error {
				w.Header().Set("X-Partial", "yes")
				return tt.err
			})
			sink := &sliceSink{}
			c := CaptureMiddleware(next, sink, testOrigin, WithCaptureLogger(logging.Nop()))

			rec := httptest.NewRecorder()
			c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.err.Error()+"\n", rec.Body.String())
			assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
			assert.Empty(t, rec.Header().Get("X-Partial"))

			got := sink.all()
			require.Len(t, got, 1)
			assert.True(t, got[0].Failed())
			assert.Equal(t, tt.err.Error(), got[0].Error)
			assert.Equal(t, tt.wantStatus, got[0].Response.StatusCode)
			assert.Nil(t, got[0].Response.Body)
			assert.Equal(t, "http://127.0.0.1:8080/missing", got[0].Response.URI)
		})
	}
}

func TestCapture_FailureAfterHeadersWritten(t *testing.T) {
	t.Parallel()

	next := ResponderFunc(func(w http.ResponseWriter, _ *http.Request) error {
		w.WriteHeader(http.StatusAccepted)
		return errors.New("client went away")
	})
	sink := &sliceSink{}
	c := CaptureMiddleware(next, sink, testOrigin, WithCaptureLogger(logging.Nop()))

	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())

	got := sink.all()
	require.Len(t, got, 1)
	assert.True(t, got[0].Failed())
	assert.Equal(t, http.StatusAccepted, got[0].Response.StatusCode)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestCapture_BodyReadFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	next := ResponderFunc(func(w http.ResponseWriter, r *http.Request) error {
		b, _ := io.ReadAll(r.Body)
		assert.Empty(t, b)
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
	sink := &sliceSink{}
	c := CaptureMiddleware(next, sink, testOrigin, WithCaptureLogger(logging.Nop()))

	req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(failingReader{}))
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	got := sink.all()
	require.Len(t, got, 1)
	assert.False(t, got[0].Failed())
	assert.Empty(t, got[0].Request.Body)
}
