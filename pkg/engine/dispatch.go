package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"

	"github.com/mockdeck/mockdeck/pkg/mock"
)

// Headers the transport manages itself; configured values are dropped.
var transportHeaders = []string{
	"Content-Length",
	"Transfer-Encoding",
}

// Dispatched is a fully materialized mock response.
type Dispatched struct {
	Status int
	Reason string
	Header http.Header
	Body   []byte
}

// Dispatch turns a configured response into bytes ready to write. Body files
// are read in full on every call so edits show up without a restart.
func Dispatch(resp mock.RequestedResponse) (*Dispatched, error) {
	header := resp.Headers.HTTPHeader()
	for _, h := range transportHeaders {
		header.Del(h)
	}

	d := &Dispatched{
		Status: resp.Status,
		Reason: resp.ReasonPhrase(),
		Header: header,
	}

	body := resp.EffectiveBody()
	if body == nil {
		if !mock.StatusAllowsBody(resp.Status) {
			header.Del("Content-Type")
		}
		return d, nil
	}

	if err := body.CheckFileFormat(); err != nil {
		return nil, NewRequestError(http.StatusInternalServerError, err)
	}

	data, err := os.ReadFile(body.FileLocation)
	if err != nil {
		msg := "cannot read response file"
		if errors.Is(err, fs.ErrNotExist) {
			msg = "response file not found"
		}
		return nil, NewRequestError(http.StatusBadRequest, fmt.Errorf("%s %s: %w", msg, body.FileLocation, err))
	}

	if mime := body.ContentType.MIMEType(); mime != "" {
		header.Set("Content-Type", mime)
	}
	d.Body = data
	return d, nil
}

// reasonRecorder is implemented by writers that keep the reason phrase, which
// HTTP/1.1 over net/http cannot put on the wire.
type reasonRecorder interface {
	SetReason(reason string)
}

// WriteTo writes the response to w.
func (d *Dispatched) WriteTo(w http.ResponseWriter) error {
	if rr, ok := w.(reasonRecorder); ok {
		rr.SetReason(d.Reason)
	}

	h := w.Header()
	for k, v := range d.Header {
		h[k] = append([]string(nil), v...)
	}
	if len(d.Body) > 0 {
		h.Set("Content-Length", strconv.Itoa(len(d.Body)))
	}

	w.WriteHeader(d.Status)
	if len(d.Body) == 0 {
		return nil
	}
	if _, err := w.Write(d.Body); err != nil {
		return fmt.Errorf("writing response body: %w", err)
	}
	return nil
}
