// Package requestlog provides the types captured for every request/response
// cycle the server handles, for user inspection and debugging.
//
// It is distinct from operational logging (which uses log/slog). A
// NetworkExchange pairs an immutable DetailedRequest with the DetailedResponse
// that was sent back, or with the failure status when handling failed.
//
// # Usage
//
//	req := requestlog.NewDetailedRequest(r, body, time.Now())
//	resp := requestlog.DetailedResponse{
//	    StatusCode: 200,
//	    URI:        origin.URI(r.URL.Path, r.URL.RawQuery),
//	    Timestamp:  time.Now(),
//	}
//	exchanges.Send(requestlog.NewNetworkExchange(requestlog.ModeMock, req, resp, nil))
//
// # Package Design
//
// This is a leaf package with no internal dependencies, allowing it to be
// imported by any package without creating import cycles.
package requestlog
