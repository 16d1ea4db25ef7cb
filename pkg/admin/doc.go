// Package admin exposes a running engine to external tools over HTTP.
//
// Endpoints:
//
//	GET    /health             server state, mode, address and uptime
//	GET    /exchanges          buffered network exchanges, newest first
//	DELETE /exchanges          clear the exchange replay buffer
//	GET    /exchanges/stream   WebSocket: buffered exchanges, then live ones
//	GET    /recordings         buffered record-mode exchanges
//	DELETE /recordings         clear the recording replay buffer
//	GET    /recordings/stream  WebSocket stream of recordings
//	GET    /logs               buffered log events
//	DELETE /logs               clear the log replay buffer
//	GET    /logs/stream        WebSocket stream of log events
//	GET    /metrics            Prometheus metrics
//
// Exchange listings accept method, path (prefix), status, error (true or
// false) and limit query parameters. Every WebSocket frame is one JSON
// document.
package admin
