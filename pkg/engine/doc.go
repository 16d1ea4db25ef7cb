// Package engine serves mock definitions over HTTP and reports every
// request/response cycle to subscribers.
//
// A Server owns one listener at a time. Start binds it and installs either
// the mock pipeline (route lookup, response dispatch, exchange capture) or,
// when the configuration carries a record section, the recording proxy from
// package proxy. Stop drains in-flight requests and releases the listener.
//
// Three broadcasters outlive individual runs: network exchanges, recorded
// exchanges and log events. Subscribers receive the buffered history first
// and then live values.
package engine
