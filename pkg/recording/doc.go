// Package recording turns exchanges captured in record mode into mock
// definitions.
//
// A Converter writes each response payload into a directory, naming the file
// with the extension its content type requires, and returns a mock.Request
// pointing at it. A Collector accumulates converted requests, keeps one per
// method and path, and can persist them as a configuration file that the
// server loads back.
package recording
