package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/mockdeck/mockdeck/pkg/mock"
)

// Defaults applied by the file loaders when a value is not given.
const (
	DefaultHostname = "127.0.0.1"
	DefaultPort     = 8080
)

// Configuration is everything one server run needs. A new value is required
// for every start or restart.
type Configuration struct {
	// Hostname is the address to bind.
	Hostname string `json:"hostname" yaml:"hostname"`

	// Port is the TCP port to bind. Zero lets the OS choose.
	Port int `json:"port" yaml:"port"`

	// Requests are the mock definitions served in mock mode.
	Requests mock.RequestSet `json:"requests" yaml:"requests"`

	// Record switches the run to record mode when non-nil.
	Record *RecordConfig `json:"record,omitempty" yaml:"record,omitempty"`
}

// RecordConfig configures record mode.
type RecordConfig struct {
	// BaseURL is the upstream every request is forwarded to.
	BaseURL string `json:"baseURL" yaml:"baseURL"`
}

// New creates a mock-mode configuration from a list of requests.
func New(hostname string, port int, reqs ...mock.Request) (*Configuration, error) {
	set, err := mock.NewRequestSet(reqs...)
	if err != nil {
		return nil, err
	}
	return &Configuration{Hostname: hostname, Port: port, Requests: *set}, nil
}

// Address returns hostname:port.
func (c *Configuration) Address() string {
	return net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port))
}

// RecordMode reports whether the run proxies to an upstream.
func (c *Configuration) RecordMode() bool {
	return c.Record != nil
}

// Common validation errors.
var (
	ErrInvalidPort    = errors.New("port must be between 0 and 65535")
	ErrInvalidBaseURL = errors.New("record baseURL must be an absolute http or https URL")
)

// Validate checks the configuration before a server is started with it.
func (c *Configuration) Validate() error {
	if c == nil {
		return errors.New("configuration cannot be nil")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if c.Record != nil {
		if _, err := c.Record.URL(); err != nil {
			return err
		}
	}
	return c.Requests.Validate()
}

// URL parses BaseURL.
func (r *RecordConfig) URL() (*url.URL, error) {
	u, err := url.Parse(r.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, r.BaseURL)
	}
	return u, nil
}
