package recording

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mockdeck/mockdeck/pkg/config"
	"github.com/mockdeck/mockdeck/pkg/mock"
	"github.com/mockdeck/mockdeck/pkg/requestlog"
)

// Strategy decides which exchange wins when several share a method and path.
type Strategy string

// Duplicate strategies.
const (
	StrategyFirst Strategy = "first"
	StrategyLast  Strategy = "last"
)

// ParseStrategy parses a strategy name. The empty string means first.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyFirst:
		return StrategyFirst, nil
	case StrategyLast:
		return StrategyLast, nil
	}
	return "", fmt.Errorf("unknown duplicate strategy %q (want first or last)", s)
}

// Collector accumulates converted definitions, one per method and path.
// It is safe for concurrent use.
type Collector struct {
	conv     *Converter
	strategy Strategy
	log      *slog.Logger

	mu    sync.Mutex
	order []mock.Key
	byKey map[mock.Key]mock.Request
}

// NewCollector creates a collector converting with conv.
func NewCollector(conv *Converter, strategy Strategy, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	if strategy == "" {
		strategy = StrategyFirst
	}
	return &Collector{
		conv:     conv,
		strategy: strategy,
		log:      log,
		byKey:    make(map[mock.Key]mock.Request),
	}
}

// Add converts ex and keeps it according to the strategy. It reports whether
// the collection changed.
func (c *Collector) Add(ex requestlog.NetworkExchange) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := c.keyFor(ex)
	if ok && c.strategy == StrategyFirst {
		if _, exists := c.byKey[key]; exists {
			return false, nil
		}
	}

	req, err := c.conv.Convert(ex)
	if err != nil {
		return false, err
	}

	for _, w := range CheckSensitiveData(ex) {
		c.log.Warn("recorded exchange may contain sensitive data",
			"path", ex.Request.Path, "location", w.Location, "field", w.Field, "type", w.Type)
	}

	key = req.Key()
	if _, exists := c.byKey[key]; !exists {
		c.order = append(c.order, key)
	}
	c.byKey[key] = req
	return true, nil
}

// keyFor predicts the definition key without writing any file.
func (c *Collector) keyFor(ex requestlog.NetworkExchange) (mock.Key, bool) {
	method, err := mock.ParseMethod(ex.Request.Method)
	if err != nil {
		return mock.Key{}, false
	}
	path := mock.NormalizePath(ex.Request.Path)
	if c.conv.opts.SmartPaths {
		path = SmartPathMatcher(path)
	}
	return mock.Key{Method: method, Path: path}, true
}

// Run adds every exchange received on in until it is closed or ctx is done.
// Conversion failures are logged and skipped.
func (c *Collector) Run(ctx context.Context, in <-chan requestlog.NetworkExchange) {
	for {
		select {
		case <-ctx.Done():
			return
		case ex, ok := <-in:
			if !ok {
				return
			}
			changed, err := c.Add(ex)
			if err != nil {
				c.log.Warn("skipping recorded exchange", "error", err)
				continue
			}
			if changed {
				c.log.Info("recorded mock", "method", ex.Request.Method, "path", ex.Request.Path, "status", ex.Response.StatusCode)
			}
		}
	}
}

// Requests returns the collected definitions in first-seen order.
func (c *Collector) Requests() []mock.Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]mock.Request, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.byKey[k])
	}
	return out
}

// Len returns the number of collected definitions.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// WriteConfig persists the collected definitions; see WriteConfig.
func (c *Collector) WriteConfig(path, hostname string, port int) error {
	return WriteConfig(path, hostname, port, c.Requests())
}

// WriteConfig saves reqs as a mock-mode configuration at path. Body files
// inside the configuration's directory are written relative to it.
func WriteConfig(path, hostname string, port int, reqs []mock.Request) error {
	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return err
	}

	out := make([]mock.Request, len(reqs))
	for i, r := range reqs {
		if r.Response.Body != nil {
			body := *r.Response.Body
			if abs, err := filepath.Abs(body.FileLocation); err == nil {
				if rel, err := filepath.Rel(base, abs); err == nil && !strings.HasPrefix(rel, "..") {
					body.FileLocation = filepath.ToSlash(rel)
				}
			}
			r.Response.Body = &body
		}
		out[i] = r
	}

	cfg, err := config.New(hostname, port, out...)
	if err != nil {
		return err
	}
	return config.Save(path, cfg)
}
