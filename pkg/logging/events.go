package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// LogEvent is one log line as published to subscribers.
type LogEvent struct {
	Level   Level     `json:"-"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// String renders the event the way the console handler does.
func (e LogEvent) String() string {
	return fmt.Sprintf("%s [%s] %s", e.Time.Format(time.RFC3339), LevelName(e.Level), e.Message)
}

// MarshalJSON encodes the level by name.
func (e LogEvent) MarshalJSON() ([]byte, error) {
	type alias LogEvent
	return json.Marshal(struct {
		Level string `json:"level"`
		alias
	}{
		Level: strings.ToLower(LevelName(e.Level)),
		alias: alias(e),
	})
}

// EventSink receives log events. *broadcast.Broadcaster[LogEvent] satisfies it.
type EventSink interface {
	Send(LogEvent)
}

// BroadcastHandler is a slog.Handler that publishes every record as a LogEvent.
// Attributes are folded into the message as key=value pairs.
type BroadcastHandler struct {
	sink   EventSink
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewBroadcastHandler creates a handler publishing records at or above level.
func NewBroadcastHandler(sink EventSink, level slog.Leveler) *BroadcastHandler {
	if level == nil {
		level = LevelInfo
	}
	return &BroadcastHandler{sink: sink, level: level}
}

// Enabled implements slog.Handler.
func (h *BroadcastHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *BroadcastHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	for _, a := range h.attrs {
		appendAttr(&sb, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&sb, prefix, a)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	h.sink.Send(LogEvent{
		Level:   r.Level,
		Message: sb.String(),
		Time:    ts,
	})
	return nil
}

// WithAttrs implements slog.Handler.
func (h *BroadcastHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	qualified := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		qualified[i] = slog.Attr{Key: prefix + a.Key, Value: a.Value}
	}
	return &BroadcastHandler{
		sink:   h.sink,
		level:  h.level,
		attrs:  append(h.attrs[:len(h.attrs):len(h.attrs)], qualified...),
		groups: h.groups,
	}
}

// WithGroup implements slog.Handler.
func (h *BroadcastHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &BroadcastHandler{
		sink:   h.sink,
		level:  h.level,
		attrs:  h.attrs,
		groups: append(h.groups[:len(h.groups):len(h.groups)], name),
	}
}

func appendAttr(sb *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(sb, p, ga)
		}
		return
	}

	sb.WriteByte(' ')
	sb.WriteString(prefix)
	sb.WriteString(a.Key)
	sb.WriteByte('=')
	v := a.Value.String()
	if strings.ContainsAny(v, " \t\"=") {
		v = fmt.Sprintf("%q", v)
	}
	sb.WriteString(v)
}
