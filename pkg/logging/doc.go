// Package logging provides structured logging configuration for mockdeck.
//
// This package wraps log/slog so every component logs the same way. On top of
// the four slog levels it defines trace, notice and critical, giving the seven
// severities carried by LogEvent.
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	})
//
//	logger.Info("server started", "addr", "127.0.0.1:8080")
//
// # Log Events
//
// BroadcastHandler turns every slog record into a LogEvent and sends it to a
// broadcast.Broadcaster, so an external UI can subscribe to the engine's log
// lines. Combine it with a console handler through Tee:
//
//	events := broadcast.New[logging.LogEvent](broadcast.WithBufferSize(500))
//	logger := slog.New(logging.Tee(
//	    consoleHandler,
//	    logging.NewBroadcastHandler(events, logging.LevelTrace),
//	))
//
// # Integration
//
// Components accept a *slog.Logger through an option. If none is provided,
// use logging.Nop().
package logging
