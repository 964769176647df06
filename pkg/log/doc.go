// Package log exposes the structured logging used by propship components.
//
// Client and Server accept any [Logger]. The default implementation writes
// through zerolog to the console, and optionally to an append-only file:
//
//	logger, err := log.New(log.Options{Level: "debug", File: "/var/log/propship.log"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	c, err := propship.NewClient(cfg, propship.WithLogger(logger))
//
// Use the no-op logger for tests:
//
//	logger := log.NewNoopLogger()
//
// # Custom Loggers
//
// Implement the Logger interface to integrate with your existing
// logging infrastructure:
//
//	type MyLogger struct { ... }
//
//	func (l *MyLogger) Debug(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Info(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Warn(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Error(msg string, fields ...log.Field) { ... }
package log
