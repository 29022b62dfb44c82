// Package logx is remindbot's structured logger: a thin layer over zerolog
// whose outputs can be swapped at runtime when the config file changes.
//
// A Service owns the outputs: human-readable console, JSON file, a dashboard
// sink that publishes log lines on the event bus, and a rate-limited alert
// sink that forwards warnings to an operator chat. Loggers derived from a
// Service follow every Apply.
package logx
