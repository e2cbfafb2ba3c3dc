// Package logging provides structured logging for PlugPilot Core.
//
// It wraps log/slog with configuration-driven setup: output destination
// (stdout, stderr, or a size/age-rotated file), format (JSON or text), and
// level filtering, with service and version attached as default fields.
package logging
