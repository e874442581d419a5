// Package process provides binary entrypoint helpers for the effect
// runner's service and CLI binaries. It centralizes the raw I/O that
// legitimately happens outside the structured logger: reporting a
// fatal error from main() before (or without) a configured slog
// handler, and the process exit that follows it.
package process
