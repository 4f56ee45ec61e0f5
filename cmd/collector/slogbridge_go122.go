//go:build go1.22

package main

import "log/slog"

// setLogLoggerLevel sets the level used when bridging legacy log package
// output through the slog default handler.
func setLogLoggerLevel(level slog.Level) {
	slog.SetLogLoggerLevel(level)
}
