//go:build !go1.22

package main

import "log/slog"

// setLogLoggerLevel is a no-op before Go 1.22: slog.SetLogLoggerLevel does
// not exist there, and legacy log package output is always bridged at
// slog.LevelInfo.
func setLogLoggerLevel(_ slog.Level) {}
