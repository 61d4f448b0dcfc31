package utils

import (
	"log/slog"
	"os"
)

// QuitChan receives the signals that trigger a graceful shutdown.
var QuitChan = make(chan os.Signal, 1)

// Shutdown logs a fatal startup problem and exits.
func Shutdown(reason string, args ...any) {
	slog.Error("🚨 "+reason, args...)
	os.Exit(1)
}
