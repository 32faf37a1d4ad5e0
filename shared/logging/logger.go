// Package logging is a thin leveled wrapper around the standard logger.
package logging

import (
	"log"
	"os"
	"time"
)

func stamp() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// Infof logs an informational message.
func Infof(format string, args ...any) {
	log.Printf("INFO  %s "+format, append([]any{stamp()}, args...)...)
}

// Warnf logs a warning.
func Warnf(format string, args ...any) {
	log.Printf("WARN  %s "+format, append([]any{stamp()}, args...)...)
}

// Errorf logs an error.
func Errorf(format string, args ...any) {
	log.Printf("ERROR %s "+format, append([]any{stamp()}, args...)...)
}

// Fatalf logs an error and exits the process.
func Fatalf(format string, args ...any) {
	log.Printf("FATAL %s "+format, append([]any{stamp()}, args...)...)
	os.Exit(1)
}
