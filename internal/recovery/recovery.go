// Package recovery provides panic recovery for background callbacks such as
// the link conditioner's flush timer.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// RecoverWithLog recovers from panics and logs them with the provided logger.
// Use this with defer at the start of goroutines and timer callbacks.
//
// Example:
//
//	time.AfterFunc(d, func() {
//	    defer recovery.RecoverWithLog(logger, "flush")
//	    // ... callback work
//	})
func RecoverWithLog(logger *slog.Logger, name string) {
	if r := recover(); r != nil {
		logger.Error("panic recovered",
			"goroutine", name,
			"panic", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()))
	}
}
