package fractalloc

import (
	"io"
	"log/slog"
)

// Logger receives structured diagnostics: new pools, new allocations,
// deallocations, garbage collection, and integrity failures. It discards
// everything until a caller opts in with SetLogger, the same shape
// cmd/hiveexplorer/logger uses to keep a library quiet by default.
var Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// SetLogger installs l as the package-wide diagnostics sink. Passing nil
// restores the discarding default.
func SetLogger(l *slog.Logger) {
	if l == nil {
		Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		return
	}
	Logger = l
}
