package application

import "log/slog"

// ModuleName is the value of the "module" key on every governor log line.
const ModuleName = "treasury-governance/governor"

// ResolveLogger guarantees a non-nil logger for governor use cases and
// workers.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
