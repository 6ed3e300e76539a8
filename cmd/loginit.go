package cmd

import (
	"log/slog"
	"os"
	"sync"
)

// global logger, initialized once
var (
	globalLogger *slog.Logger
	logLevel     = new(slog.LevelVar)
	once         sync.Once
)

// Init installs the global text logger on stderr so stdout carries only the
// report. Under systemd the timestamp is dropped.
func Init() *slog.Logger {
	once.Do(func() {
		logLevel.Set(slog.LevelWarn)
		opts := &slog.HandlerOptions{
			AddSource: true,
			Level:     logLevel,
		}
		if isRunningUnderSystemd() {
			opts.AddSource = false
			opts.ReplaceAttr = removeTimeAttr
		}

		globalLogger = slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(globalLogger)
	})

	return globalLogger
}

// SetVerbosity maps the -v count to a level: none warns, -v informs, -vv debugs.
func SetVerbosity(n int) {
	switch {
	case n <= 0:
		logLevel.Set(slog.LevelWarn)
	case n == 1:
		logLevel.Set(slog.LevelInfo)
	default:
		logLevel.Set(slog.LevelDebug)
	}
}

func isRunningUnderSystemd() bool {
	_, ok := os.LookupEnv("INVOCATION_ID")
	return ok
}

func removeTimeAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && len(groups) == 0 {
		return slog.Attr{}
	}
	return a
}

func init() {
	Init()
}
