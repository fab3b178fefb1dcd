// Package logging configures the process-wide jww notepad: stdout threshold
// from the configured level and an optional append-only log file.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/mahaj/dupahar-chat/pkg/config"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// ParseLevel maps a level name to a jww threshold. Unknown names fall back
// to info.
func ParseLevel(level string) jww.Threshold {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return jww.LevelTrace
	case "debug":
		return jww.LevelDebug
	case "warn", "warning":
		return jww.LevelWarn
	case "error":
		return jww.LevelError
	case "critical":
		return jww.LevelCritical
	case "fatal":
		return jww.LevelFatal
	}
	return jww.LevelInfo
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup applies cfg and returns a closer for the log file.
func Setup(cfg config.Logging) (io.Closer, error) {
	threshold := ParseLevel(cfg.Level)
	jww.SetStdoutThreshold(threshold)

	if cfg.File == "" || cfg.File == "-" {
		return nopCloser{}, nil
	}

	f, err := os.OpenFile(cfg.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "open log file %s", cfg.File)
	}
	jww.SetLogOutput(f)
	jww.SetLogThreshold(threshold)
	return f, nil
}
