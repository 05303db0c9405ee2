package logutil

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	log "github.com/charmbracelet/log"
)

const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatLogfmt  = "logfmt"
	defaultFormat = FormatText
)

var (
	outputMu sync.Mutex
	output   io.Writer = os.Stderr
)

// Configure sets the global level and formatter of the charm logger. An
// empty level means info, an empty format means text.
func Configure(levelRaw, formatRaw string) error {
	level, err := ParseLevel(levelRaw)
	if err != nil {
		return err
	}
	formatter, err := parseFormat(formatRaw)
	if err != nil {
		return err
	}
	outputMu.Lock()
	defer outputMu.Unlock()
	log.SetOutput(output)
	log.SetLevel(level)
	log.SetFormatter(formatter)
	log.SetReportTimestamp(true)
	return nil
}

// SetOutput redirects global log output, mainly for tests.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	outputMu.Lock()
	defer outputMu.Unlock()
	output = w
	log.SetOutput(w)
}

func ParseLevel(levelRaw string) (log.Level, error) {
	levelRaw = strings.ToLower(strings.TrimSpace(levelRaw))
	switch levelRaw {
	case "":
		return log.InfoLevel, nil
	case "trace", "trac":
		// no trace level in charm log
		return log.DebugLevel, nil
	}
	level, err := log.ParseLevel(levelRaw)
	if err != nil {
		return 0, fmt.Errorf("invalid loglevel %q", levelRaw)
	}
	return level, nil
}

func parseFormat(raw string) (log.Formatter, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		raw = defaultFormat
	}
	switch raw {
	case FormatText:
		return log.TextFormatter, nil
	case FormatJSON:
		return log.JSONFormatter, nil
	case FormatLogfmt:
		return log.LogfmtFormatter, nil
	default:
		return 0, fmt.Errorf("invalid log format %q (want text, json or logfmt)", raw)
	}
}

// Component returns a logger tagged with the component name. It copies the
// global settings at call time, so call it after Configure.
func Component(name string) *log.Logger {
	return log.Default().With("component", name)
}
