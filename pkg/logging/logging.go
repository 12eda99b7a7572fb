// Package logging builds the slog handler of both binaries from configuration.
// The level is held in a slog.LevelVar so a config reload can change it on
// the running logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// New constructs a logger writing to w with the given level and format.
// The returned LevelVar controls the level of the logger afterwards.
func New(w io.Writer, level, format string) (*slog.Logger, *slog.LevelVar, error) {
	lv := new(slog.LevelVar)
	if err := SetLevel(lv, level); err != nil {
		return nil, nil, err
	}

	opts := &slog.HandlerOptions{Level: lv}
	var h slog.Handler
	switch format {
	case "json", "":
		h = slog.NewJSONHandler(w, opts)
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, nil, fmt.Errorf("logging: unsupported format %q", format)
	}
	return slog.New(h), lv, nil
}

// SetLevel parses level and stores it in lv.
func SetLevel(lv *slog.LevelVar, level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return fmt.Errorf("logging: unsupported level %q", level)
	}
	lv.Set(l)
	return nil
}
