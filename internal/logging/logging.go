// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// maxLogSizeMB caps a single run's log file before lumberjack rotates it.
	maxLogSizeMB = 50
	maxBackups   = 3
	filePrefix   = "launcher"
)

type (
	// Config describes where and how verbosely to log.
	Config struct {
		// Level is the minimum level for leveled records.
		Level slog.Level
		// Dir is the log root; a dated subdirectory is created below it.
		// Empty disables file logging.
		Dir string
		// Console receives colored output. Defaults to os.Stderr.
		Console io.Writer
		// Now is the clock used for file naming. Defaults to time.Now.
		Now func() time.Time
	}

	// Session owns the log file opened by Setup.
	Session struct {
		// File is the log file path, empty when file logging is disabled.
		File string

		file     *lumberjack.Logger
		previous *slog.Logger
	}

	// fanout dispatches each record to every handler that accepts its level.
	fanout []slog.Handler
)

//nolint:gochecknoglobals // loggers used by Notice; replaced by Setup
var (
	noticeMu      sync.RWMutex
	noticeLoggers = []*log.Logger{log.Default()}
)

// Setup installs the default slog logger and returns the session that owns
// the log file. Close restores the previous default logger.
func Setup(cfg Config) (*Session, error) {
	if cfg.Console == nil {
		cfg.Console = os.Stderr
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	console := log.NewWithOptions(cfg.Console, log.Options{
		Level:           log.Level(cfg.Level),
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
	handlers := fanout{console}
	notice := []*log.Logger{console}

	s := &Session{previous: slog.Default()}
	if cfg.Dir != "" {
		path, err := FilePath(cfg.Dir, cfg.Now(), cfg.Level)
		if err != nil {
			return nil, err
		}
		s.File = path
		s.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxLogSizeMB,
			MaxBackups: maxBackups,
		}
		file := log.NewWithOptions(s.file, log.Options{
			Level:           log.Level(cfg.Level),
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
			Formatter:       log.LogfmtFormatter,
		})
		handlers = append(handlers, file)
		notice = append(notice, file)
	}

	slog.SetDefault(slog.New(handlers))

	noticeMu.Lock()
	noticeLoggers = notice
	noticeMu.Unlock()

	return s, nil
}

// Close flushes the log file and restores the previous default logger.
func (s *Session) Close() error {
	slog.SetDefault(s.previous)

	noticeMu.Lock()
	noticeLoggers = []*log.Logger{log.Default()}
	noticeMu.Unlock()

	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Notice logs a message that is shown regardless of the configured level.
func Notice(msg string, keyvals ...any) {
	noticeMu.RLock()
	defer noticeMu.RUnlock()
	for _, l := range noticeLoggers {
		l.Print(msg, keyvals...)
	}
}

// FilePath returns a fresh log file path of the form
// <dir>/<YYYY-MM-DD>/launcher_<HHMMSS>[_N]_<level>.log, creating the dated
// directory. A numeric suffix is added when a file for the same second exists.
func FilePath(dir string, now time.Time, level slog.Level) (string, error) {
	dated := filepath.Join(dir, now.Format(time.DateOnly))
	if err := os.MkdirAll(dated, 0o755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}

	stamp := now.Format("150405")
	levelName := strings.ToLower(level.String())
	for n := 0; ; n++ {
		name := fmt.Sprintf("%s_%s_%s.log", filePrefix, stamp, levelName)
		if n > 0 {
			name = fmt.Sprintf("%s_%s_%d_%s.log", filePrefix, stamp, n, levelName)
		}
		path := filepath.Join(dated, name)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
	}
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
