// Package logging builds the monitor's zap logger. Every entry goes to both
// a rotated report file and the console, as bare messages.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// File is the report log path. Empty disables the file sink.
	File string
	// Console receives the same entries as File. Defaults to os.Stdout.
	Console io.Writer
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New returns a logger that tees entries to the report file and the console.
func New(opts Options) (*zap.Logger, error) {
	level := zap.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("parsing log level %q: %w", opts.Level, err)
		}
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}

	enc := zapcore.NewConsoleEncoder(messageOnly())
	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(opts.Console)), level),
	}

	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating log dir: %w", err)
			}
		}
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB, // MB
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays, // days
			Compress:   opts.Compress,
		})
		cores = append(cores, zapcore.NewCore(enc.Clone(), w, level))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

// messageOnly drops time, level, and caller so lines read as plain report
// text. Structured fields are still appended after the message.
func messageOnly() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = ""
	cfg.LevelKey = ""
	cfg.CallerKey = ""
	cfg.NameKey = ""
	cfg.StacktraceKey = ""
	cfg.MessageKey = "msg"
	return cfg
}
