// Package logging builds the run logger: zap cores behind a logr.Logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls where and how much the run logs.
type Options struct {
	// File receives every entry as JSON. Empty disables file output.
	File string
	// Quiet drops console output; the file still gets everything.
	Quiet bool
	// Debug enables V(1) entries.
	Debug bool
	// Console is the console sink. Defaults to os.Stdout.
	Console io.Writer
	// ForceJSON uses the JSON encoder on the console even on a terminal.
	ForceJSON bool
}

// Logger is a logr.Logger plus the sync hook of its zap core.
type Logger struct {
	logr.Logger
	zap  *zap.Logger
	file *os.File
}

// New creates the logger described by opts.
func New(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	var cores []zapcore.Core
	if !opts.Quiet {
		console := opts.Console
		if console == nil {
			console = os.Stdout
		}
		cores = append(cores, zapcore.NewCore(consoleEncoder(console, opts.ForceJSON), zapcore.AddSync(console), level))
	}

	var file *os.File
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) // #nosec G302 G304
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}
		file = f
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(f), level))
	}

	core := zapcore.NewNopCore()
	if len(cores) > 0 {
		core = zapcore.NewTee(cores...)
	}
	z := zap.New(core, zap.AddCaller())
	return &Logger{Logger: zapr.NewLogger(z), zap: z, file: file}, nil
}

// Sync flushes buffered entries and closes the log file.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	_ = l.zap.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

// consoleEncoder picks a human readable encoder on terminals and JSON
// everywhere else.
func consoleEncoder(w io.Writer, forceJSON bool) zapcore.Encoder {
	if !forceJSON && isTerminal(w) {
		cfg := encoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}
	return zapcore.NewJSONEncoder(encoderConfig())
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
