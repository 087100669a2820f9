// Package logging builds the pipeline's structured logger: a zap logger
// teeing to the console and to a rotating log file, plus a stage timer
// that reports each pipeline phase's duration and memory footprint.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger New builds.
type Options struct {
	// FilePath is the rotating log file's path. Empty disables file output.
	FilePath string

	// MaxSizeMB is the size a log file grows to before lumberjack rotates
	// it. Defaults to 50 when zero.
	MaxSizeMB int

	// MaxBackups is how many rotated files lumberjack keeps. Defaults to 3.
	MaxBackups int

	// Debug enables debug-level console output; otherwise info-level.
	Debug bool
}

// New builds a *zap.Logger teeing to stderr and, if FilePath is set, to a
// lumberjack-rotated file. Console output is human-readable; file output
// is JSON, for later ingestion.
func New(opts Options) (*zap.Logger, error) {
	if opts.MaxSizeMB == 0 {
		opts.MaxSizeMB = 50
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 3
	}

	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), level),
	}

	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     28,
			Compress:   true,
		}
		jsonEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotator), level))
	}

	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller()), nil
}
