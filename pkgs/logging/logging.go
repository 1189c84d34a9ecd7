package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileOptions configures the rotating debug log file
type LogFileOptions struct {
	FileName   string
	MaxSize    int // megabytes
	MaxBackups int
}

func (o *LogFileOptions) writer() io.Writer {
	maxSize := o.MaxSize
	if maxSize == 0 {
		maxSize = 500
	}
	maxBackups := o.MaxBackups
	if maxBackups == 0 {
		maxBackups = 3
	}
	return &lumberjack.Logger{
		Filename:   o.FileName,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}
}

func parseConfigLevelEncoder(levelEncoderName string) (zapcore.LevelEncoder, error) {
	switch levelEncoderName {
	case "capitalColor":
		return zapcore.CapitalColorLevelEncoder, nil
	case "capital":
		return zapcore.CapitalLevelEncoder, nil
	case "lowercase":
		return zapcore.LowercaseLevelEncoder, nil
	case "lowercaseColor":
		return zapcore.LowercaseColorLevelEncoder, nil
	default:
		return nil, fmt.Errorf("unknown log level format %q", levelEncoderName)
	}
}

// SetGlobalLogger replaces the zap global logger. Console output goes to stderr, follows levelName and
// logFormat ("console" or "json"); when fileOptions are given, a JSON debug log is also
// written to a rotating file.
func SetGlobalLogger(levelName string, levelEncoderName string, logFormat string, fileOptions *LogFileOptions) error {
	level, err := zapcore.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", levelName, err)
	}
	levelEncoder, err := parseConfigLevelEncoder(levelEncoderName)
	if err != nil {
		return err
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = levelEncoder

	var encoder zapcore.Encoder
	switch logFormat {
	case "console":
		encoder = zapcore.NewConsoleEncoder(cfg)
	case "json":
		encoder = zapcore.NewJSONEncoder(cfg)
	default:
		return fmt.Errorf("unknown log format %q", logFormat)
	}
	consoleCore := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(level))
	if fileOptions == nil || fileOptions.FileName == "" {
		zap.ReplaceGlobals(zap.New(consoleCore))
		return nil
	}
	fileCfg := zap.NewProductionEncoderConfig()
	fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(fileOptions.writer()), zap.DebugLevel)
	zap.ReplaceGlobals(zap.New(zapcore.NewTee(consoleCore, fileCore)))
	return nil
}
