// Package logging builds the process logger shared by the groupsync binaries.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger writing to stdout at info level, along with the
// level handle so the caller can change it once configuration is read.
func New() (zap.AtomicLevel, *zap.Logger) {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter is New writing to w instead of stdout.
func NewWithWriter(w io.Writer) (zap.AtomicLevel, *zap.Logger) {
	logLevel := zap.NewAtomicLevel()
	logConfig := zap.NewProductionEncoderConfig()
	logConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonEncoder := zapcore.NewJSONEncoder(logConfig)
	core := zapcore.NewCore(jsonEncoder, zapcore.AddSync(w), logLevel)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return logLevel, logger
}

// SetLevel parses levelStr into level, falling back to info on bad input.
func SetLevel(logger *zap.Logger, level zap.AtomicLevel, levelStr string) {
	parsed, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		logger.Warn("invalid log level specified, using INFO instead", zap.String("logLevel", levelStr))
		parsed = zapcore.InfoLevel
	}
	level.SetLevel(parsed)
}
