package monitoring

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level = zap.NewAtomicLevelAt(zap.InfoLevel)
	base  = newSugared(level)
)

// Logf is the package-level diagnostic logger. It defaults to a zap console
// logger on stderr but may be replaced by SetLogger. Tests or production code
// can redirect or mute it.
var Logf func(format string, v ...interface{}) = base.Infof

// Warnf logs at warning level through the same sink as Logf.
var Warnf func(format string, v ...interface{}) = base.Warnf

func newSugared(lvl zap.AtomicLevel) *zap.SugaredLogger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), lvl)
	return zap.New(core).Sugar()
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		Warnf = Logf
		return
	}
	Logf = f
	Warnf = f
}

// SetZap routes Logf and Warnf through l.
func SetZap(l *zap.Logger) {
	s := l.Sugar()
	Logf = s.Infof
	Warnf = s.Warnf
}

// Configure sets the minimum level of the default logger, e.g. "debug",
// "info", "warn" or "error".
func Configure(name string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	level.SetLevel(lvl)
	return nil
}

// Sync flushes any buffered log entries of the default logger.
func Sync() {
	_ = base.Sync()
}
