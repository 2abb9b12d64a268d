package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Zap adapts a zap logger to the key/value Logger interface used across
// modkit.
type Zap struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// NewZap builds a production zap logger at level. When the production config
// cannot be built it falls back to the development config.
func NewZap(level Level) (*Zap, error) {
	atom := zap.NewAtomicLevelAt(level.ZapLevel())

	cfg := zap.NewProductionConfig()
	cfg.Level = atom
	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		dev := zap.NewDevelopmentConfig()
		dev.Level = atom
		logger, err = dev.Build(zap.AddCallerSkip(1))
		if err != nil {
			return nil, err
		}
	}

	return &Zap{sugar: logger.Sugar(), level: atom}, nil
}

// WrapZap adapts an existing zap logger. Its core decides which levels are
// written.
func WrapZap(logger *zap.Logger) *Zap {
	atom := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	return &Zap{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar(), level: atom}
}

// NewNop returns a Zap that discards everything.
func NewNop() *Zap {
	return WrapZap(zap.NewNop())
}

func (z *Zap) Info(msg string, args ...any) {
	z.sugar.Infow(msg, args...)
}

func (z *Zap) Error(msg string, args ...any) {
	z.sugar.Errorw(msg, args...)
}

func (z *Zap) Warn(msg string, args ...any) {
	z.sugar.Warnw(msg, args...)
}

func (z *Zap) Debug(msg string, args ...any) {
	z.sugar.Debugw(msg, args...)
}

// With returns a child logger that adds args to every entry.
func (z *Zap) With(args ...any) *Zap {
	return &Zap{sugar: z.sugar.With(args...), level: z.level}
}

// SetLevel changes the minimum level of loggers built by NewZap.
func (z *Zap) SetLevel(level Level) {
	z.level.SetLevel(level.ZapLevel())
}

// Zap returns the underlying logger.
func (z *Zap) Zap() *zap.Logger {
	return z.sugar.Desugar()
}

// Sync flushes buffered entries.
func (z *Zap) Sync() error {
	return z.sugar.Sync()
}
