package logging

import (
	"go.uber.org/zap"

	"github.com/goliatone/go-kyc"
)

// Adapter exposes a zap logger through kyc.Logger.
type Adapter struct {
	sugar *zap.SugaredLogger
}

var _ kyc.Logger = (*Adapter)(nil)

// NewAdapter wraps logger. Caller reporting skips the adapter frame.
func NewAdapter(logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar(),
	}
}

// Named returns an adapter scoped to a sub logger.
func (a *Adapter) Named(name string) *Adapter {
	return &Adapter{sugar: a.sugar.Named(name)}
}

func (a *Adapter) Debug(format string, args ...any) {
	a.sugar.Debugf(format, args...)
}

func (a *Adapter) Info(format string, args ...any) {
	a.sugar.Infof(format, args...)
}

func (a *Adapter) Warn(format string, args ...any) {
	a.sugar.Warnf(format, args...)
}

func (a *Adapter) Error(format string, args ...any) {
	a.sugar.Errorf(format, args...)
}
