package klog

import (
	"io"

	"github.com/flokana/authgate/lib/logger"
)

// Tee forwards log messages to both primary and secondary loggers.
//
// The auth server uses it to keep human readable logs on stderr while
// appending a machine parseable copy to an audit file.
type Tee struct {
	Primary   logger.Logger
	Secondary logger.Logger
}

// NewTee returns a Logger that forwards to both loggers.
func NewTee(primary, secondary logger.Logger) logger.Logger {
	return &Tee{Primary: primary, Secondary: secondary}
}

func (t *Tee) Debugf(format string, args ...interface{}) {
	t.forward(func(log logger.Logger) { log.Debugf(format, args...) })
}

func (t *Tee) Infof(format string, args ...interface{}) {
	t.forward(func(log logger.Logger) { log.Infof(format, args...) })
}

func (t *Tee) Warnf(format string, args ...interface{}) {
	t.forward(func(log logger.Logger) { log.Warnf(format, args...) })
}

func (t *Tee) Errorf(format string, args ...interface{}) {
	t.forward(func(log logger.Logger) { log.Errorf(format, args...) })
}

func (t *Tee) SetOutput(writer io.Writer) {
	t.forward(func(log logger.Logger) { log.SetOutput(writer) })
}

func (t *Tee) forward(fn func(logger.Logger)) {
	if t.Primary != nil {
		fn(t.Primary)
	}
	if t.Secondary != nil && t.Secondary != t.Primary {
		fn(t.Secondary)
	}
}
