package krequestlog

import (
	"github.com/flokana/authgate/lib/logger"
)

type Options struct {
	Log       logger.Logger
	LogStart  bool
	LogEnd    bool
	LogFormat string
	Printer   func(format string, args ...interface{})
}

type Modifier func(*Options)

func WithLogger(log logger.Logger) Modifier {
	return func(o *Options) {
		o.Log = log
		if o.Printer == nil {
			o.Printer = log.Infof
		}
	}
}

func WithPrinter(printer func(format string, args ...interface{})) Modifier {
	return func(o *Options) {
		o.Printer = printer
	}
}

// WithStartLogging also logs a line when the request begins, which helps
// when chasing requests that never complete.
func WithStartLogging() Modifier {
	return func(o *Options) {
		o.LogStart = true
	}
}

// WithFormat selects the log line format: "text" or "apache".
func WithFormat(format string) Modifier {
	return func(o *Options) {
		o.LogFormat = format
	}
}

func NewOptions(mods ...Modifier) *Options {
	o := &Options{
		Log:       logger.Go,
		LogEnd:    true,
		LogFormat: "text",
	}
	for _, m := range mods {
		m(o)
	}
	if o.Printer == nil {
		o.Printer = o.Log.Infof
	}
	return o
}
