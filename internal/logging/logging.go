// Package logging builds the zap loggers used across the module and adapts them
// into a diagnostics sink for the trajectory core.
package logging

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/san-kum/dmp/internal/dynamo"
)

// NewLoggerConfig returns a console config with ISO8601 timestamps, colored levels and
// stacktraces disabled.
func NewLoggerConfig() zap.Config {
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// NewLogger builds a named logger at level ("debug", "info", "warn", "error").
func NewLogger(name, level string) (*zap.Logger, error) {
	cfg := NewLoggerConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, errors.Wrapf(err, "log level %q", level)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named(name), nil
}

// Diagnostics writes every reported failure as a structured warning and counts
// reports per component and operation. Repeated reports of the same failure are
// logged once every Every occurrences.
type Diagnostics struct {
	logger *zap.Logger
	every  int

	mu     sync.Mutex
	counts map[string]int
}

var _ dynamo.Diagnostics = (*Diagnostics)(nil)

// NewDiagnostics logs to logger. every <= 1 logs each report.
func NewDiagnostics(logger *zap.Logger, every int) *Diagnostics {
	if every < 1 {
		every = 1
	}
	return &Diagnostics{logger: logger, every: every, counts: make(map[string]int)}
}

func (d *Diagnostics) Report(component, op string, err error) {
	key := component + "/" + op
	d.mu.Lock()
	d.counts[key]++
	n := d.counts[key]
	d.mu.Unlock()

	if (n-1)%d.every != 0 {
		return
	}
	d.logger.Warn("operation failed",
		zap.String("component", component),
		zap.String("op", op),
		zap.Int("occurrence", n),
		zap.Error(err),
	)
}

// Count returns how many failures component/op has reported.
func (d *Diagnostics) Count(component, op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[component+"/"+op]
}

// Total returns the number of reports received.
func (d *Diagnostics) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, n := range d.counts {
		total += n
	}
	return total
}
