// Package observe wires structured logging and tracing for memvault.
package observe

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("memvault")

// Observer handles logging and tracing
type Observer struct {
	log *bolt.Logger
}

// New creates an Observer. format is "json" or "console"; level is one of
// debug, info, warn, error (default info).
func New(out io.Writer, format, level string) *Observer {
	if out == nil {
		out = os.Stderr
	}

	var l *bolt.Logger
	if strings.EqualFold(format, "console") {
		l = bolt.New(bolt.NewConsoleHandler(out))
	} else {
		l = bolt.New(bolt.NewJSONHandler(out))
	}

	switch strings.ToLower(level) {
	case "debug":
		l.SetLevel(bolt.DEBUG)
	case "warn", "warning":
		l.SetLevel(bolt.WARN)
	case "error":
		l.SetLevel(bolt.ERROR)
	default:
		l.SetLevel(bolt.INFO)
	}

	return &Observer{log: l}
}

// Nop returns an Observer that discards all output. Useful in tests.
func Nop() *Observer {
	l := bolt.New(bolt.NewJSONHandler(io.Discard))
	l.SetLevel(bolt.ERROR)
	return &Observer{log: l}
}

// Log returns the underlying logger
func (o *Observer) Log() *bolt.Logger {
	return o.log
}

// StartSpan starts a new OTel span
func (o *Observer) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// Close ensures any buffered logs or traces are flushed (placeholder)
func (o *Observer) Close() error {
	return nil
}
