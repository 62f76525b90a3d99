package authcore

import (
	"io"

	"go.uber.org/zap"

	"github.com/viridial/authcore/internal/audit"
)

type (
	// AuditEvent is one security-relevant outcome emitted by the Engine.
	AuditEvent = audit.Event
	// AuditSink receives audit events on the dispatcher goroutine.
	AuditSink      = audit.Sink
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	ZapSink        = audit.ZapSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return audit.NewZapSink(logger)
}
