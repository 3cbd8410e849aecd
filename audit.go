package goTrust

import (
	"io"

	"github.com/MrEthical07/goTrust/internal/audit"
)

// AuditEvent is a structured record of a trust decision or challenge step.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher worker.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers audit events in a channel for in-process consumers.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// NewChannelSink returns a [ChannelSink] with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// MultiSink fans each event out to several sinks in order, for example a
// Kafka sink and a local JSON log.
type MultiSink = audit.MultiSink

// NewMultiSink combines sinks. Nil entries are skipped.
func NewMultiSink(sinks ...AuditSink) MultiSink {
	return MultiSink(sinks)
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *audit.Dispatcher {
	return audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Enabled,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
	}, sink)
}
