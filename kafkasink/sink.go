package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	goTrust "github.com/MrEthical07/goTrust"
	"github.com/segmentio/kafka-go"
)

// DefaultTopic is used when Config.Topic is empty.
const DefaultTopic = "gotrust.audit"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures [New].
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	// WriteTimeout bounds a single publish. Zero means 5s.
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Sink writes each audit event as one JSON message.
type Sink struct {
	writer  messageWriter
	timeout time.Duration
	logger  *slog.Logger
	failed  atomic.Uint64
}

// ParseBrokers splits a comma-separated broker list, dropping blanks.
func ParseBrokers(list string) []string {
	var out []string
	for _, b := range strings.Split(list, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// New returns a sink backed by a kafka-go writer. No connection is made until
// the first event is published.
func New(cfg Config) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafkasink: at least one broker required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return newSink(w, cfg.WriteTimeout, cfg.Logger), nil
}

func newSink(w messageWriter, timeout time.Duration, logger *slog.Logger) *Sink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sink{writer: w, timeout: timeout, logger: logger}
}

// Emit publishes event. Failures are logged and counted; audit delivery never
// fails the engine operation that produced the event.
func (s *Sink) Emit(ctx context.Context, event goTrust.AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	msg, err := message(event)
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("audit event encode failed", "event_type", event.EventType, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.failed.Add(1)
		s.logger.Warn("audit publish failed", "event_type", event.EventType, "event_id", event.ID, "error", err)
	}
}

// Failed returns how many events could not be published.
func (s *Sink) Failed() uint64 {
	if s == nil {
		return 0
	}
	return s.failed.Load()
}

// Close flushes pending batches and closes the writer.
func (s *Sink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

func message(event goTrust.AuditEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	key := event.PrincipalID
	if key == "" {
		key = event.SessionID
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}, nil
}
