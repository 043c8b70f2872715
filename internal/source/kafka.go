// Package source adapts the host engine's record stream to the alarm
// dispatcher. The engine publishes each archive record as a JSON object
// on a Kafka topic; this reader consumes them and hands each one to the
// dispatcher without blocking on assessment.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"wxalarm/internal/config"
	"wxalarm/internal/logger"
	"wxalarm/internal/metrics"
	"wxalarm/internal/record"
)

// Dispatcher receives each decoded archive record.
type Dispatcher interface {
	OnNewRecord(rec record.Record)
}

// Source consumes archive records from Kafka.
type Source struct {
	reader     *kafka.Reader
	dispatcher Dispatcher
}

// New creates a Source for the configured topic. A GroupID is used so a
// restarted daemon resumes from its committed offset rather than
// re-assessing history.
func New(cfg config.KafkaConfig, d Dispatcher) *Source {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 1e6,
		MaxWait:  500 * time.Millisecond,
	})
	return &Source{reader: reader, dispatcher: d}
}

// Run consumes records until ctx is cancelled. Malformed payloads are
// dropped with a warning; they never reach the dispatcher.
func (s *Source) Run(ctx context.Context) error {
	log := logger.WithComponent("source")
	log.Info().
		Str("topic", s.reader.Config().Topic).
		Strs("brokers", s.reader.Config().Brokers).
		Msg("record source started")

	for {
		m, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				log.Info().Msg("record source stopped")
				return nil
			}
			log.Error().Err(err).Msg("record read failed")
			return fmt.Errorf("read record: %w", err)
		}

		rec, err := Decode(m.Value)
		if err != nil {
			metrics.RecordsDropped.WithLabelValues("decode").Inc()
			log.Warn().Err(err).Int64("offset", m.Offset).Msg("malformed record dropped")
			continue
		}
		s.dispatcher.OnNewRecord(rec)
	}
}

// Close releases the underlying reader.
func (s *Source) Close() error {
	return s.reader.Close()
}

// Decode parses one archive record payload. A record must at least
// carry its timestamp.
func Decode(payload []byte) (record.Record, error) {
	var rec record.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if _, err := rec.Time(); err != nil {
		return nil, err
	}
	return rec, nil
}
