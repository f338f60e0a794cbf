package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/amishk599/jobrelay/internal/model"
)

// KafkaConfig selects the topic carrying inbound messages.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Event is the JSON payload expected on the topic.
type Event struct {
	Text      string `json:"text"`
	Channel   string `json:"channel"`
	MessageID string `json:"message_id"`
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type submitter interface {
	Submit(ctx context.Context, text string, meta model.SourceMeta) error
}

// KafkaSource feeds events from a Kafka topic into a Pool. Offsets are
// committed once the event is queued, so a crash may replay queued events;
// the opportunity fingerprint makes replays harmless.
type KafkaSource struct {
	reader messageReader
	sink   submitter
	logger *slog.Logger
}

// NewKafkaSource returns a consumer-group reader for cfg.
func NewKafkaSource(cfg KafkaConfig, sink submitter, logger *slog.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka source needs brokers and a topic")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "jobrelay"
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: 0,
	})
	return &KafkaSource{reader: reader, sink: sink, logger: logger}, nil
}

// Run consumes until ctx is cancelled.
func (s *KafkaSource) Run(ctx context.Context) error {
	defer s.reader.Close()
	s.logger.Info("kafka consumer started")

	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("reading kafka message: %w", err)
		}

		if ev, ok := s.decode(msg); ok {
			meta := model.SourceMeta{Channel: ev.Channel, MessageID: ev.MessageID}
			if err := s.sink.Submit(ctx, ev.Text, meta); err != nil {
				// Not committed, so the event is redelivered after restart.
				return nil
			}
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("committing kafka offset %d: %w", msg.Offset, err)
		}
	}
}

func (s *KafkaSource) decode(msg kafka.Message) (Event, bool) {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		s.logger.Error("invalid kafka event", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return Event{}, false
	}
	if strings.TrimSpace(ev.Text) == "" {
		s.logger.Warn("kafka event without text", "partition", msg.Partition, "offset", msg.Offset)
		return Event{}, false
	}
	if ev.Channel == "" {
		ev.Channel = msg.Topic
	}
	if ev.MessageID == "" {
		ev.MessageID = fmt.Sprintf("%d:%d", msg.Partition, msg.Offset)
	}
	return ev, true
}
