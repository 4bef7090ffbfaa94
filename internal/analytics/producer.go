package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const (
	EventMovePlayed     = "move_played"
	EventGameFinished   = "game_finished"
	EventPositionSolved = "position_solved"
)

// Event is the envelope written to the topic and read back by the
// analytics consumer.
type Event struct {
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

type Producer struct {
	writer *kafka.Writer
}

// NewProducer returns nil when Kafka is not configured; a nil Producer
// drops every event.
func NewProducer(brokers []string, topic string) *Producer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Err(err).Int("messages", len(messages)).Msg("kafka-publish-failed")
			}
		},
	}
	return &Producer{writer: writer}
}

func NewEvent(event string, payload map[string]any) Event {
	return Event{Event: event, Payload: payload, Timestamp: time.Now().UTC()}
}

func (p *Producer) Publish(ctx context.Context, event string, payload map[string]any) {
	if p == nil || p.writer == nil {
		return
	}
	data, err := json.Marshal(NewEvent(event, payload))
	if err != nil {
		log.Err(err).Str("event", event).Msg("kafka-encode-failed")
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Value: data}); err != nil {
		log.Err(err).Str("event", event).Msg("kafka-publish-failed")
	}
}

// PositionSolved reports a solve served by the API.
func (p *Producer) PositionSolved(ctx context.Context, payload SolvePayload) {
	p.Publish(ctx, EventPositionSolved, payload.fields())
}

type SolvePayload struct {
	ID          string
	Layout      string
	Perspective string
	Mover       string
	Outcomes    []string
	Best        int
	Nodes       uint64
	Cached      bool
	Elapsed     time.Duration
}

func (s SolvePayload) fields() map[string]any {
	return map[string]any{
		"id":          s.ID,
		"board":       s.Layout,
		"perspective": s.Perspective,
		"mover":       s.Mover,
		"outcomes":    s.Outcomes,
		"best":        s.Best,
		"nodes":       s.Nodes,
		"cached":      s.Cached,
		"elapsedMs":   s.Elapsed.Milliseconds(),
	}
}

func (p *Producer) Close() {
	if p == nil || p.writer == nil {
		return
	}
	if err := p.writer.Close(); err != nil {
		log.Err(err).Msg("kafka-close-failed")
	}
}
