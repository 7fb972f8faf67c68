package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/avolkov/hostrun/internal/lg"
)

// messageWriter is the slice of kafka.Writer the publisher needs; tests
// substitute a fake.
type messageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Publisher emits job events to one Kafka topic.
type Publisher struct {
	writer messageWriter
	log    lg.Logger
}

func NewPublisher(brokers []string, topic string, log lg.Logger) *Publisher {
	if log == nil {
		log = lg.Discard
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			Async:                  false,
			AllowAutoTopicCreation: true,
		},
		log: log,
	}
}

// PublishFinished sends a JobFinished event keyed by the job id.
func (p *Publisher) PublishFinished(ctx context.Context, ev JobFinished) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.JobID),
		Value: value,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("failed to publish job event",
			lg.String("job", ev.JobID), lg.Err(err))
		return fmt.Errorf("write message: %w", err)
	}
	p.log.Debug("published job event", lg.String("job", ev.JobID))
	return nil
}

func (p *Publisher) Close() error { return p.writer.Close() }
