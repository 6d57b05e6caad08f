// Package eventsink provides event.Sink implementations that publish
// the engine's event stream outside the process: a Kafka-backed sink,
// and a resilience wrapper (circuit breaker + retry with backoff) that
// keeps a broker outage from ever blocking the tick loop.
package eventsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/rs/zerolog/log"

	"github.com/paynet/simcash/event"
)

// KafkaSink publishes every appended event as a JSON message to a
// Kafka topic, keyed by tick so a consumer partitioned by key sees a
// tick's events in append order. It satisfies event.Sink; publish
// errors are logged and dropped rather than returned, since Sink's
// Append has no error channel — callers wanting retry/backoff and
// fail-fast behavior around a flaky broker should wrap a KafkaSink in
// Resilient instead of calling it directly.
type KafkaSink struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaSink dials brokerAddr and creates topic if it doesn't
// already exist, mirroring the write-path setup once used to seed
// bank-network transactions: async batched writes tuned for high
// throughput, since the engine may emit many events per tick.
func NewKafkaSink(brokerAddr, topic string) (*KafkaSink, error) {
	conn, err := kafka.Dial("tcp", brokerAddr)
	if err != nil {
		return nil, fmt.Errorf("eventsink: dial kafka %s: %w", brokerAddr, err)
	}
	defer conn.Close()

	if controller, err := conn.Controller(); err == nil {
		controllerConn, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
		if err == nil {
			defer controllerConn.Close()
			err = controllerConn.CreateTopics(kafka.TopicConfig{
				Topic:             topic,
				NumPartitions:     3,
				ReplicationFactor: 1,
			})
			if err != nil && err != kafka.TopicAlreadyExists {
				log.Warn().Err(err).Str("topic", topic).Msg("could not create topic")
			}
		}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerAddr),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Compression:  kafka.Snappy,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}
	return &KafkaSink{writer: writer, topic: topic}, nil
}

// Append implements event.Sink.
func (k *KafkaSink) Append(e event.Event) {
	if err := k.TryAppend(e); err != nil {
		log.Error().Err(err).Str("topic", k.topic).Str("kind", string(e.Kind)).Msg("failed to publish event")
	}
}

// TryAppend publishes e and returns any error, for callers (Resilient)
// that want to apply their own retry/circuit-breaker policy instead of
// the fire-and-forget default Append gives.
func (k *KafkaSink) TryAppend(e event.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("eventsink: marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	key := fmt.Sprintf("%d", e.Tick)
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data})
}

// Close flushes and closes the underlying Kafka writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
