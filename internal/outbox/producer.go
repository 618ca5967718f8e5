package outbox

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/soniam4/carbonfootprint-tracker/pkg/events"
)

// ErrUnknownTopic is returned for topics no carbon tracker event is routed to.
var ErrUnknownTopic = errors.New("unknown event topic")

// KafkaProducer publishes carbon tracker events with one lazily created writer
// per event topic. Records are hashed on their key, the user id, so a user's
// events keep their order within a topic.
type KafkaProducer struct {
	brokers []string
	topics  map[string]struct{}

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates a producer for the topics listed in events.Topics.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	topics := make(map[string]struct{})
	for _, topic := range events.Topics() {
		topics[topic] = struct{}{}
	}
	return &KafkaProducer{
		brokers: brokers,
		topics:  topics,
		writers: make(map[string]*kafka.Writer),
	}
}

// WriteMessages publishes msgs to topic.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	writer, err := p.writerForTopic(topic)
	if err != nil {
		return err
	}
	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d events to %s: %w", len(msgs), topic, err)
	}
	return nil
}

func (p *KafkaProducer) writerForTopic(topic string) (*kafka.Writer, error) {
	if _, ok := p.topics[topic]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if writer, ok := p.writers[topic]; ok {
		return writer, nil
	}
	writer := newEventWriter(p.brokers, topic)
	p.writers[topic] = writer
	return writer, nil
}

// Close releases all writers.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer %s: %w", topic, err))
		}
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}

func newEventWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: false,
	}
}

// eventRecord frames an outbox row as a Kafka record keyed by its partition key.
func eventRecord(msg Message, schemaID int, at time.Time) kafka.Message {
	return kafka.Message{
		Key:   []byte(msg.PartitionKey),
		Value: encodeWireFormat(schemaID, msg.Payload),
		Time:  at,
		Headers: []kafka.Header{
			{Key: events.HeaderEventType, Value: []byte(msg.EventType)},
			{Key: events.HeaderSchemaSubject, Value: []byte(msg.SchemaSubject)},
			{Key: events.HeaderAggregateID, Value: []byte(msg.AggregateID)},
			{Key: events.HeaderEventID, Value: []byte(strconv.FormatInt(msg.EventID, 10))},
		},
	}
}

// encodeWireFormat applies Confluent framing: magic byte 0, then the
// big-endian schema id, then the JSON payload.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
