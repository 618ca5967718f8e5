package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/soniam4/carbonfootprint-tracker/pkg/events"
)

func TestKafkaProducerRejectsUnknownTopic(t *testing.T) {
	p := NewKafkaProducer([]string{"localhost:9092"})
	err := p.WriteMessages(context.Background(), "fitness.events", kafka.Message{Value: []byte("x")})
	require.ErrorIs(t, err, ErrUnknownTopic)
	require.Empty(t, p.writers)
}

func TestKafkaProducerSkipsEmptyBatch(t *testing.T) {
	p := NewKafkaProducer([]string{"localhost:9092"})
	require.NoError(t, p.WriteMessages(context.Background(), events.TopicActivityEvents))
	require.Empty(t, p.writers)
}

func TestKafkaProducerReusesWriterPerTopic(t *testing.T) {
	p := NewKafkaProducer([]string{"localhost:9092"})

	first, err := p.writerForTopic(events.TopicActivityEvents)
	require.NoError(t, err)
	second, err := p.writerForTopic(events.TopicActivityEvents)
	require.NoError(t, err)
	require.Same(t, first, second)

	other, err := p.writerForTopic(events.TopicRecommendationEvents)
	require.NoError(t, err)
	require.NotSame(t, first, other)

	require.NoError(t, p.Close())
	require.Empty(t, p.writers)
}

func TestEventWriterHashesOnUserKey(t *testing.T) {
	w := newEventWriter([]string{"localhost:9092"}, events.TopicRecommendationEvents)
	require.Equal(t, events.TopicRecommendationEvents, w.Topic)
	require.IsType(t, &kafka.Hash{}, w.Balancer)
	require.Equal(t, kafka.RequireAll, w.RequiredAcks)
	require.False(t, w.AllowAutoTopicCreation)
}

func TestEventRecordCarriesRoutingHeaders(t *testing.T) {
	payload, err := json.Marshal(events.ActivityDeleted{ActivityID: "a-1", UserID: "user-7"})
	require.NoError(t, err)
	at := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

	record := eventRecord(Message{
		EventID:       12,
		AggregateID:   "a-1",
		EventType:     events.TypeActivityDeleted,
		Topic:         events.TopicActivityEvents,
		SchemaSubject: events.SchemaSubject(events.TopicActivityEvents),
		PartitionKey:  "user-7",
		Payload:       payload,
	}, 5, at)

	require.Equal(t, "user-7", string(record.Key))
	require.Equal(t, at, record.Time)
	require.Equal(t, []kafka.Header{
		{Key: events.HeaderEventType, Value: []byte(events.TypeActivityDeleted)},
		{Key: events.HeaderSchemaSubject, Value: []byte("carbon.activity_events-value")},
		{Key: events.HeaderAggregateID, Value: []byte("a-1")},
		{Key: events.HeaderEventID, Value: []byte("12")},
	}, record.Headers)
	require.Equal(t, byte(0), record.Value[0])
	require.Equal(t, uint32(5), binary.BigEndian.Uint32(record.Value[1:5]))
	require.JSONEq(t, string(payload), string(record.Value[5:]))
}
