package consumer

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/soniam4/carbonfootprint-tracker/pkg/events"
)

func framed(schemaID uint32, payload []byte) []byte {
	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], schemaID)
	copy(value[5:], payload)
	return value
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payload := []byte(`{"activity_id":"abc"}`)
	msg := kafka.Message{
		Topic:     events.TopicActivityEvents,
		Partition: 0,
		Offset:    10,
		Time:      time.Now().UTC(),
		Value:     framed(42, payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(events.TypeActivityRecorded)},
			{Key: "aggregate_id", Value: []byte("abc")},
			{Key: "schema_subject", Value: []byte(events.SchemaSubject(events.TopicActivityEvents))},
		},
	}

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{}
	before := testutil.ToFloat64(processedCounter.WithLabelValues(events.TopicActivityEvents, events.TypeActivityRecorded))

	err := NewProcessor(reader, handler).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, events.TypeActivityRecorded, handler.last.EventType)
	require.Equal(t, "abc", handler.last.AggregateID)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
	require.InDelta(t, before+1, testutil.ToFloat64(processedCounter.WithLabelValues(events.TopicActivityEvents, events.TypeActivityRecorded)), 0.0001)
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := kafka.Message{
		Topic:  events.TopicRecommendationEvents,
		Offset: 20,
		Value:  framed(99, []byte(`{"user_id":"u"}`)),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(events.TypeRecommendationAssigned)},
		},
	}

	var logs bytes.Buffer
	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{err: errors.New("boom")}

	err := NewProcessor(reader, handler, WithLogger(zerolog.New(&logs))).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
	require.Contains(t, logs.String(), "handler error")
}

func TestProcessorCommitsUndecodableMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{messages: []kafka.Message{
		{Topic: events.TopicActivityEvents, Value: []byte{0, 1}},
		{Topic: events.TopicActivityEvents, Value: framed(1, []byte(`{}`))},
		{Topic: events.TopicActivityEvents, Value: framed(1, []byte(`not json`)), Headers: []kafka.Header{{Key: "event_type", Value: []byte("x")}}},
	}}
	handler := &stubHandler{}
	before := testutil.ToFloat64(decodeErrorCounter.WithLabelValues(events.TopicActivityEvents))

	err := NewProcessor(reader, handler).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Zero(t, handler.calls)
	require.Equal(t, 3, reader.commitCalls)
	require.InDelta(t, before+3, testutil.ToFloat64(decodeErrorCounter.WithLabelValues(events.TopicActivityEvents)), 0.0001)
}

func TestProcessorContinuesAfterFetchError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		errs: []error{errors.New("broker not available")},
		messages: []kafka.Message{{
			Topic:   events.TopicActivityEvents,
			Value:   framed(1, []byte(`{}`)),
			Headers: []kafka.Header{{Key: "event_type", Value: []byte(events.TypeActivityDeleted)}},
		}},
	}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, handler.calls)
}

func TestProcessorRecordsCarbonMetrics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorded, err := json.Marshal(events.ActivityRecorded{ActivityID: "a-1", UserID: "u", CalculatedCO2: 1.2})
	require.NoError(t, err)
	assigned, err := json.Marshal(events.RecommendationAssigned{UserRecommendationID: "ur-1", UserID: "u", Category: "transport"})
	require.NoError(t, err)

	reader := &stubReader{messages: []kafka.Message{
		{
			Topic:   events.TopicActivityEvents,
			Value:   framed(1, recorded),
			Headers: []kafka.Header{{Key: events.HeaderEventType, Value: []byte(events.TypeActivityRecorded)}},
		},
		{
			Topic:   events.TopicRecommendationEvents,
			Value:   framed(2, assigned),
			Headers: []kafka.Header{{Key: events.HeaderEventType, Value: []byte(events.TypeRecommendationAssigned)}},
		},
	}}
	transport := assignmentsObservedCounter.WithLabelValues("transport")
	beforeCO2 := testutil.ToFloat64(co2ObservedCounter)
	beforeTransport := testutil.ToFloat64(transport)

	err = NewProcessor(reader, &stubHandler{}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 2, reader.commitCalls)
	require.InDelta(t, beforeCO2+1.2, testutil.ToFloat64(co2ObservedCounter), 1e-9)
	require.InDelta(t, beforeTransport+1, testutil.ToFloat64(transport), 1e-9)
}

func TestProcessorCountsHandlerErrorsByEventType(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{messages: []kafka.Message{{
		Topic:   events.TopicActivityEvents,
		Value:   framed(1, []byte(`{"activity_id":"a-2"}`)),
		Headers: []kafka.Header{{Key: events.HeaderEventType, Value: []byte(events.TypeActivityDeleted)}},
	}}}
	failures := handlerErrorCounter.WithLabelValues(events.TypeActivityDeleted)
	before := testutil.ToFloat64(failures)

	err := NewProcessor(reader, &stubHandler{err: errors.New("db down")}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.InDelta(t, before+1, testutil.ToFloat64(failures), 1e-9)
}

type stubReader struct {
	errs        []error
	messages    []kafka.Message
	index       int
	commitCalls int
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return kafka.Message{}, err
	}
	if r.index >= len(r.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}
