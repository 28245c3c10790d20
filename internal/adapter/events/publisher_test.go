package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/tldpricing-backend/internal/domain"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	return nil
}

func testEvent() domain.PriceChangeEvent {
	return domain.PriceChangeEvent{
		ID:          uuid.New(),
		Extension:   ".id",
		RowID:       uuid.New(),
		PromoActive: true,
		GroupLabel:  domain.PromoGroupLabel,
		Changes: []domain.CellChange{
			{Type: domain.PriceTypeRegister, Term: 2, Current: decimal.NewFromInt(60000)},
		},
		OccurredAt: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "pricing.events")
	assert.Error(t, err)

	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	publisher, err := NewKafkaPublisher([]string{"localhost:9092"}, "pricing.events")
	require.NoError(t, err)
	assert.NoError(t, publisher.Close())
}

func TestKafkaPublisher_Publish(t *testing.T) {
	writer := &recordingWriter{}
	publisher := &KafkaPublisher{writer: writer, topic: "pricing.events"}
	event := testEvent()

	require.NoError(t, publisher.Publish(context.Background(), event))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, []byte(".id"), msg.Key)
	assert.Equal(t, event.OccurredAt, msg.Time)

	var decoded domain.PriceChangeEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.True(t, decoded.Changes[0].Current.Equal(decimal.NewFromInt(60000)))
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	publisher := &KafkaPublisher{writer: &recordingWriter{err: errors.New("leader not available")}, topic: "pricing.events"}
	err := publisher.Publish(context.Background(), testEvent())
	assert.ErrorContains(t, err, "pricing.events")
}

func TestLoggingPublisher_Publish(t *testing.T) {
	var buf bytes.Buffer
	publisher := NewLoggingPublisher(zerolog.New(&buf))

	require.NoError(t, publisher.Publish(context.Background(), testEvent()))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "price changed", line["message"])
	assert.Equal(t, ".id", line["extension"])
	assert.Len(t, line["changes"], 1)
}
