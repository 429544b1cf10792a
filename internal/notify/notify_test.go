package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/adsync/internal/models"
)

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { f.closed = true; return nil }

func TestKafkaPublisherKeysByTenant(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{w: w, topic: "alerts"}

	a := models.Alert{ID: "a1", TenantID: "t1", CampaignID: "c1", Type: "LOW_ROAS", Severity: models.SeverityCritical}
	require.NoError(t, p.Publish(context.Background(), a))
	require.NoError(t, p.Close())

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "alerts", msg.Topic)
	assert.Equal(t, []byte("t1"), msg.Key)

	var ev AlertEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, EventAlertCreated, ev.Event)
	assert.Equal(t, "a1", ev.Alert.ID)
	assert.True(t, w.closed)
}

func TestNewKafkaPublisherNeedsBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "alerts")
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, p.Publish(context.Background(), models.Alert{ID: "a1", TenantID: "t1"}))
	assert.Contains(t, buf.String(), `"alert_id":"a1"`)
}
