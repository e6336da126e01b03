package producer

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"deepname/internal/platform/config"
)

func TestNewRequiresBrokers(t *testing.T) {
	_, err := New(config.KafkaConfig{Topic: "deepname.events"}, nil)
	require.Error(t, err)
}

func TestToRecord(t *testing.T) {
	r := toRecord(&Message{
		Key:     []byte("0xabc"),
		Value:   []byte(`{}`),
		Headers: map[string]string{"event_type": "mint_submitted"},
	})

	assert.Empty(t, r.Topic, "left for the client's default topic")
	assert.Equal(t, []byte("0xabc"), r.Key)
	assert.Equal(t, []kgo.RecordHeader{{Key: "event_type", Value: []byte("mint_submitted")}}, r.Headers)
}

func TestDeliveryHookCountsOutcomes(t *testing.T) {
	topic := "deliveryhook-test"
	hook := deliveryHook{}

	hook.OnProduceRecordUnbuffered(&kgo.Record{Topic: topic}, nil)
	hook.OnProduceRecordUnbuffered(&kgo.Record{Topic: topic}, nil)
	hook.OnProduceRecordUnbuffered(&kgo.Record{Topic: topic}, errors.New("record timed out"))

	assert.Equal(t, 2.0, testutil.ToFloat64(deliveries.WithLabelValues(topic, "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(deliveries.WithLabelValues(topic, "failed")))
}

func TestNoopProducer(t *testing.T) {
	var p Publisher = NoopProducer{}
	assert.NoError(t, p.Produce(context.Background(), &Message{}))
	assert.NoError(t, p.ProduceAsync(&Message{}))
	assert.True(t, p.Healthy(context.Background()))
	assert.NoError(t, p.Close())
}
