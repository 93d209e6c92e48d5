package telemetry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yannnico/rc-car-project/internal/codec"
)

func TestNewMQTTSinkValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  MQTTConfig
		wantErr bool
	}{
		{"valid", MQTTConfig{BrokerURL: "mqtt://localhost:1883", Topic: "rc/telemetry"}, false},
		{"missing broker", MQTTConfig{Topic: "rc/telemetry"}, true},
		{"missing scheme", MQTTConfig{BrokerURL: "localhost", Topic: "rc/telemetry"}, true},
		{"missing topic", MQTTConfig{BrokerURL: "mqtt://localhost:1883"}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewMQTTSink(test.config)
			if test.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMQTTSinkDefaults(t *testing.T) {
	sink, err := NewMQTTSink(MQTTConfig{BrokerURL: "tcp://broker:1883", Topic: "rc/telemetry"})
	require.NoError(t, err)

	assert.Equal(t, "mqtt", sink.Name())
	assert.Contains(t, sink.config.ClientID, "rc-relay-")
	assert.Equal(t, uint16(30), sink.config.KeepAlive)
	assert.Equal(t, 64, cap(sink.queue))
}

func TestMQTTSinkDropsWhenQueueFull(t *testing.T) {
	sink, err := NewMQTTSink(MQTTConfig{BrokerURL: "tcp://broker:1883", Topic: "rc/telemetry", QueueSize: 1})
	require.NoError(t, err)

	rec := Project(codec.Frame{0.25}, time.Unix(1, 0))
	require.NoError(t, sink.Publish(context.Background(), rec))
	assert.Equal(t, ErrSinkFull, sink.Publish(context.Background(), rec))

	var queued Record
	require.NoError(t, json.Unmarshal(<-sink.queue, &queued))
	assert.Equal(t, rec, queued)
}
