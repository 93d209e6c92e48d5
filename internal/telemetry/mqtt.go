package telemetry

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrSinkFull is returned when the MQTT queue cannot take another record.
var ErrSinkFull = errors.New("SINK_FULL")

// MQTTConfig addresses the broker mirror.
type MQTTConfig struct {
	BrokerURL      string
	Topic          string
	ClientID       string
	KeepAlive      uint16
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	QueueSize      int
}

// MQTTSink mirrors records to a broker topic at QoS 0. Publish never blocks;
// the connection and publishing live on the goroutine started by Run.
type MQTTSink struct {
	config MQTTConfig
	broker *url.URL
	queue  chan []byte
}

// NewMQTTSink validates config and applies defaults.
func NewMQTTSink(config MQTTConfig) (*MQTTSink, error) {
	if config.BrokerURL == "" {
		return nil, errors.New("mqtt broker url is required")
	}
	broker, err := url.Parse(config.BrokerURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid mqtt broker url %q", config.BrokerURL)
	}
	if broker.Scheme == "" || broker.Host == "" {
		return nil, errors.Errorf("invalid mqtt broker url %q", config.BrokerURL)
	}
	if config.Topic == "" {
		return nil, errors.New("mqtt topic is required")
	}
	if config.ClientID == "" {
		config.ClientID = "rc-relay-" + uuid.NewString()[:8]
	}
	if config.KeepAlive == 0 {
		config.KeepAlive = 30
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 5 * time.Second
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = time.Second
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}

	return &MQTTSink{
		config: config,
		broker: broker,
		queue:  make(chan []byte, config.QueueSize),
	}, nil
}

// Name identifies the sink in metrics and logs.
func (m *MQTTSink) Name() string { return "mqtt" }

// Publish queues rec for the broker, dropping it when the queue is full.
func (m *MQTTSink) Publish(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to encode record")
	}
	select {
	case m.queue <- payload:
		return nil
	default:
		return ErrSinkFull
	}
}

// Run connects to the broker and publishes queued records until ctx is
// cancelled. Reconnects are handled by autopaho.
func (m *MQTTSink) Run(ctx context.Context) error {
	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{m.broker},
		KeepAlive:                     m.config.KeepAlive,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         0,
		ReconnectBackoff:              autopaho.NewConstantBackoff(3 * time.Second),
		ConnectTimeout:                m.config.ConnectTimeout,
		ClientConfig: paho.ClientConfig{
			ClientID: m.config.ClientID,
			OnClientError: func(err error) {
				log.WithField("err", err).Warn("mqtt client error")
			},
		},
		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			log.WithField("broker", m.broker.String()).Info("mqtt telemetry mirror connected")
		},
		OnConnectError: func(err error) {
			log.WithField("err", err).Debug("mqtt connect attempt failed")
		},
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to start mqtt connection")
	}

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			_ = cm.Disconnect(shutdownCtx)
			cancel()
			log.Info("mqtt telemetry mirror stopped")
			return nil
		case payload := <-m.queue:
			m.publish(ctx, cm, payload)
		}
	}
}

func (m *MQTTSink) publish(ctx context.Context, cm *autopaho.ConnectionManager, payload []byte) {
	pubCtx, cancel := context.WithTimeout(ctx, m.config.PublishTimeout)
	defer cancel()

	_, err := cm.Publish(pubCtx, &paho.Publish{
		Topic:   m.config.Topic,
		QoS:     0,
		Payload: payload,
	})
	if err != nil {
		log.WithField("err", err).Debug("mqtt publish failed")
	}
}
