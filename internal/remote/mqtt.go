package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultPrefix is the topic prefix for the controller's keys.
const DefaultPrefix = "garden/irrigation"

// OfflinePayload is published as the broker-side last will on KeyStatus.
const OfflinePayload = `{"status":{"event":"OFFLINE"}}`

// MQTTOptions configures an MQTTStore.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// Prefix is prepended to every key. Pulled keys live under Prefix/config.
	Prefix string
	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration
}

// MQTTStore maps the key-value contract onto retained MQTT topics.
//
// Pushed key K is published retained to Prefix/K (history samples are not
// retained). Pulled key K is read from the retained value of
// Prefix/config/K, which the store tracks with a subscription.
type MQTTStore struct {
	client paho.Client
	prefix string

	mu     sync.RWMutex
	values map[string][]byte
}

// NewMQTTStore connects to the broker and subscribes to the config subtree.
// The client reconnects and resubscribes on its own after a lost connection.
func NewMQTTStore(opts MQTTOptions) (*MQTTStore, error) {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	s := &MQTTStore{
		prefix: strings.TrimSuffix(opts.Prefix, "/"),
		values: make(map[string][]byte),
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(s.topic(KeyStatus), OfflinePayload, 1, true).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			slog.Warn("mqtt: connection lost", "err", err)
		})

	s.client = paho.NewClient(co)
	token := s.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		// ConnectRetry keeps trying in the background.
		slog.Warn("mqtt: initial connect timed out, retrying in background", "broker", opts.Broker)
		return s, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return s, nil
}

func (s *MQTTStore) topic(key string) string {
	return s.prefix + "/" + key
}

func (s *MQTTStore) configTopic(key string) string {
	return s.prefix + "/config/" + key
}

func (s *MQTTStore) onConnect(c paho.Client) {
	slog.Info("mqtt: connected")
	filter := s.prefix + "/config/#"
	token := c.Subscribe(filter, 1, s.onConfig)
	go func() {
		if !token.WaitTimeout(10 * time.Second) {
			slog.Warn("mqtt: subscribe timeout", "filter", filter)
			return
		}
		if err := token.Error(); err != nil {
			slog.Warn("mqtt: subscribe failed", "filter", filter, "err", err)
		}
	}()
}

func (s *MQTTStore) onConfig(_ paho.Client, m paho.Message) {
	key := strings.TrimPrefix(m.Topic(), s.prefix+"/config/")
	s.mu.Lock()
	if len(m.Payload()) == 0 {
		// An empty retained message deletes the key.
		delete(s.values, key)
	} else {
		s.values[key] = append([]byte(nil), m.Payload()...)
	}
	s.mu.Unlock()
}

// Pull returns the latest retained value of each config key.
func (s *MQTTStore) Pull(ctx context.Context, keys ...string) []Field {
	fields := make([]Field, len(keys))
	connected := s.Connected()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, k := range keys {
		fields[i].Key = k
		if !connected {
			fields[i].Err = ErrNotConnected
			continue
		}
		payload, ok := s.values[k]
		if !ok {
			fields[i].Err = fmt.Errorf("%s: %w", s.configTopic(k), ErrNoValue)
			continue
		}
		v, err := ParseInt(payload)
		if err != nil {
			fields[i].Err = fmt.Errorf("%s: %w", s.configTopic(k), err)
			continue
		}
		fields[i].Value = v
	}
	return fields
}

// Push publishes each entry with QoS 1 and waits for the broker's ack.
func (s *MQTTStore) Push(ctx context.Context, entries ...Entry) []error {
	errs := make([]error, len(entries))
	if !s.Connected() {
		for i := range errs {
			errs[i] = ErrNotConnected
		}
		return errs
	}
	for i, e := range entries {
		retained := !strings.HasPrefix(e.Key, HistoryPrefix+"/")
		token := s.client.Publish(s.topic(e.Key), 1, retained, e.Value.Encode())
		select {
		case <-token.Done():
			if err := token.Error(); err != nil {
				errs[i] = fmt.Errorf("publish %s: %w", e.Key, err)
			}
		case <-ctx.Done():
			errs[i] = fmt.Errorf("publish %s: %w", e.Key, ErrTimeout)
		}
	}
	return errs
}

// Connected reports whether the MQTT session is currently up.
func (s *MQTTStore) Connected() bool {
	return s.client.IsConnectionOpen()
}

// Close publishes nothing further and disconnects from the broker.
func (s *MQTTStore) Close() error {
	s.client.Disconnect(1000) // 1 second timeout
	return nil
}
