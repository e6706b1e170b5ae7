package remote

import (
	"context"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mochiAddress = "127.0.0.1:18831"
	testPrefix   = "test/irrigation"
)

func startBroker(t *testing.T) *mochi.Server {
	t.Helper()
	server := mochi.New(&mochi.Options{InlineClient: true})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))

	tcp := listeners.NewTCP(listeners.Config{
		ID:      "tcp",
		Type:    "tcp",
		Address: mochiAddress,
	})
	require.NoError(t, server.AddListener(tcp))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { server.Close() })
	return server
}

func newTestStore(t *testing.T) *MQTTStore {
	t.Helper()
	store, err := NewMQTTStore(MQTTOptions{
		Broker:         "tcp://" + mochiAddress,
		ClientID:       "irrigation-test",
		Prefix:         testPrefix,
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.Eventually(t, store.Connected, 5*time.Second, 10*time.Millisecond)
	return store
}

func TestMQTTStoreWithMochi(t *testing.T) {
	server := startBroker(t)
	ctx := context.Background()

	require.NoError(t, server.Publish(testPrefix+"/config/"+KeyDesiredHumidity, []byte("55"), true, 1))
	require.NoError(t, server.Publish(testPrefix+"/config/"+KeyIdleTime, []byte("soon"), true, 1))

	store := newTestStore(t)

	t.Run("PullRetainedConfig", func(t *testing.T) {
		require.Eventually(t, func() bool {
			f := store.Pull(ctx, KeyDesiredHumidity)
			return f[0].Err == nil && f[0].Value == 55
		}, 5*time.Second, 20*time.Millisecond)

		fields := store.Pull(ctx, ConfigKeys...)
		require.Len(t, fields, 3)
		assert.NoError(t, fields[0].Err)
		assert.ErrorIs(t, fields[1].Err, ErrNoValue)
		assert.ErrorIs(t, fields[2].Err, ErrType)
	})

	t.Run("PullSeesUpdates", func(t *testing.T) {
		require.NoError(t, server.Publish(testPrefix+"/config/"+KeyActiveTime, []byte("15"), true, 1))
		require.Eventually(t, func() bool {
			f := store.Pull(ctx, KeyActiveTime)
			return f[0].Err == nil && f[0].Value == 15
		}, 5*time.Second, 20*time.Millisecond)
	})

	t.Run("Push", func(t *testing.T) {
		received := make(chan packets.Packet, 8)
		require.NoError(t, server.Subscribe(testPrefix+"/+", 1, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
			received <- pk
		}))

		pushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		errs := store.Push(pushCtx,
			Entry{KeyRelay, Bool(true)},
			Entry{KeyRelativeHumidity, Float(37.5)},
		)
		require.Len(t, errs, 2)
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		got := map[string]string{}
		timeout := time.After(5 * time.Second)
		for len(got) < 2 {
			select {
			case pk := <-received:
				got[pk.TopicName] = string(pk.Payload)
			case <-timeout:
				t.Fatalf("timed out waiting for publishes, got %v", got)
			}
		}
		assert.Equal(t, "true", got[testPrefix+"/relay"])
		assert.Equal(t, "37.5", got[testPrefix+"/relativeHumidity"])
	})
}

func TestMQTTStoreNotConnected(t *testing.T) {
	store, err := NewMQTTStore(MQTTOptions{
		Broker:         "tcp://127.0.0.1:1", // nothing listens here
		ClientID:       "irrigation-offline",
		Prefix:         testPrefix,
		ConnectTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err, "connect retries in the background instead of failing")
	t.Cleanup(func() { store.Close() })

	fields := store.Pull(context.Background(), ConfigKeys...)
	for _, f := range fields {
		assert.ErrorIs(t, f.Err, ErrNotConnected)
	}
	errs := store.Push(context.Background(), Entry{KeyRelay, Bool(false)})
	assert.ErrorIs(t, errs[0], ErrNotConnected)
}
