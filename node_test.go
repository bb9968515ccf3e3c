package floodsub

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-floodsub/config"
	"github.com/dep2p/go-floodsub/pkg/types"
)

func startNode(t *testing.T, opts ...Option) *Node {
	t.Helper()

	opts = append([]Option{WithListenAddr("127.0.0.1:0")}, opts...)
	n, err := New(opts...)
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestNode_PublishSubscribe(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := startNode(t, WithRegisterer(reg))
	b := startNode(t, WithKnownPeers(a.FullAddr()))

	assert.Equal(t, StateRunning, a.State())
	assert.Contains(t, b.Host().Peers(), a.ID())

	sub, err := a.Subscribe("news")
	require.NoError(t, err)
	defer sub.Cancel()

	require.Eventually(t, func() bool {
		return len(b.PubSub().ListPeers("news")) == 1
	}, 5*time.Second, 10*time.Millisecond)

	id, err := b.Publish([]string{"news"}, []byte("hello"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "news", got.Topic)
	assert.Equal(t, id, got.Message.ID())
	assert.Equal(t, b.ID(), got.Message.From)
	assert.Equal(t, []byte("hello"), got.Message.Data)

	assert.Equal(t, 1.0, counterValue(t, reg, "floodsub_messages_delivered_total"))
}

// counterValue 从注册表中读取计数器的值
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name && len(f.GetMetric()) > 0 {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestNode_ConnectPeers(t *testing.T) {
	a := startNode(t)
	b := startNode(t)
	c := startNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	peers, err := c.ConnectPeers(ctx, []string{a.FullAddr(), b.FullAddr(), "127.0.0.1:1"})
	assert.Error(t, err)
	assert.ElementsMatch(t, []types.PeerID{a.ID(), b.ID()}, peers)
}

func TestNode_Lifecycle(t *testing.T) {
	n, err := New(WithListenAddr(""))
	require.NoError(t, err)
	assert.Equal(t, StateIdle, n.State())

	_, err = n.Subscribe("x")
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, n.Start(context.Background()))
	assert.ErrorIs(t, n.Start(context.Background()), ErrAlreadyStarted)
	assert.Empty(t, n.Addrs())

	require.NoError(t, n.Close())
	require.NoError(t, n.Close())
	assert.Equal(t, StateClosed, n.State())

	assert.ErrorIs(t, n.Start(context.Background()), ErrNodeClosed)
	_, err = n.Publish([]string{"x"}, nil)
	assert.ErrorIs(t, err, ErrNodeClosed)
	_, err = n.Connect(context.Background(), "127.0.0.1:1")
	assert.ErrorIs(t, err, ErrNodeClosed)
}

func TestNode_InvalidConfig(t *testing.T) {
	_, err := New(WithQueueFullPolicy("block"))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = New(WithConfig(nil))
	assert.Error(t, err)
}

func TestNode_PersistentIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")

	first, err := New(WithListenAddr(""), WithIdentityFile(path))
	require.NoError(t, err)
	second, err := New(WithListenAddr(""), WithIdentityFile(path))
	require.NoError(t, err)

	assert.Equal(t, first.ID(), second.ID())
}
