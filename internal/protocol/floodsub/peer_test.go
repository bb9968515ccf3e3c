package floodsub

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dep2p/go-floodsub/pkg/interfaces"
	"github.com/dep2p/go-floodsub/pkg/types"
)

// recordingSink 记录处理器上报的事件
type recordingSink struct {
	active      chan *peerHandler
	rpcs        chan *RPC
	closed      chan error
	closedCount atomic.Int32
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		active: make(chan *peerHandler, 4),
		rpcs:   make(chan *RPC, 16),
		closed: make(chan error, 4),
	}
}

func (s *recordingSink) handlerActive(h *peerHandler) { s.active <- h }

func (s *recordingSink) handlerRPC(_ *peerHandler, rpc *RPC) bool {
	s.rpcs <- rpc
	return true
}

func (s *recordingSink) handlerClosed(_ *peerHandler, reason error) {
	s.closedCount.Add(1)
	s.closed <- reason
}

func waitReason(t *testing.T, sink *recordingSink) error {
	t.Helper()
	select {
	case reason := <-sink.closed:
		return reason
	case <-time.After(2 * time.Second):
		t.Fatal("handler not closed")
		return nil
	}
}

// peerPair 两台已连接的内存主机：a 上运行被测处理器，b 上收集流
type peerPair struct {
	a, b    *memHost
	streams chan interfaces.Stream
}

func newPeerPair(t *testing.T) *peerPair {
	t.Helper()
	net := newMemNetwork()
	p := &peerPair{
		a:       net.addHost("peer-a"),
		b:       net.addHost("peer-b"),
		streams: make(chan interfaces.Stream, 4),
	}
	p.b.SetStreamHandler(ProtocolID, func(s interfaces.Stream) { p.streams <- s })
	net.connect(p.a, p.b)
	return p
}

func (p *peerPair) handler(t *testing.T, sink peerSink, opts ...Option) *peerHandler {
	t.Helper()
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	h := newPeerHandler(context.Background(), p.b.ID(), p.a, sink, cfg, newMetrics(nil))
	t.Cleanup(func() { h.close(ErrClosed) })
	return h
}

func (p *peerPair) remoteStream(t *testing.T) interfaces.Stream {
	t.Helper()
	select {
	case s := <-p.streams:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no outbound stream opened")
		return nil
	}
}

func TestPeerHandler_Lifecycle(t *testing.T) {
	p := newPeerPair(t)
	sink := newRecordingSink()
	h := p.handler(t, sink)

	assert.Equal(t, StateIdle, h.State())
	h.start()

	remote := p.remoteStream(t)
	select {
	case got := <-sink.active:
		assert.Same(t, h, got)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not active")
	}
	assert.Equal(t, StateActive, h.State())

	// 对端关闭出站流
	require.NoError(t, remote.Close())
	assert.ErrorIs(t, waitReason(t, sink), ErrPeerClosedRemotely)
	assert.Equal(t, StateClosed, h.State())

	// 重复关闭不再上报
	h.close(ErrClosed)
	assert.Equal(t, int32(1), sink.closedCount.Load())
}

// TestPeerHandler_PreservesOrder 协商期间排队的帧在激活后按提交顺序写出
func TestPeerHandler_PreservesOrder(t *testing.T) {
	p := newPeerPair(t)
	sink := newRecordingSink()
	h := p.handler(t, sink)

	var want []*RPC
	for i := 0; i < 10; i++ {
		rpc := &RPC{Subscriptions: []SubOpts{{Subscribe: i%2 == 0, TopicID: string(rune('a' + i))}}}
		frame, err := EncodeFrame(rpc, 0)
		require.NoError(t, err)
		require.True(t, h.send(frame))
		want = append(want, rpc)
	}

	h.start()
	fr := newFrameReader(p.remoteStream(t), 0)
	for _, rpc := range want {
		got, err := fr.ReadRPC()
		require.NoError(t, err)
		assert.Equal(t, rpc, got)
	}
}

func TestPeerHandler_MalformedInboundCloses(t *testing.T) {
	p := newPeerPair(t)
	sink := newRecordingSink()
	h := p.handler(t, sink)
	p.a.SetStreamHandler(ProtocolID, func(s interfaces.Stream) { h.attachInbound(s) })
	h.start()
	p.remoteStream(t)

	s, err := p.b.NewStream(context.Background(), p.a.ID(), ProtocolID)
	require.NoError(t, err)

	// 先发一帧合法的订阅，再发一帧非法字段号
	good, err := EncodeFrame(&RPC{Subscriptions: []SubOpts{{Subscribe: true, TopicID: "news"}}}, 0)
	require.NoError(t, err)
	go func() {
		_, _ = s.Write(good)
		_, _ = s.Write([]byte{0x01, 0x00})
	}()

	select {
	case rpc := <-sink.rpcs:
		assert.Equal(t, "news", rpc.Subscriptions[0].TopicID)
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame not emitted")
	}

	assert.ErrorIs(t, waitReason(t, sink), ErrMalformed)
	assert.Equal(t, StateClosed, h.State())
}

func TestPeerHandler_OversizedInboundCloses(t *testing.T) {
	p := newPeerPair(t)
	sink := newRecordingSink()
	h := p.handler(t, sink, WithMaxMessageSize(64))
	p.a.SetStreamHandler(ProtocolID, func(s interfaces.Stream) { h.attachInbound(s) })
	h.start()
	p.remoteStream(t)

	s, err := p.b.NewStream(context.Background(), p.a.ID(), ProtocolID)
	require.NoError(t, err)

	big, err := EncodeFrame(&RPC{Publish: []*Message{{From: []byte("x"), Data: make([]byte, 256)}}}, 0)
	require.NoError(t, err)
	go func() { _, _ = s.Write(big) }()

	assert.ErrorIs(t, waitReason(t, sink), ErrOversizedFrame)
}

// TestPeerHandler_CloseOnce 多次、并发关闭只上报一次
func TestPeerHandler_CloseOnce(t *testing.T) {
	p := newPeerPair(t)
	sink := newRecordingSink()
	h := p.handler(t, sink)
	h.start()
	p.remoteStream(t)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			h.close(ErrIoFailure)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	assert.ErrorIs(t, waitReason(t, sink), ErrIoFailure)
	assert.Equal(t, int32(1), sink.closedCount.Load())

	// Closed 是终态
	h.start()
	assert.Equal(t, StateClosed, h.State())
	assert.False(t, h.send([]byte{0x00}))
}

func TestPeerHandler_AttachAfterCloseResets(t *testing.T) {
	p := newPeerPair(t)
	sink := newRecordingSink()
	h := p.handler(t, sink)
	h.close(ErrPeerDisconnected)
	waitReason(t, sink)

	p.a.SetStreamHandler(ProtocolID, func(s interfaces.Stream) {
		assert.False(t, h.attachInbound(s))
	})
	s, err := p.b.NewStream(context.Background(), p.a.ID(), ProtocolID)
	require.NoError(t, err)

	_, err = s.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestPeerHandler_NegotiationUnsupported(t *testing.T) {
	p := newPeerPair(t)
	p.b.RemoveStreamHandler(ProtocolID)

	sink := newRecordingSink()
	h := p.handler(t, sink)
	h.start()

	assert.ErrorIs(t, waitReason(t, sink), ErrNegotiationFailed)
	assert.Equal(t, StateClosed, h.State())
}

// TestPeerHandler_NegotiationTimeout 协商超时按注入的时钟计量
func TestPeerHandler_NegotiationTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	host := NewMockHost(ctrl)
	mock := clock.NewMock()

	entered := make(chan struct{})
	host.EXPECT().
		NewStream(gomock.Any(), types.PeerID("peer-b"), ProtocolID).
		DoAndReturn(func(ctx context.Context, _ types.PeerID, _ types.ProtocolID) (interfaces.Stream, error) {
			close(entered)
			<-ctx.Done()
			return nil, ctx.Err()
		})

	sink := newRecordingSink()
	cfg := DefaultConfig()
	WithClock(mock)(cfg)
	WithNegotiationTimeout(3 * time.Second)(cfg)
	m := newMetrics(nil)

	h := newPeerHandler(context.Background(), "peer-b", host, sink, cfg, m)
	h.start()
	<-entered
	assert.Equal(t, StateNegotiating, h.State())

	mock.Add(2 * time.Second)
	select {
	case <-sink.closed:
		t.Fatal("closed before timeout")
	case <-time.After(20 * time.Millisecond):
	}

	mock.Add(time.Second)
	assert.ErrorIs(t, waitReason(t, sink), ErrNegotiationFailed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.peerClosed.WithLabelValues("negotiation_failed")))
}

func TestPeerHandler_DropPolicyMetrics(t *testing.T) {
	p := newPeerPair(t)
	sink := newRecordingSink()
	h := p.handler(t, sink, WithOutboundQueueSize(2), WithQueueFullPolicy(DropNewest))

	// 未启动：帧全部留在队列中
	assert.True(t, h.send([]byte{0x00}))
	assert.True(t, h.send([]byte{0x00}))
	assert.False(t, h.send([]byte{0x00}))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.framesDropped.WithLabelValues(dropQueueFull)))

	h.close(ErrClosed)
	waitReason(t, sink)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.framesDropped.WithLabelValues(dropQueueClosed)))
}

func TestPeerState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "negotiating", StateNegotiating.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "closed", StateClosed.String())
}
