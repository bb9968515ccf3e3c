package floodsub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dep2p/go-floodsub/internal/core/eventbus"
	"github.com/dep2p/go-floodsub/pkg/interfaces"
	"github.com/dep2p/go-floodsub/pkg/types"
)

// 内存网络错误
var (
	errNotConnected        = errors.New("memnet: not connected")
	errProtocolUnsupported = errors.New("memnet: protocol not supported")
)

// memNetwork 内存网络
//
// 节点之间的流由 net.Pipe 提供，连接/断开通过事件总线通知，
// 用于在单进程内搭建环形、菱形等多节点拓扑。
type memNetwork struct {
	mu    sync.Mutex
	hosts map[types.PeerID]*memHost
}

func newMemNetwork() *memNetwork {
	return &memNetwork{hosts: make(map[types.PeerID]*memHost)}
}

// addHost 在网络中创建一个主机
func (n *memNetwork) addHost(name string) *memHost {
	id, err := types.PeerIDFromBytes([]byte(name))
	if err != nil {
		panic(err)
	}
	bus := eventbus.NewBus()
	connEm, _ := bus.Emitter(new(types.EvtPeerConnected))
	discEm, _ := bus.Emitter(new(types.EvtPeerDisconnected))

	h := &memHost{
		net:      n,
		id:       id,
		bus:      bus,
		connEm:   connEm,
		discEm:   discEm,
		handlers: make(map[types.ProtocolID]interfaces.StreamHandler),
		conns:    make(map[types.PeerID]*memConn),
	}

	n.mu.Lock()
	n.hosts[id] = h
	n.mu.Unlock()
	return h
}

// connect 建立 a 与 b 之间的连接
func (n *memNetwork) connect(a, b *memHost) {
	c := &memConn{}
	a.mu.Lock()
	a.conns[b.id] = c
	a.mu.Unlock()
	b.mu.Lock()
	b.conns[a.id] = c
	b.mu.Unlock()

	_ = a.connEm.Emit(types.EvtPeerConnected{
		BaseEvent: types.NewBaseEvent(types.EventTypePeerConnected),
		PeerID:    b.id,
		Direction: types.DirOutbound,
	})
	_ = b.connEm.Emit(types.EvtPeerConnected{
		BaseEvent: types.NewBaseEvent(types.EventTypePeerConnected),
		PeerID:    a.id,
		Direction: types.DirInbound,
	})
}

// disconnect 断开 a 与 b 之间的连接，并关闭其上的所有流
func (n *memNetwork) disconnect(a, b *memHost) {
	a.mu.Lock()
	c := a.conns[b.id]
	delete(a.conns, b.id)
	a.mu.Unlock()
	b.mu.Lock()
	delete(b.conns, a.id)
	b.mu.Unlock()

	if c != nil {
		c.closeAll()
	}

	_ = a.discEm.Emit(types.EvtPeerDisconnected{
		BaseEvent: types.NewBaseEvent(types.EventTypePeerDisconnected),
		PeerID:    b.id,
		Reason:    types.DisconnectReasonLocal,
	})
	_ = b.discEm.Emit(types.EvtPeerDisconnected{
		BaseEvent: types.NewBaseEvent(types.EventTypePeerDisconnected),
		PeerID:    a.id,
		Reason:    types.DisconnectReasonGraceful,
	})
}

func (n *memNetwork) host(id types.PeerID) *memHost {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hosts[id]
}

// memConn 两个主机之间的一条连接
type memConn struct {
	mu      sync.Mutex
	streams []*memStream
	closed  bool
}

func (c *memConn) track(s ...*memStream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.streams = append(c.streams, s...)
	return true
}

func (c *memConn) closeAll() {
	c.mu.Lock()
	streams := c.streams
	c.streams = nil
	c.closed = true
	c.mu.Unlock()

	for _, s := range streams {
		_ = s.Close()
	}
}

// memHost 内存主机，实现 interfaces.Host
type memHost struct {
	net    *memNetwork
	id     types.PeerID
	bus    *eventbus.Bus
	connEm interfaces.Emitter
	discEm interfaces.Emitter

	mu       sync.Mutex
	handlers map[types.ProtocolID]interfaces.StreamHandler
	conns    map[types.PeerID]*memConn
}

var _ interfaces.Host = (*memHost)(nil)

func (h *memHost) ID() types.PeerID { return h.id }

func (h *memHost) Addrs() []string { return []string{"mem/" + h.id.String()} }

func (h *memHost) Connect(_ context.Context, addr string) (types.PeerID, error) {
	other := h.net.host(types.PeerID(addr))
	if other == nil {
		return "", fmt.Errorf("memnet: unknown host %s", addr)
	}
	h.net.connect(h, other)
	return other.id, nil
}

func (h *memHost) SetStreamHandler(pid types.ProtocolID, handler interfaces.StreamHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[pid] = handler
}

func (h *memHost) RemoveStreamHandler(pid types.ProtocolID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handlers, pid)
}

// NewStream 打开到 peer 的流，对端未注册协议时协商失败
func (h *memHost) NewStream(ctx context.Context, peer types.PeerID, pid types.ProtocolID) (interfaces.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	c := h.conns[peer]
	h.mu.Unlock()
	if c == nil {
		return nil, errNotConnected
	}

	remote := h.net.host(peer)
	remote.mu.Lock()
	handler := remote.handlers[pid]
	remote.mu.Unlock()
	if handler == nil {
		return nil, errProtocolUnsupported
	}

	local, far := net.Pipe()
	ls := &memStream{pipe: local, proto: pid, local: h.id, remote: peer}
	rs := &memStream{pipe: far, proto: pid, local: peer, remote: h.id}
	if !c.track(ls, rs) {
		_ = local.Close()
		_ = far.Close()
		return nil, errNotConnected
	}

	go handler(rs)
	return ls, nil
}

func (h *memHost) Peers() []types.PeerID {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.PeerID, 0, len(h.conns))
	for p := range h.conns {
		out = append(out, p)
	}
	return out
}

func (h *memHost) EventBus() interfaces.EventBus { return h.bus }

func (h *memHost) Close() error { return nil }

// memStream net.Pipe 上的流
type memStream struct {
	pipe   net.Conn
	proto  types.ProtocolID
	local  types.PeerID
	remote types.PeerID
}

var _ interfaces.Stream = (*memStream)(nil)

func (s *memStream) Read(p []byte) (int, error) { return s.pipe.Read(p) }

func (s *memStream) Write(p []byte) (int, error) { return s.pipe.Write(p) }

func (s *memStream) Close() error { return s.pipe.Close() }

func (s *memStream) Reset() error { return s.pipe.Close() }

func (s *memStream) SetDeadline(t time.Time) error { return s.pipe.SetDeadline(t) }

func (s *memStream) Protocol() types.ProtocolID { return s.proto }

func (s *memStream) Conn() interfaces.Connection { return memStreamConn{s} }

// memStreamConn 流所属的连接信息
type memStreamConn struct{ s *memStream }

func (c memStreamConn) LocalPeer() types.PeerID { return c.s.local }

func (c memStreamConn) RemotePeer() types.PeerID { return c.s.remote }

func (c memStreamConn) RemoteAddr() string { return "mem/" + c.s.remote.String() }
