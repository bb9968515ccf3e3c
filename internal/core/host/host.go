package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tec "github.com/jbenet/go-temp-err-catcher"
	"github.com/libp2p/go-yamux/v5"
	mss "github.com/multiformats/go-multistream"
	"go.uber.org/multierr"

	"github.com/dep2p/go-floodsub/internal/core/identity"
	pkgif "github.com/dep2p/go-floodsub/pkg/interfaces"
	"github.com/dep2p/go-floodsub/pkg/lib/log"
	"github.com/dep2p/go-floodsub/pkg/types"
)

var logger = log.Logger("core/host")

var (
	// ErrClosed Host 已关闭
	ErrClosed = errors.New("host: closed")

	// ErrNotConnected 与目标节点没有连接
	ErrNotConnected = errors.New("host: not connected")

	// ErrInvalidAddr 无效的拨号地址
	ErrInvalidAddr = errors.New("host: invalid address")

	// ErrAlreadyListening 已经在监听
	ErrAlreadyListening = errors.New("host: already listening")
)

// Host P2P 主机实现
type Host struct {
	ctx       context.Context
	ctxCancel context.CancelFunc

	id     *identity.Identity
	config *Config
	bus    pkgif.EventBus

	// multistream-select muxer 用于入站协议协商
	mux *mss.MultistreamMuxer[types.ProtocolID]

	emConnected    pkgif.Emitter
	emDisconnected pkgif.Emitter

	mu       sync.Mutex
	listener net.Listener
	// 同一节点可能有多条连接，只在首条建立和末条断开时发布事件
	conns map[types.PeerID][]*peerConn

	closed   atomic.Bool
	refCount sync.WaitGroup
}

var _ pkgif.Host = (*Host)(nil)

// New 创建新的 Host
func New(id *identity.Identity, bus pkgif.EventBus, opts ...Option) (*Host, error) {
	if id == nil {
		return nil, errors.New("host: identity is required")
	}
	if bus == nil {
		return nil, errors.New("host: event bus is required")
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	emConnected, err := bus.Emitter(new(types.EvtPeerConnected))
	if err != nil {
		return nil, fmt.Errorf("host: connected emitter: %w", err)
	}
	emDisconnected, err := bus.Emitter(new(types.EvtPeerDisconnected))
	if err != nil {
		_ = emConnected.Close()
		return nil, fmt.Errorf("host: disconnected emitter: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		ctx:            ctx,
		ctxCancel:      cancel,
		id:             id,
		config:         cfg,
		bus:            bus,
		mux:            mss.NewMultistreamMuxer[types.ProtocolID](),
		emConnected:    emConnected,
		emDisconnected: emDisconnected,
		conns:          make(map[types.PeerID][]*peerConn),
	}, nil
}

// ID 返回节点 ID
func (h *Host) ID() types.PeerID {
	return h.id.PeerID()
}

// Addrs 返回监听地址列表
func (h *Host) Addrs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listener == nil {
		return nil
	}
	return []string{h.listener.Addr().String()}
}

// FullAddr 返回可直接用于 Connect 的地址（peerID@host:port）
func (h *Host) FullAddr() string {
	addrs := h.Addrs()
	if len(addrs) == 0 {
		return ""
	}
	return h.ID().String() + "@" + addrs[0]
}

// EventBus 返回事件总线
func (h *Host) EventBus() pkgif.EventBus {
	return h.bus
}

// Start 按配置开始监听
func (h *Host) Start(_ context.Context) error {
	if h.config.ListenAddr == "" {
		return nil
	}
	return h.Listen(h.config.ListenAddr)
}

// Listen 监听指定地址并启动接受循环
func (h *Host) Listen(addr string) error {
	if h.closed.Load() {
		return ErrClosed
	}

	h.mu.Lock()
	if h.listener != nil {
		h.mu.Unlock()
		return ErrAlreadyListening
	}
	var lc net.ListenConfig
	l, err := lc.Listen(h.ctx, "tcp", addr)
	if err != nil {
		h.mu.Unlock()
		return fmt.Errorf("host: listen %s: %w", addr, err)
	}
	h.listener = l
	h.mu.Unlock()

	logger.Info("监听成功", "addr", l.Addr().String(), "peer", h.ID().ShortString())

	h.refCount.Add(1)
	go h.acceptLoop(l)
	return nil
}

// acceptLoop 接受入站连接，临时错误退避后重试
func (h *Host) acceptLoop(l net.Listener) {
	defer h.refCount.Done()

	var catcher tec.TempErrCatcher
	for {
		raw, err := l.Accept()
		if err != nil {
			if catcher.IsTemporary(err) {
				logger.Debug("接受连接临时失败", "error", err)
				continue
			}
			if !h.closed.Load() {
				logger.Warn("监听循环退出", "error", err)
			}
			return
		}
		catcher.Reset()

		h.refCount.Add(1)
		go func() {
			defer h.refCount.Done()
			if _, err := h.handshakeAndAdd(raw, types.EmptyPeerID, true); err != nil {
				logger.Debug("入站连接升级失败", "remote", raw.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

// parseAddr 解析拨号地址，支持 "host:port" 和 "peerID@host:port"
func parseAddr(addr string) (types.PeerID, string, error) {
	expected := types.EmptyPeerID
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		pid, err := types.ParsePeerID(addr[:at])
		if err != nil {
			return types.EmptyPeerID, "", fmt.Errorf("%w: %v", ErrInvalidAddr, err)
		}
		expected = pid
		addr = addr[at+1:]
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return types.EmptyPeerID, "", fmt.Errorf("%w: %v", ErrInvalidAddr, err)
	}
	return expected, addr, nil
}

// Connect 连接到指定地址，返回对端 PeerID
//
// 地址携带 PeerID 且已与该节点连接时直接返回，不重复拨号。
func (h *Host) Connect(ctx context.Context, addr string) (types.PeerID, error) {
	if h.closed.Load() {
		return types.EmptyPeerID, ErrClosed
	}

	expected, hostport, err := parseAddr(addr)
	if err != nil {
		return types.EmptyPeerID, err
	}
	if expected == h.ID() {
		return types.EmptyPeerID, ErrSelfDial
	}
	if expected != types.EmptyPeerID && h.connected(expected) {
		return expected, nil
	}

	dialer := net.Dialer{Timeout: h.config.DialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return types.EmptyPeerID, fmt.Errorf("host: dial %s: %w", hostport, err)
	}

	remote, err := h.handshakeAndAdd(raw, expected, false)
	if err != nil {
		return types.EmptyPeerID, err
	}
	logger.Info("连接节点成功", "peer", remote.ShortString(), "addr", hostport)
	return remote, nil
}

// handshakeAndAdd 升级原始连接并登记
func (h *Host) handshakeAndAdd(raw net.Conn, expected types.PeerID, inbound bool) (types.PeerID, error) {
	c, err := h.upgradeConn(raw, expected, inbound)
	if err != nil {
		return types.EmptyPeerID, err
	}
	if err := h.addConn(c); err != nil {
		_ = c.close()
		return types.EmptyPeerID, err
	}
	return c.remote, nil
}

// addConn 登记连接并启动入站流接受循环
func (h *Host) addConn(c *peerConn) error {
	h.mu.Lock()
	if h.closed.Load() {
		h.mu.Unlock()
		return ErrClosed
	}
	first := len(h.conns[c.remote]) == 0
	h.conns[c.remote] = append(h.conns[c.remote], c)
	h.refCount.Add(1)
	h.mu.Unlock()

	if first {
		dir := types.DirOutbound
		if c.inbound {
			dir = types.DirInbound
		}
		_ = h.emConnected.Emit(types.EvtPeerConnected{
			BaseEvent: types.NewBaseEvent(types.EventTypePeerConnected),
			PeerID:    c.remote,
			Direction: dir,
		})
	}

	go h.serveConn(c)
	return nil
}

// serveConn 接受入站流直到会话结束，然后注销连接
func (h *Host) serveConn(c *peerConn) {
	defer h.refCount.Done()

	var cause error
	for {
		s, err := c.acceptStream()
		if err != nil {
			cause = err
			break
		}
		h.refCount.Add(1)
		go func() {
			defer h.refCount.Done()
			h.handleInboundStream(s)
		}()
	}
	_ = c.close()
	h.removeConn(c, cause)
}

// removeConn 注销连接，最后一条连接断开时发布断开事件
func (h *Host) removeConn(c *peerConn, cause error) {
	h.mu.Lock()
	list := h.conns[c.remote]
	for i, pc := range list {
		if pc == c {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(h.conns, c.remote)
	} else {
		h.conns[c.remote] = list
	}
	last := len(list) == 0
	h.mu.Unlock()

	if !last {
		return
	}

	reason := types.DisconnectReasonGraceful
	switch {
	case h.closed.Load():
		reason = types.DisconnectReasonLocal
	case cause != nil && !errors.Is(cause, io.EOF) && !isSessionShutdown(cause):
		reason = types.DisconnectReasonError
	}
	logger.Info("节点已断开", "peer", c.remote.ShortString(), "reason", reason.String())

	evt := types.EvtPeerDisconnected{
		BaseEvent: types.NewBaseEvent(types.EventTypePeerDisconnected),
		PeerID:    c.remote,
		Reason:    reason,
	}
	if reason == types.DisconnectReasonError {
		evt.Error = cause
	}
	_ = h.emDisconnected.Emit(evt)
}

// connected 检查是否存在到 peer 的可用连接
func (h *Host) connected(peer types.PeerID) bool {
	return h.pickConn(peer) != nil
}

// pickConn 选择到 peer 的最新一条未关闭连接
func (h *Host) pickConn(peer types.PeerID) *peerConn {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.conns[peer]
	for i := len(list) - 1; i >= 0; i-- {
		if !list[i].isClosed() {
			return list[i]
		}
	}
	return nil
}

// Peers 返回当前已连接的节点，按 ID 排序
func (h *Host) Peers() []types.PeerID {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]types.PeerID, 0, len(h.conns))
	for p := range h.conns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ClosePeer 关闭与指定节点的全部连接
func (h *Host) ClosePeer(peer types.PeerID) error {
	h.mu.Lock()
	list := append([]*peerConn(nil), h.conns[peer]...)
	h.mu.Unlock()

	var err error
	for _, c := range list {
		err = multierr.Append(err, c.close())
	}
	return err
}

// SetStreamHandler 为指定协议设置流处理器
func (h *Host) SetStreamHandler(protocolID types.ProtocolID, handler pkgif.StreamHandler) {
	h.mux.AddHandler(protocolID, func(proto types.ProtocolID, rwc io.ReadWriteCloser) error {
		s, ok := rwc.(*stream)
		if !ok {
			return fmt.Errorf("unexpected stream type for protocol %s", proto)
		}
		s.proto = proto
		handler(s)
		return nil
	})
	logger.Debug("注册协议处理器", "protocol", protocolID)
}

// RemoveStreamHandler 移除指定协议的流处理器
func (h *Host) RemoveStreamHandler(protocolID types.ProtocolID) {
	h.mux.RemoveHandler(protocolID)
	logger.Debug("移除协议处理器", "protocol", protocolID)
}

// NewStream 创建到指定节点的新流并完成协议协商
func (h *Host) NewStream(ctx context.Context, peerID types.PeerID, protocolID types.ProtocolID) (pkgif.Stream, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}

	c := h.pickConn(peerID)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, peerID.ShortString())
	}

	s, err := c.openStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("host: open stream: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(deadline)
	}
	if err := mss.SelectProtoOrFail(protocolID, s); err != nil {
		_ = s.Reset()
		return nil, fmt.Errorf("host: protocol negotiation failed: %w", err)
	}
	_ = s.SetDeadline(time.Time{})

	s.proto = protocolID
	return s, nil
}

// handleInboundStream 服务端侧协议协商并路由到处理器
func (h *Host) handleInboundStream(s *stream) {
	if h.closed.Load() {
		_ = s.Reset()
		return
	}

	_ = s.SetDeadline(time.Now().Add(h.config.NegotiationTimeout))
	proto, handler, err := h.mux.Negotiate(s)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			logger.Debug("协议协商失败", "peer", s.conn.remote.ShortString(), "error", err)
		}
		_ = s.Reset()
		return
	}
	_ = s.SetDeadline(time.Time{})

	if err := handler(proto, s); err != nil {
		logger.Debug("协议处理器失败", "peer", s.conn.remote.ShortString(), "protocol", proto, "error", err)
		_ = s.Reset()
	}
}

// Close 关闭 Host，断开所有连接并等待后台任务结束
func (h *Host) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}

	logger.Info("正在关闭 Host")
	h.ctxCancel()

	var err error

	h.mu.Lock()
	l := h.listener
	var all []*peerConn
	for _, list := range h.conns {
		all = append(all, list...)
	}
	h.mu.Unlock()

	if l != nil {
		err = multierr.Append(err, l.Close())
	}
	for _, c := range all {
		err = multierr.Append(err, c.close())
	}

	h.refCount.Wait()

	err = multierr.Append(err, h.emConnected.Close())
	err = multierr.Append(err, h.emDisconnected.Close())
	logger.Info("Host 已关闭")
	return err
}

// isSessionShutdown 会话被本端或对端正常关闭
func isSessionShutdown(err error) bool {
	return errors.Is(err, yamux.ErrSessionShutdown) || errors.Is(err, net.ErrClosed)
}
