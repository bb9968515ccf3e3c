// Package floodsub 实现洪泛发布订阅协议
package floodsub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-floodsub/pkg/interfaces"
	"github.com/dep2p/go-floodsub/pkg/types"
)

// PeerState 节点处理器状态
type PeerState int32

const (
	// StateIdle 已创建，尚未开始协商
	StateIdle PeerState = iota
	// StateNegotiating 正在打开出站流并协商协议
	StateNegotiating
	// StateActive 出站流就绪，读写两个方向都在运行
	StateActive
	// StateClosed 终态，不可恢复；重连使用新的处理器
	StateClosed
)

// String 返回状态名称
func (s PeerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// peerSink 处理器向上报告事件的接收方（由 FloodSub 实现）
type peerSink interface {
	// handlerActive 出站流协商完成
	handlerActive(h *peerHandler)

	// handlerRPC 收到一个完整的 RPC 帧，返回 false 表示应停止读取
	handlerRPC(h *peerHandler, rpc *RPC) bool

	// handlerClosed 处理器进入 Closed，每个处理器恰好调用一次
	handlerClosed(h *peerHandler, reason error)
}

// peerHandler 单个节点的连接处理器
//
// 一个处理器对应一次连接会话：
//   - 写方向：writeLoop 先通过 Host.NewStream 协商出站流，然后按 FIFO 顺序
//     排空出站队列
//   - 读方向：每条入站流一个 readLoop，解码出的 RPC 交给 processLoop
//
// 任何编解码错误或 I/O 失败都会让处理器进入 Closed，并恰好上报一次。
type peerHandler struct {
	peer    types.PeerID
	host    interfaces.Host
	sink    peerSink
	cfg     *Config
	metrics *metrics
	queue   *outboundQueue

	// dropLimiter 限制丢帧告警的日志频率
	dropLimiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32

	mu       sync.Mutex
	outbound interfaces.Stream
	inbound  map[interfaces.Stream]struct{}

	closeOnce sync.Once
}

// newPeerHandler 创建处理器（Idle 状态）
func newPeerHandler(parent context.Context, peer types.PeerID, host interfaces.Host, sink peerSink, cfg *Config, m *metrics) *peerHandler {
	ctx, cancel := context.WithCancel(parent)
	return &peerHandler{
		peer:        peer,
		host:        host,
		sink:        sink,
		cfg:         cfg,
		metrics:     m,
		queue:       newOutboundQueue(cfg.OutboundQueueSize, cfg.QueueFullPolicy),
		dropLimiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
		ctx:         ctx,
		cancel:      cancel,
		inbound:     make(map[interfaces.Stream]struct{}),
	}
}

// State 返回当前状态
func (h *peerHandler) State() PeerState {
	return PeerState(h.state.Load())
}

// isClosed 是否已进入 Closed
func (h *peerHandler) isClosed() bool {
	return h.State() == StateClosed
}

// start 进入 Negotiating 并启动写协程
func (h *peerHandler) start() {
	if !h.state.CompareAndSwap(int32(StateIdle), int32(StateNegotiating)) {
		return
	}
	go h.writeLoop()
}

// send 把已编码的帧放入出站队列，永不阻塞
//
// 返回该帧是否进入了队列。
func (h *peerHandler) send(frame []byte) bool {
	switch h.queue.push(frame) {
	case pushQueued:
		return true
	case pushDroppedOldest:
		h.metrics.frameDropped(dropQueueFull)
		h.warnDrop("oldest")
		return true
	case pushDroppedNewest:
		h.metrics.frameDropped(dropQueueFull)
		h.warnDrop("newest")
		return false
	default:
		h.metrics.frameDropped(dropQueueClosed)
		return false
	}
}

func (h *peerHandler) warnDrop(which string) {
	if h.dropLimiter.Allow() {
		logger.Warn("出站队列已满，丢弃帧",
			"peer", h.peer.ShortString(),
			"dropped", which,
			"queueSize", h.cfg.OutboundQueueSize)
	}
}

// ============================================================================
//                              写方向
// ============================================================================

// negotiate 打开出站流，超时由注入的时钟计量
func (h *peerHandler) negotiate() (interfaces.Stream, error) {
	ctx, cancel := h.cfg.Clock.WithTimeout(h.ctx, h.cfg.NegotiationTimeout)
	defer cancel()

	s, err := h.host.NewStream(ctx, h.peer, ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNegotiationFailed, err)
	}
	return s, nil
}

func (h *peerHandler) writeLoop() {
	s, err := h.negotiate()
	if err != nil {
		if h.ctx.Err() == nil {
			logger.Debug("出站流协商失败", "peer", h.peer.ShortString(), "error", err)
		}
		h.close(err)
		return
	}

	h.mu.Lock()
	if h.isClosed() {
		h.mu.Unlock()
		_ = s.Reset()
		return
	}
	h.outbound = s
	h.mu.Unlock()

	if !h.state.CompareAndSwap(int32(StateNegotiating), int32(StateActive)) {
		return
	}
	logger.Debug("节点处理器已激活", "peer", h.peer.ShortString())

	go h.watchOutbound(s)
	h.sink.handlerActive(h)

	for {
		frame, err := h.queue.pop(h.ctx)
		if err != nil {
			return
		}
		if _, err := s.Write(frame); err != nil {
			h.close(fmt.Errorf("%w: %v", ErrIoFailure, err))
			return
		}
	}
}

// watchOutbound 监视出站流
//
// 对端从不在我们的出站流上写数据；读到 EOF 说明对端关闭了流。
func (h *peerHandler) watchOutbound(s interfaces.Stream) {
	var buf [1]byte
	_, err := s.Read(buf[:])
	if h.ctx.Err() != nil {
		return
	}
	switch {
	case err == nil:
		h.close(fmt.Errorf("%w: unexpected data on outbound stream", ErrMalformed))
	case errors.Is(err, io.EOF):
		h.close(ErrPeerClosedRemotely)
	default:
		h.close(fmt.Errorf("%w: %v", ErrIoFailure, err))
	}
}

// ============================================================================
//                              读方向
// ============================================================================

// attachInbound 挂接一条入站流，处理器已关闭时重置该流
func (h *peerHandler) attachInbound(s interfaces.Stream) bool {
	h.mu.Lock()
	if h.isClosed() {
		h.mu.Unlock()
		_ = s.Reset()
		return false
	}
	h.inbound[s] = struct{}{}
	h.mu.Unlock()

	go h.readLoop(s)
	return true
}

func (h *peerHandler) readLoop(s interfaces.Stream) {
	fr := newFrameReader(s, h.cfg.MaxMessageSize)
	for {
		rpc, err := fr.ReadRPC()
		if err != nil {
			if h.ctx.Err() != nil {
				return
			}
			reason := classifyReadError(err)
			if isCodecFatal(reason) {
				logger.Warn("协议违规，关闭节点", "peer", h.peer.ShortString(), "error", reason)
			}
			h.close(reason)
			return
		}
		if !h.sink.handlerRPC(h, rpc) {
			return
		}
	}
}

// classifyReadError 把读错误映射为关闭原因
func classifyReadError(err error) error {
	switch {
	case errors.Is(err, io.EOF):
		return ErrPeerClosedRemotely
	case isCodecFatal(err):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrIoFailure, err)
	}
}

// ============================================================================
//                              关闭
// ============================================================================

// close 进入 Closed 状态，幂等
//
// 取消读写协程、丢弃排队中的帧、重置所有流，然后上报一次 handlerClosed。
func (h *peerHandler) close(reason error) {
	h.closeOnce.Do(func() {
		h.state.Store(int32(StateClosed))
		h.cancel()

		if n := h.queue.close(); n > 0 {
			h.metrics.framesDropped.WithLabelValues(dropQueueClosed).Add(float64(n))
		}

		h.mu.Lock()
		streams := make([]interfaces.Stream, 0, len(h.inbound)+1)
		if h.outbound != nil {
			streams = append(streams, h.outbound)
		}
		for s := range h.inbound {
			streams = append(streams, s)
		}
		h.outbound = nil
		h.inbound = nil
		h.mu.Unlock()

		graceful := errors.Is(reason, ErrClosed)
		var errs error
		for _, s := range streams {
			if graceful {
				errs = multierr.Append(errs, s.Close())
			} else {
				errs = multierr.Append(errs, s.Reset())
			}
		}
		if errs != nil {
			logger.Debug("关闭节点流出错", "peer", h.peer.ShortString(), "error", errs)
		}

		h.metrics.handlerClosed(reason)
		logger.Debug("节点处理器已关闭", "peer", h.peer.ShortString(), "reason", reason)

		h.sink.handlerClosed(h, reason)
	})
}
