// Package floodsub 实现洪泛发布订阅协议
package floodsub

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-floodsub/pkg/interfaces"
	"github.com/dep2p/go-floodsub/pkg/lib/log"
	"github.com/dep2p/go-floodsub/pkg/types"
)

// floodsub 模块 logger
var logger = log.Logger("protocol/floodsub")

// 连接事件订阅缓冲区
const eventBufferSize = 256

// rpcEvent 处理器上报的入站 RPC
type rpcEvent struct {
	handler *peerHandler
	rpc     *RPC
}

// peerEventKind 节点事件类型
type peerEventKind int

const (
	peerConnected peerEventKind = iota
	peerDisconnected
	peerNewStream
	peerActive
	peerClosed
)

// peerEvent 节点生命周期事件
type peerEvent struct {
	kind    peerEventKind
	peer    types.PeerID
	handler *peerHandler
	stream  interfaces.Stream
	reason  error
}

// FloodSub 洪泛发布订阅引擎
//
// 所有共享状态（主题注册表、节点处理器表、本地订阅）都只由 processLoop
// 一个协程访问；公开方法通过 eval 通道把操作串行化到 processLoop 中执行。
// 去重过滤器自带锁，insertAndCheck 在任何协程中调用都是原子的。
type FloodSub struct {
	host    interfaces.Host
	cfg     *Config
	self    types.PeerID
	seen    *seenFilter
	seqno   *seqnoGenerator
	metrics *metrics

	// 以下字段只能在 processLoop 中访问
	registry *topicRegistry
	handlers map[types.PeerID]*peerHandler
	mySubs   map[string]map[*Subscription]struct{}

	eval     chan func()
	incoming chan *rpcEvent
	events   chan peerEvent

	mu      sync.Mutex
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	evtSubs []interfaces.Subscription
	wg      sync.WaitGroup
}

// 确保实现接口
var _ interfaces.FloodSub = (*FloodSub)(nil)

// New 创建 FloodSub 引擎
func New(host interfaces.Host, opts ...Option) (*FloodSub, error) {
	if host == nil {
		return nil, ErrNilHost
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	self := host.ID()
	if err := self.Validate(); err != nil {
		return nil, fmt.Errorf("floodsub: invalid local peer id: %w", err)
	}

	return &FloodSub{
		host:     host,
		cfg:      cfg,
		self:     self,
		seen:     newSeenFilter(cfg.SeenCapacity),
		seqno:    newSeqnoGenerator(cfg.Clock.Now()),
		metrics:  newMetrics(cfg.Registerer),
		registry: newTopicRegistry(),
		handlers: make(map[types.PeerID]*peerHandler),
		mySubs:   make(map[string]map[*Subscription]struct{}),
		eval:     make(chan func()),
		incoming: make(chan *rpcEvent, 32),
		events:   make(chan peerEvent, 32),
		done:     make(chan struct{}),
	}, nil
}

// ID 返回本节点 PeerID
func (fs *FloodSub) ID() types.PeerID {
	return fs.self
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动服务
func (fs *FloodSub) Start(_ context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.stopped {
		return ErrClosed
	}
	if fs.started {
		logger.Debug("FloodSub 服务已启动，跳过")
		return ErrAlreadyStarted
	}

	// 使用 context.Background() 而不是传入的 ctx：
	// Fx OnStart 的 ctx 在返回后会被取消
	fs.ctx, fs.cancel = context.WithCancel(context.Background())

	if bus := fs.host.EventBus(); bus != nil {
		connSub, err := bus.Subscribe(new(types.EvtPeerConnected), interfaces.BufSize(eventBufferSize))
		if err != nil {
			fs.cancel()
			return fmt.Errorf("floodsub: subscribe connected events: %w", err)
		}
		discSub, err := bus.Subscribe(new(types.EvtPeerDisconnected), interfaces.BufSize(eventBufferSize))
		if err != nil {
			_ = connSub.Close()
			fs.cancel()
			return fmt.Errorf("floodsub: subscribe disconnected events: %w", err)
		}
		fs.evtSubs = []interfaces.Subscription{connSub, discSub}

		fs.wg.Add(2)
		go fs.watchEvents(connSub)
		go fs.watchEvents(discSub)
	}

	fs.started = true
	go fs.processLoop()

	fs.host.SetStreamHandler(ProtocolID, fs.handleNewStream)

	// 为启动前已建立的连接创建处理器
	for _, p := range fs.host.Peers() {
		fs.postEvent(peerEvent{kind: peerConnected, peer: p})
	}

	logger.Info("FloodSub 服务已启动", "peer", fs.self.ShortString(), "protocol", ProtocolID)
	return nil
}

// Stop 停止服务
//
// 关闭所有节点处理器、取消所有本地订阅并清空注册表。重复调用返回 nil。
func (fs *FloodSub) Stop() error {
	fs.mu.Lock()
	if !fs.started {
		fs.mu.Unlock()
		return ErrNotStarted
	}
	if fs.stopped {
		fs.mu.Unlock()
		return nil
	}
	fs.stopped = true
	subs := fs.evtSubs
	fs.evtSubs = nil
	fs.mu.Unlock()

	logger.Info("正在停止 FloodSub 服务")

	fs.host.RemoveStreamHandler(ProtocolID)

	var errs error
	for _, sub := range subs {
		errs = multierr.Append(errs, sub.Close())
	}

	fs.cancel()
	<-fs.done
	fs.wg.Wait()

	logger.Info("FloodSub 服务已停止")
	return errs
}

// loopContext 返回 processLoop 的 context
func (fs *FloodSub) loopContext() (context.Context, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.stopped {
		return nil, ErrClosed
	}
	if !fs.started {
		return nil, ErrNotStarted
	}
	return fs.ctx, nil
}

// do 在 processLoop 中同步执行 fn
func (fs *FloodSub) do(fn func()) error {
	ctx, err := fs.loopContext()
	if err != nil {
		return err
	}

	finished := make(chan struct{})
	select {
	case fs.eval <- func() {
		fn()
		close(finished)
	}:
	case <-ctx.Done():
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		// processLoop 可能正在执行 fn，等它退出后再判断
		<-fs.done
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

// postEvent 把节点事件交给 processLoop，服务停止后丢弃
func (fs *FloodSub) postEvent(ev peerEvent) bool {
	select {
	case fs.events <- ev:
		return true
	case <-fs.ctx.Done():
		return false
	}
}

// ============================================================================
//                              processLoop
// ============================================================================

func (fs *FloodSub) processLoop() {
	defer close(fs.done)
	defer fs.teardown()

	for {
		select {
		case <-fs.ctx.Done():
			return
		case fn := <-fs.eval:
			fn()
		case ev := <-fs.incoming:
			fs.handleIncomingRPC(ev)
		case ev := <-fs.events:
			fs.handlePeerEvent(ev)
		}
	}
}

// teardown 释放所有节点状态
func (fs *FloodSub) teardown() {
	for pid, h := range fs.handlers {
		delete(fs.handlers, pid)
		h.close(ErrClosed)
	}
	for topic, subs := range fs.mySubs {
		for sub := range subs {
			sub.markCancelled()
		}
		delete(fs.mySubs, topic)
	}
	fs.registry.reset()
	fs.metrics.peers.Set(0)
	fs.metrics.topics.Set(0)
	fs.metrics.remoteTopics.Set(0)
}

func (fs *FloodSub) handlePeerEvent(ev peerEvent) {
	switch ev.kind {
	case peerConnected:
		fs.ensureHandler(ev.peer)

	case peerDisconnected:
		// 连接/断开事件来自两个订阅，可能乱序到达；主机仍报告已连接时说明
		// 这是已被新连接取代的过期事件
		if fs.hostConnected(ev.peer) {
			return
		}
		fs.removePeer(ev.peer, ErrPeerDisconnected)

	case peerNewStream:
		h := fs.ensureHandler(ev.peer)
		if h == nil {
			_ = ev.stream.Reset()
			return
		}
		h.attachInbound(ev.stream)

	case peerActive:
		if fs.handlers[ev.handler.peer] != ev.handler {
			return
		}
		fs.sendHello(ev.handler)

	case peerClosed:
		// 只处理当前处理器的关闭；被替换掉的旧处理器上报的关闭是过期事件
		if fs.handlers[ev.handler.peer] != ev.handler {
			return
		}
		fs.removePeer(ev.handler.peer, ev.reason)
	}
}

// ensureHandler 返回节点的存活处理器，必要时新建
func (fs *FloodSub) ensureHandler(peer types.PeerID) *peerHandler {
	if peer == fs.self || peer.IsEmpty() {
		return nil
	}

	if h, ok := fs.handlers[peer]; ok {
		if !h.isClosed() {
			return h
		}
		// 旧处理器已关闭但关闭事件尚未到达：立即清理
		fs.removePeer(peer, ErrHandlerReplaced)
	}

	h := newPeerHandler(fs.ctx, peer, fs.host, fs, fs.cfg, fs.metrics)
	fs.handlers[peer] = h
	fs.metrics.peers.Set(float64(len(fs.handlers)))
	h.start()

	logger.Debug("新建节点处理器", "peer", peer.ShortString())
	return h
}

// hostConnected 主机当前是否与节点保持连接
func (fs *FloodSub) hostConnected(peer types.PeerID) bool {
	for _, p := range fs.host.Peers() {
		if p == peer {
			return true
		}
	}
	return false
}

// removePeer 移除节点的处理器并无条件清理其订阅
func (fs *FloodSub) removePeer(peer types.PeerID, reason error) {
	h := fs.handlers[peer]
	delete(fs.handlers, peer)
	fs.metrics.peers.Set(float64(len(fs.handlers)))

	left := fs.registry.purgePeer(peer)
	if len(left) > 0 {
		fs.metrics.remoteTopics.Set(float64(fs.registry.knownTopics()))
		logger.Debug("节点离开主题", "peer", peer.ShortString(), "topics", left)
	}

	if h != nil {
		h.close(reason)
	}
}

// sendHello 向新激活的节点发送本地完整订阅集合
func (fs *FloodSub) sendHello(h *peerHandler) {
	topics := fs.registry.localTopics()
	if len(topics) == 0 {
		return
	}

	rpc := &RPC{Subscriptions: make([]SubOpts, 0, len(topics))}
	for _, t := range topics {
		rpc.Subscriptions = append(rpc.Subscriptions, SubOpts{Subscribe: true, TopicID: t})
	}
	frame, err := EncodeFrame(rpc, fs.cfg.MaxMessageSize)
	if err != nil {
		fs.metrics.frameDropped(dropEncode)
		logger.Warn("编码订阅集合失败", "peer", h.peer.ShortString(), "error", err)
		return
	}
	h.send(frame)
}

// announce 向所有节点广播一次订阅变更
func (fs *FloodSub) announce(topic string, subscribe bool) {
	rpc := &RPC{Subscriptions: []SubOpts{{Subscribe: subscribe, TopicID: topic}}}
	frame, err := EncodeFrame(rpc, fs.cfg.MaxMessageSize)
	if err != nil {
		fs.metrics.frameDropped(dropEncode)
		logger.Warn("编码订阅变更失败", "topic", topic, "error", err)
		return
	}
	for _, h := range fs.handlers {
		h.send(frame)
	}
}

// ============================================================================
//                              处理器事件（peerSink）
// ============================================================================

func (fs *FloodSub) handlerActive(h *peerHandler) {
	select {
	case fs.events <- peerEvent{kind: peerActive, peer: h.peer, handler: h}:
	case <-h.ctx.Done():
	case <-fs.ctx.Done():
	}
}

func (fs *FloodSub) handlerRPC(h *peerHandler, rpc *RPC) bool {
	select {
	case fs.incoming <- &rpcEvent{handler: h, rpc: rpc}:
		return true
	case <-h.ctx.Done():
		return false
	case <-fs.ctx.Done():
		return false
	}
}

// handlerClosed 可能在 processLoop 内部被调用（removePeer），因此异步投递
func (fs *FloodSub) handlerClosed(h *peerHandler, reason error) {
	go fs.postEvent(peerEvent{kind: peerClosed, peer: h.peer, handler: h, reason: reason})
}

// ============================================================================
//                              Host 回调
// ============================================================================

// handleNewStream 入站 floodsub 流
func (fs *FloodSub) handleNewStream(s interfaces.Stream) {
	peer := s.Conn().RemotePeer()
	if !fs.postEvent(peerEvent{kind: peerNewStream, peer: peer, stream: s}) {
		_ = s.Reset()
	}
}

// watchEvents 把主机的连接事件转交给 processLoop
func (fs *FloodSub) watchEvents(sub interfaces.Subscription) {
	defer fs.wg.Done()

	for {
		select {
		case <-fs.ctx.Done():
			return
		case e, ok := <-sub.Out():
			if !ok {
				return
			}
			switch evt := e.(type) {
			case types.EvtPeerConnected:
				fs.postEvent(peerEvent{kind: peerConnected, peer: evt.PeerID})
			case *types.EvtPeerConnected:
				fs.postEvent(peerEvent{kind: peerConnected, peer: evt.PeerID})
			case types.EvtPeerDisconnected:
				fs.postEvent(peerEvent{kind: peerDisconnected, peer: evt.PeerID})
			case *types.EvtPeerDisconnected:
				fs.postEvent(peerEvent{kind: peerDisconnected, peer: evt.PeerID})
			}
		}
	}
}

// ============================================================================
//                              入站消息
// ============================================================================

func (fs *FloodSub) handleIncomingRPC(ev *rpcEvent) {
	h := ev.handler
	if fs.handlers[h.peer] != h {
		return
	}

	changed := false
	for _, sub := range ev.rpc.Subscriptions {
		if sub.TopicID == "" {
			continue
		}
		if fs.registry.applyRemote(h.peer, sub.TopicID, sub.Subscribe) {
			changed = true
			logger.Debug("远端订阅变更",
				"peer", h.peer.ShortString(),
				"topic", sub.TopicID,
				"subscribe", sub.Subscribe)
		}
	}
	if changed {
		fs.metrics.remoteTopics.Set(float64(fs.registry.knownTopics()))
	}

	for _, msg := range ev.rpc.Publish {
		fs.handleIncomingMessage(h, msg)
	}
}

func (fs *FloodSub) handleIncomingMessage(h *peerHandler, msg *Message) {
	src, err := types.PeerIDFromBytes(msg.From)
	if err != nil {
		return
	}
	// 自己发布的消息绕了一圈回来
	if src == fs.self {
		fs.metrics.duplicates.Inc()
		return
	}

	if fs.seen.insertAndCheck(messageID(src, msg.Seqno)) {
		fs.metrics.duplicates.Inc()
		logger.Debug("丢弃重复消息", "from", src.ShortString(), "via", h.peer.ShortString())
		return
	}
	if len(msg.TopicIDs) == 0 {
		return
	}

	fs.deliver(&types.Message{
		From:         src,
		Seqno:        msg.Seqno,
		TopicIDs:     msg.TopicIDs,
		Data:         msg.Data,
		ReceivedFrom: h.peer,
	})

	// 不回传给直接发送者，也不发给消息来源
	targets := fs.registry.forwardTargets(msg.TopicIDs, h.peer, src)
	if len(targets) == 0 {
		return
	}
	frame, err := EncodeFrame(&RPC{Publish: []*Message{msg}}, fs.cfg.MaxMessageSize)
	if err != nil {
		fs.metrics.frameDropped(dropEncode)
		return
	}
	fs.forward(targets, frame)
}

// forward 把同一帧放入每个目标节点的出站队列
func (fs *FloodSub) forward(targets []types.PeerID, frame []byte) {
	for _, p := range targets {
		h, ok := fs.handlers[p]
		if !ok {
			continue
		}
		if h.send(frame) {
			fs.metrics.forwarded.Inc()
		}
	}
}

// deliver 投递给本地订阅，每个本地订阅的主题投递一次
func (fs *FloodSub) deliver(msg *types.Message) {
	seen := make(map[string]struct{}, len(msg.TopicIDs))
	for _, topic := range msg.TopicIDs {
		if _, dup := seen[topic]; dup {
			continue
		}
		seen[topic] = struct{}{}

		if !fs.registry.isLocallySubscribed(topic) {
			continue
		}
		for sub := range fs.mySubs[topic] {
			if sub.push(&types.Delivered{Topic: topic, Message: msg}) {
				fs.metrics.delivered.Inc()
			} else {
				fs.metrics.frameDropped(dropSubscriber)
			}
		}
	}
}

// ============================================================================
//                              公开 API
// ============================================================================

// Subscribe 订阅主题
//
// 主题的第一个本地订阅会向所有邻居宣告订阅。
func (fs *FloodSub) Subscribe(topic string) (interfaces.TopicSubscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	sub := newSubscription(fs, topic, fs.cfg.SubscriptionBufferSize)
	err := fs.do(func() {
		subs, ok := fs.mySubs[topic]
		if !ok {
			subs = make(map[*Subscription]struct{})
			fs.mySubs[topic] = subs
		}
		subs[sub] = struct{}{}

		if fs.registry.subscribeLocal(topic) {
			fs.metrics.topics.Set(float64(len(fs.mySubs)))
			fs.announce(topic, true)
			logger.Info("订阅主题", "topic", topic)
		}
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Unsubscribe 取消主题的全部本地订阅
func (fs *FloodSub) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	return fs.do(func() {
		for sub := range fs.mySubs[topic] {
			sub.markCancelled()
		}
		delete(fs.mySubs, topic)
		fs.leaveTopic(topic)
	})
}

// removeSubscription 移除单个本地订阅（在 processLoop 中调用）
func (fs *FloodSub) removeSubscription(sub *Subscription) {
	subs, ok := fs.mySubs[sub.topic]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) > 0 {
		return
	}
	delete(fs.mySubs, sub.topic)
	fs.leaveTopic(sub.topic)
}

func (fs *FloodSub) leaveTopic(topic string) {
	if !fs.registry.unsubscribeLocal(topic) {
		return
	}
	fs.metrics.topics.Set(float64(len(fs.mySubs)))
	fs.announce(topic, false)
	logger.Info("取消订阅主题", "topic", topic)
}

// Publish 发布消息
//
// 本节点无需订阅目标主题。投递是尽力而为的，只有本地误用
// （服务未启动、主题为空、消息超长）才会返回错误。
func (fs *FloodSub) Publish(topics []string, data []byte) (types.MessageID, error) {
	if len(topics) == 0 {
		return "", ErrNoTopics
	}
	for _, t := range topics {
		if t == "" {
			return "", ErrEmptyTopic
		}
	}
	if _, err := fs.loopContext(); err != nil {
		return "", err
	}

	seqno := fs.seqno.next()
	msg := &Message{
		From:     fs.self.Bytes(),
		Data:     bytes.Clone(data),
		Seqno:    seqno,
		TopicIDs: append([]string(nil), topics...),
	}
	frame, err := EncodeFrame(&RPC{Publish: []*Message{msg}}, fs.cfg.MaxMessageSize)
	if err != nil {
		return "", err
	}

	id := types.NewMessageID(fs.self, seqno)
	// 先记入过滤器，自己的消息经环路回来时不会再次洪泛
	fs.seen.insertAndCheck(string(id))

	err = fs.do(func() {
		fs.metrics.published.Inc()

		if fs.cfg.DeliverLocalMessages {
			fs.deliver(&types.Message{
				From:         fs.self,
				Seqno:        msg.Seqno,
				TopicIDs:     msg.TopicIDs,
				Data:         msg.Data,
				ReceivedFrom: fs.self,
				Local:        true,
			})
		}

		targets := fs.registry.forwardTargets(msg.TopicIDs, fs.self)
		fs.forward(targets, frame)
		logger.Debug("发布消息", "topics", msg.TopicIDs, "targets", len(targets))
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Topics 返回本地订阅的主题
func (fs *FloodSub) Topics() []string {
	var out []string
	_ = fs.do(func() {
		out = fs.registry.localTopics()
	})
	return out
}

// ListPeers 返回已知订阅了主题的节点
func (fs *FloodSub) ListPeers(topic string) []types.PeerID {
	var out []types.PeerID
	_ = fs.do(func() {
		out = fs.registry.subscribersOf(topic)
	})
	return out
}

// PeerTopics 返回远端节点宣告订阅的主题
func (fs *FloodSub) PeerTopics(peer types.PeerID) []string {
	var out []string
	_ = fs.do(func() {
		out = fs.registry.topicsOf(peer)
	})
	return out
}

// Peers 返回拥有存活处理器的节点
func (fs *FloodSub) Peers() []types.PeerID {
	var out []types.PeerID
	_ = fs.do(func() {
		for p, h := range fs.handlers {
			if !h.isClosed() {
				out = append(out, p)
			}
		}
	})
	sortPeers(out)
	return out
}
