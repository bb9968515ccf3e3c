// Package eventbus 实现进程内事件总线
package eventbus

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	pkgif "github.com/dep2p/go-floodsub/pkg/interfaces"
	"github.com/dep2p/go-floodsub/pkg/lib/log"
)

var logger = log.Logger("core/eventbus")

// 默认订阅缓冲区大小
const defaultBufSize = 16

var (
	// ErrClosed 发射器已关闭
	ErrClosed = errors.New("eventbus: emitter closed")
	// ErrInvalidEventType 无效的事件类型
	ErrInvalidEventType = errors.New("eventbus: invalid event type")
	// ErrNonPointerType 订阅或创建发射器时必须传入指针类型
	ErrNonPointerType = errors.New("eventbus: event type must be a pointer")
)

// Bus 事件总线
type Bus struct {
	mu    sync.Mutex
	nodes map[reflect.Type]*node
}

var _ pkgif.EventBus = (*Bus)(nil)

// node 单个事件类型的订阅者集合
type node struct {
	mu       sync.Mutex
	typ      reflect.Type
	sinks    []*Subscription
	emitters atomic.Int32

	dropped atomic.Int64
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{nodes: make(map[reflect.Type]*node)}
}

// BufSize 设置订阅缓冲区大小
func BufSize(size int) pkgif.SubscriptionOpt {
	return pkgif.BufSize(size)
}

// elemType 取事件指针的元素类型
func elemType(eventType interface{}) (reflect.Type, error) {
	if eventType == nil {
		return nil, ErrInvalidEventType
	}
	typ := reflect.TypeOf(eventType)
	if typ.Kind() != reflect.Ptr {
		return nil, ErrNonPointerType
	}
	return typ.Elem(), nil
}

// Subscribe 订阅事件，eventType 为事件类型的指针，如 new(types.EvtPeerConnected)
func (b *Bus) Subscribe(eventType interface{}, opts ...pkgif.SubscriptionOpt) (pkgif.Subscription, error) {
	typ, err := elemType(eventType)
	if err != nil {
		return nil, err
	}

	settings := pkgif.SubscriptionSettings{Buffer: defaultBufSize}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.Buffer < 0 {
		settings.Buffer = 0
	}

	sub := &Subscription{
		bus: b,
		typ: typ,
		out: make(chan interface{}, settings.Buffer),
	}
	b.withNode(typ, func(n *node) {
		n.sinks = append(n.sinks, sub)
	})
	return sub, nil
}

// Emitter 获取事件发射器
func (b *Bus) Emitter(eventType interface{}) (pkgif.Emitter, error) {
	typ, err := elemType(eventType)
	if err != nil {
		return nil, err
	}

	var n *node
	b.withNode(typ, func(nd *node) {
		n = nd
		n.emitters.Add(1)
	})
	return &Emitter{bus: b, node: n}, nil
}

// withNode 在持有节点锁的情况下执行 cb，节点不存在时创建
func (b *Bus) withNode(typ reflect.Type, cb func(*node)) {
	b.mu.Lock()
	n, ok := b.nodes[typ]
	if !ok {
		n = &node{typ: typ}
		b.nodes[typ] = n
	}
	n.mu.Lock()
	b.mu.Unlock()

	cb(n)
	n.mu.Unlock()
}

// release 节点不再有订阅者和发射器时删除
func (b *Bus) release(typ reflect.Type) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.nodes[typ]
	if !ok {
		return
	}
	n.mu.Lock()
	idle := len(n.sinks) == 0 && n.emitters.Load() == 0
	n.mu.Unlock()
	if idle {
		delete(b.nodes, typ)
	}
}

// removeSub 移除订阅
func (b *Bus) removeSub(sub *Subscription) {
	b.mu.Lock()
	n, ok := b.nodes[sub.typ]
	if !ok {
		b.mu.Unlock()
		return
	}
	n.mu.Lock()
	b.mu.Unlock()

	for i, s := range n.sinks {
		if s == sub {
			n.sinks = append(n.sinks[:i], n.sinks[i+1:]...)
			break
		}
	}
	n.mu.Unlock()

	b.release(sub.typ)
}

// emit 把事件非阻塞地发送给所有订阅者
func (n *node) emit(event interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.sinks {
		select {
		case sub.out <- event:
		default:
			// 每丢 100 个告警一次
			if dropped := n.dropped.Add(1); dropped%100 == 1 {
				logger.Warn("订阅者缓冲区已满，丢弃事件", "type", n.typ.String(), "dropped", dropped)
			}
		}
	}
}
