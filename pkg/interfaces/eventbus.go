// Package interfaces 定义 go-floodsub 公共接口
//
// 本文件定义进程内事件总线，Host 用它发布连接和断开事件，
// FloodSub 订阅这些事件来创建和回收节点处理器。
package interfaces

// EventBus 按事件类型分发的进程内总线
//
// 事件类型以指针标识，如 new(types.EvtPeerConnected)；投递的是值。
type EventBus interface {
	// Subscribe 订阅一种事件
	Subscribe(eventType interface{}, opts ...SubscriptionOpt) (Subscription, error)

	// Emitter 为一种事件创建发射器
	Emitter(eventType interface{}) (Emitter, error)
}

// Subscription 事件订阅，Close 后 Out 通道关闭
type Subscription interface {
	Out() <-chan interface{}
	Close() error
}

// Emitter 事件发射器
//
// Emit 不阻塞：订阅者缓冲区满时该订阅者丢失这条事件。
type Emitter interface {
	Emit(event interface{}) error
	Close() error
}

// SubscriptionOpt 订阅选项
type SubscriptionOpt func(*SubscriptionSettings)

// SubscriptionSettings 订阅参数，供实现读取
type SubscriptionSettings struct {
	// Buffer 订阅通道容量
	Buffer int
}

// BufSize 设置订阅通道容量
func BufSize(size int) SubscriptionOpt {
	return func(s *SubscriptionSettings) {
		s.Buffer = size
	}
}
