// Package floodsub 实现洪泛发布订阅协议
package floodsub

import (
	"context"
	"sync"

	"github.com/dep2p/go-floodsub/pkg/interfaces"
	"github.com/dep2p/go-floodsub/pkg/types"
)

// Subscription 本地主题订阅
//
// 投递是非阻塞的：缓冲区满时该订阅丢弃新消息，不影响其他订阅和转发。
type Subscription struct {
	fs    *FloodSub
	topic string
	ch    chan *types.Delivered

	ctx        context.Context
	cancel     context.CancelFunc
	cancelOnce sync.Once
}

// 确保实现接口
var _ interfaces.TopicSubscription = (*Subscription)(nil)

// newSubscription 创建本地订阅
func newSubscription(fs *FloodSub, topic string, bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriptionBufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Subscription{
		fs:     fs,
		topic:  topic,
		ch:     make(chan *types.Delivered, bufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Topic 返回订阅的主题
func (s *Subscription) Topic() string {
	return s.topic
}

// Next 获取下一条投递
//
// 缓冲区中已有的投递在取消后不再返回。
func (s *Subscription) Next(ctx context.Context) (*types.Delivered, error) {
	select {
	case <-s.ctx.Done():
		return nil, ErrSubscriptionCancelled
	default:
	}

	select {
	case d := <-s.ch:
		return d, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, ErrSubscriptionCancelled
	}
}

// Cancel 取消订阅
//
// 主题的最后一个本地订阅取消时，本节点向所有邻居宣告退订。
func (s *Subscription) Cancel() {
	if !s.markCancelled() {
		return
	}
	if s.fs == nil {
		return
	}
	// 服务已停止时注册表已清空，无需处理
	_ = s.fs.do(func() {
		s.fs.removeSubscription(s)
	})
}

// markCancelled 标记为已取消，返回是否为首次取消
func (s *Subscription) markCancelled() bool {
	first := false
	s.cancelOnce.Do(func() {
		first = true
		s.cancel()
	})
	return first
}

// isCancelled 检查是否已取消
func (s *Subscription) isCancelled() bool {
	return s.ctx.Err() != nil
}

// push 非阻塞投递
func (s *Subscription) push(d *types.Delivered) bool {
	if s.isCancelled() {
		return false
	}
	select {
	case s.ch <- d:
		return true
	default:
		return false
	}
}
