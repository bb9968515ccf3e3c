// Package floodsub 实现洪泛发布订阅协议
package floodsub

import (
	"context"
	"sync"
)

// pushResult 入队结果
type pushResult int

const (
	// pushQueued 帧已入队
	pushQueued pushResult = iota
	// pushDroppedNewest 队列已满，新帧被丢弃
	pushDroppedNewest
	// pushDroppedOldest 队列已满，队首旧帧被丢弃后新帧入队
	pushDroppedOldest
	// pushClosed 队列已关闭
	pushClosed
)

// outboundQueue 单个节点的有界出站队列
//
// push 永不阻塞，保证慢节点不会拖住 processLoop。
// 帧按提交顺序出队（FIFO），同一节点上不发生重排。
type outboundQueue struct {
	mu     sync.Mutex
	frames [][]byte
	head   int
	limit  int
	policy QueueFullPolicy
	closed bool

	// notify 容量为 1 的唤醒信号
	notify chan struct{}
}

// newOutboundQueue 创建出站队列
func newOutboundQueue(limit int, policy QueueFullPolicy) *outboundQueue {
	if limit <= 0 {
		limit = DefaultOutboundQueueSize
	}
	return &outboundQueue{
		frames: make([][]byte, 0, limit),
		limit:  limit,
		policy: policy,
		notify: make(chan struct{}, 1),
	}
}

// push 追加一个已编码的帧
func (q *outboundQueue) push(frame []byte) pushResult {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return pushClosed
	}

	result := pushQueued
	if q.lenLocked() >= q.limit {
		if q.policy == DropNewest {
			q.mu.Unlock()
			return pushDroppedNewest
		}
		q.frames[q.head] = nil
		q.head++
		result = pushDroppedOldest
	}
	q.frames = append(q.frames, frame)
	q.compactLocked()
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return result
}

// pop 取出队首帧，队列为空时阻塞
//
// ctx 取消或队列关闭时返回错误。
func (q *outboundQueue) pop(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if q.lenLocked() > 0 {
			frame := q.frames[q.head]
			q.frames[q.head] = nil
			q.head++
			q.compactLocked()
			q.mu.Unlock()
			return frame, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// close 关闭队列并丢弃尚未发送的帧，返回丢弃数量
func (q *outboundQueue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0
	}
	q.closed = true
	n := q.lenLocked()
	q.frames = nil
	q.head = 0

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return n
}

// len 返回排队中的帧数
func (q *outboundQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

func (q *outboundQueue) lenLocked() int {
	return len(q.frames) - q.head
}

// compactLocked 已出队部分超过一半时搬移切片，避免底层数组无限增长
func (q *outboundQueue) compactLocked() {
	if q.head == 0 || q.head < len(q.frames)/2 {
		return
	}
	n := copy(q.frames, q.frames[q.head:])
	for i := n; i < len(q.frames); i++ {
		q.frames[i] = nil
	}
	q.frames = q.frames[:n]
	q.head = 0
}
