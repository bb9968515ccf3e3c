// Package floodsub 实现洪泛发布订阅协议
package floodsub

import "errors"

// 编解码错误（CodecError）
var (
	// ErrTruncated 缓冲区中的字节不足以组成完整帧，调用方应继续缓冲后重试
	ErrTruncated = errors.New("floodsub: truncated frame")

	// ErrMalformed 帧的字节布局违反协议定义，必须关闭该流
	ErrMalformed = errors.New("floodsub: malformed frame")

	// ErrOversizedFrame 帧长度超过上限，视为策略违规并关闭该流
	ErrOversizedFrame = errors.New("floodsub: oversized frame")
)

// 连接错误（ConnectionError），只影响单个节点的处理器
var (
	// ErrNegotiationFailed 出站流协议协商失败
	ErrNegotiationFailed = errors.New("floodsub: protocol negotiation failed")

	// ErrIoFailure 传输层读写失败
	ErrIoFailure = errors.New("floodsub: stream i/o failure")

	// ErrPeerClosedRemotely 对端关闭了流
	ErrPeerClosedRemotely = errors.New("floodsub: stream closed by remote peer")

	// ErrPeerDisconnected 主机报告连接已断开
	ErrPeerDisconnected = errors.New("floodsub: peer disconnected")

	// ErrHandlerReplaced 同一节点的新处理器替换了旧处理器
	ErrHandlerReplaced = errors.New("floodsub: handler replaced")
)

// 服务错误
var (
	// ErrNotStarted 服务未启动
	ErrNotStarted = errors.New("floodsub: service not started")

	// ErrAlreadyStarted 服务已启动
	ErrAlreadyStarted = errors.New("floodsub: service already started")

	// ErrClosed 服务已停止
	ErrClosed = errors.New("floodsub: service closed")

	// ErrNilHost Host 为 nil
	ErrNilHost = errors.New("floodsub: host is nil")

	// ErrEmptyTopic 主题名为空
	ErrEmptyTopic = errors.New("floodsub: empty topic")

	// ErrNoTopics 发布时未指定主题
	ErrNoTopics = errors.New("floodsub: publish requires at least one topic")

	// ErrSubscriptionCancelled 订阅已取消
	ErrSubscriptionCancelled = errors.New("floodsub: subscription cancelled")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("floodsub: invalid config")
)

// isCodecFatal 判断编解码错误是否必须关闭连接
func isCodecFatal(err error) bool {
	return errors.Is(err, ErrMalformed) || errors.Is(err, ErrOversizedFrame)
}
