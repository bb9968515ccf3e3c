// Package floodsub 实现洪泛发布订阅协议
package floodsub

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// 默认配置值
const (
	// DefaultMaxMessageSize 单帧最大字节数（1MB）
	DefaultMaxMessageSize = 1 << 20

	// DefaultSeenCapacity 去重过滤器容量
	DefaultSeenCapacity = 4096

	// DefaultOutboundQueueSize 每个节点的出站队列长度
	DefaultOutboundQueueSize = 64

	// DefaultNegotiationTimeout 出站流协商超时
	DefaultNegotiationTimeout = 10 * time.Second

	// DefaultSubscriptionBufferSize 本地订阅的投递缓冲区
	DefaultSubscriptionBufferSize = 32
)

// QueueFullPolicy 出站队列满时的丢弃策略
type QueueFullPolicy int

const (
	// DropNewest 丢弃新入队的帧（默认）
	DropNewest QueueFullPolicy = iota
	// DropOldest 丢弃队首最旧的帧，为新帧腾出位置
	DropOldest
)

// String 返回策略名称
func (p QueueFullPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop-newest"
	case DropOldest:
		return "drop-oldest"
	default:
		return "unknown"
	}
}

// ParseQueueFullPolicy 解析策略名称
func ParseQueueFullPolicy(s string) (QueueFullPolicy, error) {
	switch s {
	case "", "drop-newest":
		return DropNewest, nil
	case "drop-oldest":
		return DropOldest, nil
	default:
		return DropNewest, fmt.Errorf("%w: unknown queue policy %q", ErrInvalidConfig, s)
	}
}

// Config FloodSub 服务配置
type Config struct {
	// MaxMessageSize 单帧最大字节数，收发两个方向都生效
	MaxMessageSize int

	// SeenCapacity 去重过滤器容量
	SeenCapacity int

	// OutboundQueueSize 每个节点的出站队列长度
	OutboundQueueSize int

	// QueueFullPolicy 出站队列满时的丢弃策略
	QueueFullPolicy QueueFullPolicy

	// NegotiationTimeout 出站流协商超时
	NegotiationTimeout time.Duration

	// SubscriptionBufferSize 本地订阅的投递缓冲区
	SubscriptionBufferSize int

	// DeliverLocalMessages 是否把本节点发布的消息投递给本地订阅
	DeliverLocalMessages bool

	// Clock 时钟（测试时注入 clock.NewMock()）
	Clock clock.Clock

	// Registerer 指标注册器，nil 表示不注册
	Registerer prometheus.Registerer
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxMessageSize:         DefaultMaxMessageSize,
		SeenCapacity:           DefaultSeenCapacity,
		OutboundQueueSize:      DefaultOutboundQueueSize,
		QueueFullPolicy:        DropNewest,
		NegotiationTimeout:     DefaultNegotiationTimeout,
		SubscriptionBufferSize: DefaultSubscriptionBufferSize,
		Clock:                  clock.New(),
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: max message size must be positive", ErrInvalidConfig)
	}
	if c.SeenCapacity <= 0 {
		return fmt.Errorf("%w: seen capacity must be positive", ErrInvalidConfig)
	}
	if c.OutboundQueueSize <= 0 {
		return fmt.Errorf("%w: outbound queue size must be positive", ErrInvalidConfig)
	}
	if c.NegotiationTimeout <= 0 {
		return fmt.Errorf("%w: negotiation timeout must be positive", ErrInvalidConfig)
	}
	if c.SubscriptionBufferSize <= 0 {
		return fmt.Errorf("%w: subscription buffer size must be positive", ErrInvalidConfig)
	}
	if c.QueueFullPolicy != DropNewest && c.QueueFullPolicy != DropOldest {
		return fmt.Errorf("%w: unknown queue policy %d", ErrInvalidConfig, c.QueueFullPolicy)
	}
	if c.Clock == nil {
		return fmt.Errorf("%w: clock is nil", ErrInvalidConfig)
	}
	return nil
}

// Option 配置选项函数
type Option func(*Config)

// WithMaxMessageSize 设置最大帧大小
func WithMaxMessageSize(size int) Option {
	return func(c *Config) {
		c.MaxMessageSize = size
	}
}

// WithSeenCapacity 设置去重过滤器容量
func WithSeenCapacity(capacity int) Option {
	return func(c *Config) {
		c.SeenCapacity = capacity
	}
}

// WithOutboundQueueSize 设置每个节点的出站队列长度
func WithOutboundQueueSize(size int) Option {
	return func(c *Config) {
		c.OutboundQueueSize = size
	}
}

// WithQueueFullPolicy 设置出站队列满时的丢弃策略
func WithQueueFullPolicy(policy QueueFullPolicy) Option {
	return func(c *Config) {
		c.QueueFullPolicy = policy
	}
}

// WithNegotiationTimeout 设置出站流协商超时
func WithNegotiationTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.NegotiationTimeout = timeout
	}
}

// WithSubscriptionBufferSize 设置本地订阅缓冲区
func WithSubscriptionBufferSize(size int) Option {
	return func(c *Config) {
		c.SubscriptionBufferSize = size
	}
}

// WithDeliverLocalMessages 本地订阅也接收本节点发布的消息
func WithDeliverLocalMessages(enable bool) Option {
	return func(c *Config) {
		c.DeliverLocalMessages = enable
	}
}

// WithClock 注入时钟
func WithClock(clk clock.Clock) Option {
	return func(c *Config) {
		c.Clock = clk
	}
}

// WithRegisterer 设置 Prometheus 注册器
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registerer = reg
	}
}
