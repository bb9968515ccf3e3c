package config

import (
	"fmt"
	"time"
)

// 队列满策略取值
const (
	QueueFullDropNewest = "drop-newest"
	QueueFullDropOldest = "drop-oldest"
)

// FloodSubConfig 洪泛发布订阅配置
type FloodSubConfig struct {
	// MaxMessageSize 单帧最大字节数
	MaxMessageSize int `json:"max_message_size"`

	// SeenCapacity 去重过滤器容量
	SeenCapacity int `json:"seen_capacity"`

	// OutboundQueueSize 每个节点的出站队列长度
	OutboundQueueSize int `json:"outbound_queue_size"`

	// QueueFullPolicy 出站队列满时的策略：drop-newest 或 drop-oldest
	QueueFullPolicy string `json:"queue_full_policy"`

	// NegotiationTimeout 出站流协商超时
	NegotiationTimeout Duration `json:"negotiation_timeout"`

	// SubscriptionBufferSize 本地订阅缓冲区大小
	SubscriptionBufferSize int `json:"subscription_buffer_size"`

	// DeliverLocalMessages 本地发布的消息是否投递给本地订阅
	DeliverLocalMessages bool `json:"deliver_local_messages"`
}

// DefaultFloodSubConfig 返回默认配置
func DefaultFloodSubConfig() FloodSubConfig {
	return FloodSubConfig{
		MaxMessageSize:         1 << 20,
		SeenCapacity:           4096,
		OutboundQueueSize:      64,
		QueueFullPolicy:        QueueFullDropNewest,
		NegotiationTimeout:     Duration(10 * time.Second),
		SubscriptionBufferSize: 32,
	}
}

// Validate 验证配置
func (c FloodSubConfig) Validate() error {
	switch {
	case c.MaxMessageSize <= 0:
		return fmt.Errorf("%w: max_message_size must be positive", ErrInvalidConfig)
	case c.SeenCapacity <= 0:
		return fmt.Errorf("%w: seen_capacity must be positive", ErrInvalidConfig)
	case c.OutboundQueueSize <= 0:
		return fmt.Errorf("%w: outbound_queue_size must be positive", ErrInvalidConfig)
	case c.SubscriptionBufferSize <= 0:
		return fmt.Errorf("%w: subscription_buffer_size must be positive", ErrInvalidConfig)
	}
	if err := c.NegotiationTimeout.requirePositive("negotiation_timeout"); err != nil {
		return err
	}
	switch c.QueueFullPolicy {
	case "", QueueFullDropNewest, QueueFullDropOldest:
	default:
		return fmt.Errorf("%w: unknown queue_full_policy %q", ErrInvalidConfig, c.QueueFullPolicy)
	}
	return nil
}
