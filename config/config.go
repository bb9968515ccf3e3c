// Package config 提供节点进程的统一配置
//
// 主 Config 嵌入各组件的子配置，每个子配置在独立文件中定义，
// 并各自提供 DefaultXxxConfig 与 Validate。配置文件为 JSON：
//
//	{
//	  "identity":  {"key_file": "node.key"},
//	  "transport": {"listen_addr": "0.0.0.0:4001"},
//	  "floodsub":  {"queue_full_policy": "drop-oldest"},
//	  "known_peers": ["12D3...@10.0.0.2:4001"],
//	  "topics": ["news"]
//	}
//
// 组件通过各自 module.go 中的 ConfigFromUnified 读取本包配置。
package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("config: invalid config")

// Config 节点完整配置
type Config struct {
	// Identity 身份配置
	Identity IdentityConfig `json:"identity"`

	// Transport 传输层配置
	Transport TransportConfig `json:"transport"`

	// FloodSub 发布订阅配置
	FloodSub FloodSubConfig `json:"floodsub"`

	// Metrics 指标导出配置
	Metrics MetricsConfig `json:"metrics"`

	// Log 日志配置
	Log LogConfig `json:"log"`

	// KnownPeers 启动时直接连接的节点，格式 host:port 或 peerID@host:port
	KnownPeers []string `json:"known_peers,omitempty"`

	// Topics 启动时订阅的主题
	Topics []string `json:"topics,omitempty"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Identity:  DefaultIdentityConfig(),
		Transport: DefaultTransportConfig(),
		FloodSub:  DefaultFloodSubConfig(),
		Metrics:   DefaultMetricsConfig(),
		Log:       DefaultLogConfig(),
	}
}

// Validate 验证全部子配置
func (c *Config) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if err := c.FloodSub.Validate(); err != nil {
		return fmt.Errorf("floodsub: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	for _, addr := range c.KnownPeers {
		if strings.TrimSpace(addr) == "" {
			return fmt.Errorf("%w: empty known peer address", ErrInvalidConfig)
		}
	}
	for _, topic := range c.Topics {
		if topic == "" {
			return fmt.Errorf("%w: empty topic", ErrInvalidConfig)
		}
	}
	return nil
}
