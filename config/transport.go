package config

import (
	"fmt"
	"net"
	"time"
)

// TransportConfig 传输层配置
type TransportConfig struct {
	// ListenAddr 监听地址（host:port），为空时不监听
	ListenAddr string `json:"listen_addr"`

	// DialTimeout 拨号超时
	DialTimeout Duration `json:"dial_timeout"`

	// HandshakeTimeout 身份交换超时
	HandshakeTimeout Duration `json:"handshake_timeout"`

	// NegotiationTimeout 入站流协议协商超时
	NegotiationTimeout Duration `json:"negotiation_timeout"`

	// KeepAliveInterval yamux 保活间隔，0 表示关闭
	KeepAliveInterval Duration `json:"keep_alive_interval"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ListenAddr:         "0.0.0.0:4001",
		DialTimeout:        Duration(10 * time.Second),
		HandshakeTimeout:   Duration(5 * time.Second),
		NegotiationTimeout: Duration(10 * time.Second),
		KeepAliveInterval:  Duration(30 * time.Second),
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	if c.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
			return fmt.Errorf("%w: listen_addr: %v", ErrInvalidConfig, err)
		}
	}
	for key, d := range map[string]Duration{
		"dial_timeout":        c.DialTimeout,
		"handshake_timeout":   c.HandshakeTimeout,
		"negotiation_timeout": c.NegotiationTimeout,
	} {
		if err := d.requirePositive(key); err != nil {
			return err
		}
	}
	if c.KeepAliveInterval < 0 {
		return fmt.Errorf("%w: keep_alive_interval must not be negative", ErrInvalidConfig)
	}
	return nil
}
