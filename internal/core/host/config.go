package host

import (
	"errors"
	"fmt"
	"time"
)

// 默认配置值
const (
	DefaultListenAddr         = "127.0.0.1:0"
	DefaultDialTimeout        = 10 * time.Second
	DefaultHandshakeTimeout   = 5 * time.Second
	DefaultNegotiationTimeout = 10 * time.Second
	DefaultKeepAliveInterval  = 30 * time.Second
	DefaultMaxStreamWindow    = 16 << 20
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("host: invalid config")

// Config Host 配置
type Config struct {
	// ListenAddr 监听地址（host:port），为空时不监听
	ListenAddr string

	// DialTimeout 拨号超时
	DialTimeout time.Duration

	// HandshakeTimeout 身份交换超时
	HandshakeTimeout time.Duration

	// NegotiationTimeout 入站流协议协商超时
	NegotiationTimeout time.Duration

	// KeepAliveInterval yamux 保活间隔，0 表示关闭保活
	KeepAliveInterval time.Duration

	// MaxStreamWindow yamux 单流最大接收窗口
	MaxStreamWindow uint32
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:         DefaultListenAddr,
		DialTimeout:        DefaultDialTimeout,
		HandshakeTimeout:   DefaultHandshakeTimeout,
		NegotiationTimeout: DefaultNegotiationTimeout,
		KeepAliveInterval:  DefaultKeepAliveInterval,
		MaxStreamWindow:    DefaultMaxStreamWindow,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.DialTimeout <= 0 {
		return fmt.Errorf("%w: dial timeout must be positive", ErrInvalidConfig)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: handshake timeout must be positive", ErrInvalidConfig)
	}
	if c.NegotiationTimeout <= 0 {
		return fmt.Errorf("%w: negotiation timeout must be positive", ErrInvalidConfig)
	}
	if c.KeepAliveInterval < 0 {
		return fmt.Errorf("%w: keepalive interval must not be negative", ErrInvalidConfig)
	}
	// yamux 要求窗口不小于初始窗口 256KiB
	if c.MaxStreamWindow < 256*1024 {
		return fmt.Errorf("%w: max stream window must be at least 256KiB", ErrInvalidConfig)
	}
	return nil
}

// Option 配置选项
type Option func(*Config)

// WithListenAddr 设置监听地址
func WithListenAddr(addr string) Option {
	return func(c *Config) {
		c.ListenAddr = addr
	}
}

// WithDialTimeout 设置拨号超时
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DialTimeout = d
	}
}

// WithHandshakeTimeout 设置身份交换超时
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.HandshakeTimeout = d
	}
}

// WithNegotiationTimeout 设置入站协议协商超时
func WithNegotiationTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.NegotiationTimeout = d
	}
}

// WithKeepAliveInterval 设置 yamux 保活间隔
func WithKeepAliveInterval(d time.Duration) Option {
	return func(c *Config) {
		c.KeepAliveInterval = d
	}
}
