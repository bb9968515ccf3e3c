package floodsub

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-floodsub/config"
)

// Option 节点配置选项
type Option func(*options) error

// options 内部选项结构
type options struct {
	config     *config.Config
	registerer prometheus.Registerer

	// fxDebug 输出 fx 依赖注入过程日志
	fxDebug   bool
	fxOptions []fx.Option
}

func newOptions() *options {
	return &options{config: config.NewConfig()}
}

// WithConfig 使用完整配置（会被后续选项覆盖）
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		o.config = cfg.Clone()
		return nil
	}
}

// WithListenAddr 设置监听地址，空字符串表示不监听
func WithListenAddr(addr string) Option {
	return func(o *options) error {
		o.config.Transport.ListenAddr = addr
		return nil
	}
}

// WithIdentityFile 设置私钥文件路径
func WithIdentityFile(path string) Option {
	return func(o *options) error {
		o.config.Identity.KeyFile = path
		return nil
	}
}

// WithKnownPeers 启动时连接的节点地址
func WithKnownPeers(addrs ...string) Option {
	return func(o *options) error {
		o.config.KnownPeers = append(o.config.KnownPeers, addrs...)
		return nil
	}
}

// WithQueueFullPolicy 设置出站队列满时的策略：drop-newest 或 drop-oldest
func WithQueueFullPolicy(policy string) Option {
	return func(o *options) error {
		o.config.FloodSub.QueueFullPolicy = policy
		return nil
	}
}

// WithMaxMessageSize 设置单帧最大字节数
func WithMaxMessageSize(size int) Option {
	return func(o *options) error {
		o.config.FloodSub.MaxMessageSize = size
		return nil
	}
}

// WithDeliverLocalMessages 本地订阅也接收本节点发布的消息
func WithDeliverLocalMessages(enable bool) Option {
	return func(o *options) error {
		o.config.FloodSub.DeliverLocalMessages = enable
		return nil
	}
}

// WithRegisterer 设置 Prometheus 注册器
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithFxDebug 输出 fx 依赖注入日志
func WithFxDebug(enable bool) Option {
	return func(o *options) error {
		o.fxDebug = enable
		return nil
	}
}

// WithFxOptions 追加自定义 fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
