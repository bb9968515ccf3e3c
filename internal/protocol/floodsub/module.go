// Package floodsub 实现洪泛发布订阅协议
package floodsub

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-floodsub/config"
	"github.com/dep2p/go-floodsub/pkg/interfaces"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Host interfaces.Host

	// 配置（可选，使用默认配置）
	Config *Config `optional:"true"`

	// 统一配置，仅在 Config 未提供时使用
	UnifiedCfg *config.Config `optional:"true"`

	// 指标注册表（可选）
	Registerer prometheus.Registerer `optional:"true"`
}

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	FloodSub interfaces.FloodSub
	Service  *FloodSub
}

// ProvideFloodSub 提供 FloodSub 服务
func ProvideFloodSub(input ModuleInput) (ModuleOutput, error) {
	var opts []Option
	switch {
	case input.Config != nil:
		opts = append(opts, WithConfig(input.Config))
	case input.UnifiedCfg != nil:
		cfg, err := ConfigFromUnified(input.UnifiedCfg)
		if err != nil {
			return ModuleOutput{}, err
		}
		opts = append(opts, WithConfig(cfg))
	}
	if input.Registerer != nil {
		opts = append(opts, WithRegisterer(input.Registerer))
	}

	fs, err := New(input.Host, opts...)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{FloodSub: fs, Service: fs}, nil
}

// ConfigFromUnified 从统一配置创建 FloodSub 配置
func ConfigFromUnified(cfg *config.Config) (*Config, error) {
	out := DefaultConfig()
	if cfg == nil {
		return out, nil
	}

	fc := cfg.FloodSub
	policy, err := ParseQueueFullPolicy(fc.QueueFullPolicy)
	if err != nil {
		return nil, err
	}
	out.MaxMessageSize = fc.MaxMessageSize
	out.SeenCapacity = fc.SeenCapacity
	out.OutboundQueueSize = fc.OutboundQueueSize
	out.QueueFullPolicy = policy
	out.NegotiationTimeout = fc.NegotiationTimeout.Duration()
	out.SubscriptionBufferSize = fc.SubscriptionBufferSize
	out.DeliverLocalMessages = fc.DeliverLocalMessages
	return out, nil
}

// WithConfig 使用完整配置覆盖默认值
func WithConfig(cfg *Config) Option {
	return func(c *Config) {
		*c = *cfg
		if c.Clock == nil {
			c.Clock = DefaultConfig().Clock
		}
	}
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("floodsub",
		fx.Provide(ProvideFloodSub),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC      fx.Lifecycle
	Service *FloodSub
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return input.Service.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return input.Service.Stop()
		},
	})
}

// 模块元信息常量
const (
	// Version 模块版本
	Version = "1.0.0"
	// Name 模块名称
	Name = "floodsub"
	// Description 模块描述
	Description = "洪泛发布订阅模块，按主题把消息洪泛给所有感兴趣的邻居"
)
