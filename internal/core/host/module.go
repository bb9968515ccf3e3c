package host

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-floodsub/config"
	"github.com/dep2p/go-floodsub/internal/core/identity"
	pkgif "github.com/dep2p/go-floodsub/pkg/interfaces"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Identity *identity.Identity
	EventBus pkgif.EventBus
	Config   *Config `optional:"true"`

	// 统一配置，仅在 Config 未提供时使用
	UnifiedCfg *config.Config `optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Host    pkgif.Host
	Service *Host
}

// WithConfig 用完整配置覆盖默认值
func WithConfig(cfg *Config) Option {
	return func(c *Config) {
		if cfg != nil {
			*c = *cfg
		}
	}
}

// ConfigFromUnified 从统一配置创建 Host 配置
func ConfigFromUnified(cfg *config.Config) *Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	t := cfg.Transport
	out.ListenAddr = t.ListenAddr
	out.DialTimeout = t.DialTimeout.Duration()
	out.HandshakeTimeout = t.HandshakeTimeout.Duration()
	out.NegotiationTimeout = t.NegotiationTimeout.Duration()
	out.KeepAliveInterval = t.KeepAliveInterval.Duration()
	return out
}

// ProvideHost 提供 Host 服务
func ProvideHost(input ModuleInput) (ModuleOutput, error) {
	cfg := input.Config
	if cfg == nil && input.UnifiedCfg != nil {
		cfg = ConfigFromUnified(input.UnifiedCfg)
	}
	h, err := New(input.Identity, input.EventBus, WithConfig(cfg))
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Host: h, Service: h}, nil
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("host",
		fx.Provide(ProvideHost),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In

	LC   fx.Lifecycle
	Host *Host
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return input.Host.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return input.Host.Close()
		},
	})
}
