// Package eventbus 实现进程内事件总线
package eventbus

import (
	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-floodsub/pkg/interfaces"
)

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("eventbus",
		fx.Provide(ProvideEventBus),
	)
}

// ProvideEventBus 提供 EventBus 实例
func ProvideEventBus() pkgif.EventBus {
	return NewBus()
}
