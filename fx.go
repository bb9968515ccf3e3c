package floodsub

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-floodsub/internal/core/eventbus"
	"github.com/dep2p/go-floodsub/internal/core/host"
	"github.com/dep2p/go-floodsub/internal/core/identity"
	fsimpl "github.com/dep2p/go-floodsub/internal/protocol/floodsub"
	"github.com/dep2p/go-floodsub/pkg/lib/log"
)

var fxLogger = log.Logger("floodsub/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：Identity → EventBus → Host → FloodSub
func buildFxApp(o *options, node *Node) (*fx.App, error) {
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	zl := zap.NewNop()
	if o.fxDebug {
		dev, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("fx logger: %w", err)
		}
		zl = dev
	}

	modules := []fx.Option{
		fx.Supply(o.config),

		identity.Module(),
		eventbus.Module(),
		host.Module(),
		fsimpl.Module(),

		fx.Populate(&node.id, &node.host, &node.pubsub),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zl}
		}),
	}

	if o.registerer != nil {
		reg := o.registerer
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return reg }))
	}
	modules = append(modules, o.fxOptions...)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	fxLogger.Debug("Fx 应用构建完成", "custom_options", len(o.fxOptions))
	return app, nil
}
