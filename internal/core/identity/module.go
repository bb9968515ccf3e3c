// Package identity 管理节点身份
package identity

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-floodsub/config"
)

// Config 身份模块配置
type Config struct {
	// Path 私钥文件路径，为空时使用临时身份
	Path string
}

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config *Config `optional:"true"`

	// 统一配置，仅在 Config 未提供时使用
	UnifiedCfg *config.Config `optional:"true"`
}

// ProvideIdentity 提供节点身份
func ProvideIdentity(input ModuleInput) (*Identity, error) {
	var path string
	switch {
	case input.Config != nil:
		path = input.Config.Path
	case input.UnifiedCfg != nil:
		path = input.UnifiedCfg.Identity.KeyFile
	}
	return LoadOrCreate(path)
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideIdentity),
	)
}
