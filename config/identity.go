package config

// IdentityConfig 身份配置
type IdentityConfig struct {
	// KeyFile Ed25519 私钥文件路径（PEM）
	// 为空时在内存中生成临时身份；文件不存在时自动生成并保存
	KeyFile string `json:"key_file"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	return nil
}
