package config

import (
	"fmt"
	"net"
)

// MetricsConfig Prometheus 指标导出配置
type MetricsConfig struct {
	// Enabled 是否启动 /metrics HTTP 端点
	Enabled bool `json:"enabled"`

	// ListenAddr HTTP 监听地址
	ListenAddr string `json:"listen_addr"`
}

// DefaultMetricsConfig 返回默认配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		ListenAddr: "127.0.0.1:9090",
	}
}

// Validate 验证配置
func (c MetricsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("%w: listen_addr: %v", ErrInvalidConfig, err)
	}
	return nil
}
