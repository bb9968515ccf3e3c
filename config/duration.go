// Package config 提供统一的配置管理
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration 配置文件中的时长
//
// JSON 中写作 "10s"、"500ms" 等字符串；整数按纳秒解释，
// 以兼容直接序列化 time.Duration 得到的文档。
type Duration time.Duration

// Duration 返回 time.Duration 值
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return d.Duration().String()
}

// MarshalJSON 总是输出字符串形式
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON 解析字符串或整数纳秒
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, v, err)
		}
		*d = Duration(parsed)
	case float64:
		if v != float64(int64(v)) {
			return fmt.Errorf("%w: duration %v is not whole nanoseconds", ErrInvalidConfig, v)
		}
		*d = Duration(int64(v))
	default:
		return fmt.Errorf("%w: duration must be a string like \"10s\"", ErrInvalidConfig)
	}
	return nil
}

// requirePositive 校验超时类字段大于 0，key 为 JSON 字段名
func (d Duration) requirePositive(key string) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidConfig, key, d)
	}
	return nil
}
