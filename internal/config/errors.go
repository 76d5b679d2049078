package config

import "fmt"

// ConfigurationError 表示缺少必需的凭证或配置项。
// 这类错误在发出任何网络请求之前返回，重试无意义。
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (%s). Please check your .env file.", e.Reason, e.Key)
}
