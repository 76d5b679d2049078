package logger

import (
	"go.uber.org/zap"
)

// Logger 包装 zap 的 SugaredLogger，供各服务共享。
type Logger struct {
	*zap.SugaredLogger
}

// New 根据 debug 标志构建开发或生产配置的日志器。
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "time"
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.Encoding = "json"
	}
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"

	base, err := cfg.Build(zap.AddCaller())
	if err != nil {
		base = zap.NewExample()
	}
	return &Logger{base.Sugar()}
}

// Nop 返回丢弃所有输出的日志器，主要用于测试。
func Nop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

// Named 返回带有子模块名称的日志器。
func (l *Logger) Named(name string) *Logger {
	if l == nil {
		return Nop().Named(name)
	}
	return &Logger{l.SugaredLogger.Named(name)}
}

// Sync 刷新缓冲区，忽略标准输出不支持 fsync 的错误。
func (l *Logger) Sync() {
	if l == nil {
		return
	}
	_ = l.SugaredLogger.Sync()
}

// With 返回附带固定字段的日志器。
func (l *Logger) With(args ...interface{}) *Logger {
	if l == nil {
		return Nop().With(args...)
	}
	return &Logger{l.SugaredLogger.With(args...)}
}
