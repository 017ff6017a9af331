package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Logger *zap.Logger
	level  = zap.NewAtomicLevel()
)

// Options 日志配置
type Options struct {
	Env   string
	Level string
}

// OptionsFromEnv 从环境变量读取 ENV 与 LOG_LEVEL
func OptionsFromEnv() Options {
	return Options{Env: os.Getenv("ENV"), Level: os.Getenv("LOG_LEVEL")}
}

// InitLogger 初始化日志系统
func InitLogger(opts Options) error {
	level.SetLevel(parseLevel(opts.Level))
	l, err := build(opts, level)
	if err != nil {
		return err
	}
	Logger = l
	zap.ReplaceGlobals(Logger)
	return nil
}

// New 按配置构建 zap.Logger
func New(opts Options) (*zap.Logger, error) {
	return build(opts, zap.NewAtomicLevelAt(parseLevel(opts.Level)))
}

func build(opts Options, lvl zap.AtomicLevel) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	// 开发环境使用可读输出
	if opts.Env == "development" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.Level = lvl
	return config.Build()
}

// SetLevel 调整 InitLogger 创建的全局日志级别
func SetLevel(l string) {
	level.SetLevel(parseLevel(l))
}

func parseLevel(level string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil || level == "" {
		return zapcore.InfoLevel
	}
	return lvl
}

// GetLogger 获取Logger实例
func GetLogger() *zap.Logger {
	if Logger == nil {
		Logger, _ = zap.NewProduction()
	}
	return Logger
}

// Named 带组件名的子 logger
func Named(component string) *zap.Logger {
	return GetLogger().Named(component)
}

// Sync 同步日志缓冲区
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// Info 记录Info级别日志
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Error 记录Error级别日志
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Debug 记录Debug级别日志
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn 记录Warn级别日志
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Fatal 记录Fatal级别日志并退出程序
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}
