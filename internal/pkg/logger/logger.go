package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	mu   sync.RWMutex
	once sync.Once
)

// InitLogger 初始化全局 zap 日志
// outputPath: 日志文件路径，例如 "logs/app.log"
// errorPath: 内部错误输出路径，例如 "logs/error.log"
// level: debug, info, warn, error, dpanic, panic, fatal
func InitLogger(outputPath, errorPath string, level string) {
	once.Do(func() {
		l, err := Build(outputPath, errorPath, level)
		if err != nil {
			panic(fmt.Sprintf("Failed to build zap logger: %v", err))
		}
		SetLogger(l)
	})
}

// Build 按生产配置构造 logger，不修改全局状态
func Build(outputPath, errorPath, level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zap.InfoLevel
		fmt.Fprintf(os.Stderr, "Failed to parse log level '%s', defaulting to info: %v\n", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{outputPath, "stdout"}
	cfg.ErrorOutputPaths = []string{errorPath, "stderr"}
	cfg.Encoding = "json"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	return cfg.Build()
}

// SetLogger 替换全局 logger，测试中可传入 zap.NewNop()
func SetLogger(l *zap.Logger) {
	mu.Lock()
	log = l
	mu.Unlock()
	zap.ReplaceGlobals(l)
}

// 返回全局logger
func GetLogger() *zap.Logger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l != nil {
		return l
	}
	// 未调用 InitLogger 时退化为只写标准输出
	InitLogger("stdout", "stderr", "info")
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// With 返回携带固定字段的子 logger，后台 worker 用它标记自身
func With(fields ...zap.Field) *zap.Logger {
	return GetLogger().With(fields...)
}

func Sugar() *zap.SugaredLogger {
	return GetLogger().Sugar()
}

// 刷新缓冲区,确保程序退出前使用
func Sync() {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l != nil {
		if err := l.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync zap logger: %v\n", err)
		}
	}
}

func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}
