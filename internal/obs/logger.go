package obs

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// InitLogger 配置全局 zerolog：日志级别、输出格式与 service 字段。
// 返回的 logger 同时写入 zlog.Logger，供各组件派生子 logger。
func InitLogger(service, level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = os.Stderr
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	logger := zerolog.New(w).With().Timestamp().Str("service", service).Logger()
	zlog.Logger = logger
	if err != nil {
		logger.Warn().Str("level", level).Msg("unknown log level, falling back to info")
	}
	return logger
}

// Component 派生带 component 字段的子 logger。
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
