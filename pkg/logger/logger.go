package logger

import (
	"os"

	"go.uber.org/zap"
)

var log *zap.Logger

// Init inicializa el logger global. Con LOG_DEV=true usa la configuración
// de desarrollo (salida legible); en otro caso, JSON estructurado.
func Init() {
	var cfg zap.Config
	if os.Getenv("LOG_DEV") == "true" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "json"
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.MessageKey = "msg"
		cfg.EncoderConfig.LevelKey = "level"
		cfg.EncoderConfig.CallerKey = "caller"
	}

	var err error
	log, err = cfg.Build()
	if err != nil {
		panic(err)
	}
}

// Sugar retorna un logger más “friendly” para usar con printf-like
func Sugar() *zap.SugaredLogger {
	return log.Sugar()
}

// Logger retorna el logger estructurado
func Logger() *zap.Logger {
	return log
}
