package logger

import (
	"go.uber.org/zap"
)

var log = func() *zap.Logger {
	l, _ := zap.NewProduction()
	return l.Named("marzban-panel-bot")
}()

func Info(msg string, fields ...zap.Field) {
	log.Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	log.Error(msg, fields...)
}

// LogAdminAction фиксирует операторскую команду в общем логе
func LogAdminAction(adminID int64, action, params string) {
	log.Info("admin_action", zap.Int64("admin_id", adminID), zap.String("action", action), zap.String("params", params))
}

// Sync сбрасывает буферы логгера, вызывается при завершении процесса
func Sync() {
	_ = log.Sync()
}
