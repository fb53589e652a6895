package monitor

import (
	"fmt"

	"go.uber.org/zap"

	"Marzban-Panel-Bot/internal/logger"
)

// Ошибка доставки логируется и гасится: заблокированный чат не должен
// останавливать цикл мониторинга.

func (m *Monitor) notifyLimitWarning(result LimitCheckResult) {
	if result.AdminUserID == 0 {
		return
	}
	percent := int(result.MaxPercentage() * 100)
	msg := fmt.Sprintf("⚠️ Использовано %d%% лимитов вашей панели. Обратитесь к администратору для расширения.", percent)
	if err := m.notifier.SendMessage(result.AdminUserID, msg); err != nil {
		logger.Error("failed to send limit warning",
			zap.Int64("user_id", result.AdminUserID), zap.Error(err))
	}
}

func (m *Monitor) notifyLimitExceeded(result LimitCheckResult) {
	if result.AdminUserID == 0 {
		return
	}
	msg := "⛔ Лимиты вашей панели исчерпаны. Обратитесь к администратору для продления."
	if err := m.notifier.SendMessage(result.AdminUserID, msg); err != nil {
		logger.Error("failed to send limit exceeded notice",
			zap.Int64("user_id", result.AdminUserID), zap.Error(err))
	}
}
