package logger

import (
	"sync"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var (
	botInstance *tgbotapi.BotAPI
	adminChatID int64
	once        sync.Once
)

// InitNotifier инициализирует Telegram-уведомления об ошибках
func InitNotifier(bot *tgbotapi.BotAPI, chatID int64) {
	once.Do(func() {
		botInstance = bot
		adminChatID = chatID
	})
}

// NotifyAdmin отправляет критическое уведомление в сервисный чат
func NotifyAdmin(msg string) {
	if botInstance == nil || adminChatID == 0 {
		return
	}
	botInstance.Send(tgbotapi.NewMessage(adminChatID, "[ALERT] "+msg))
}

// NotifyOnPanic ловит панику, логирует и уведомляет
func NotifyOnPanic(context string) {
	if r := recover(); r != nil {
		NotifyAdmin("Panic in " + context + ": " + toString(r))
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if e, ok := v.(error); ok {
		return e.Error()
	}
	return "panic: unknown error"
}
