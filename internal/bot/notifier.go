package bot

import (
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier — транспорт исходящих уведомлений ядра
type TelegramNotifier struct {
	bot *tgbotapi.BotAPI
}

func NewNotifier(botapi *tgbotapi.BotAPI) *TelegramNotifier {
	return &TelegramNotifier{bot: botapi}
}

func (n *TelegramNotifier) SendMessage(chatID int64, text string) error {
	_, err := n.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
