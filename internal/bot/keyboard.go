package bot

import (
	"Marzban-Panel-Bot/config"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func GetReplyKeyboard(userID int64) tgbotapi.ReplyKeyboardMarkup {
	if config.IsSudo(userID) {
		return tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton("/status"),
				tgbotapi.NewKeyboardButton("/admins"),
				tgbotapi.NewKeyboardButton("/logs"),
			),
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton("/backup"),
				tgbotapi.NewKeyboardButton("/backups"),
				tgbotapi.NewKeyboardButton("/test_connection"),
			),
		)
	}
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/me"),
		),
	)
}
