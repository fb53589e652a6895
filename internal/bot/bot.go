package bot

import (
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// StartBotWithInstance запускает Telegram-бота с переданным экземпляром
func StartBotWithInstance(botapi *tgbotapi.BotAPI, deps *Deps) {
	log.Printf("Authorized on account %s", botapi.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := botapi.GetUpdatesChan(u)

	for update := range updates {
		HandleUpdate(botapi, update, deps)
	}
}
