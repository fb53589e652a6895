package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"Marzban-Panel-Bot/config"
	"Marzban-Panel-Bot/internal/backup"
	"Marzban-Panel-Bot/internal/bot"
	"Marzban-Panel-Bot/internal/db"
	"Marzban-Panel-Bot/internal/logger"
	"Marzban-Panel-Bot/internal/marzban"
	"Marzban-Panel-Bot/internal/monitor"
	"Marzban-Panel-Bot/internal/scheduler"
)

func main() {
	config.LoadConfig()
	store := db.InitStore(config.AppCfg.DatabaseURL)

	botapi, err := tgbotapi.NewBotAPI(config.AppCfg.BotToken)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}
	logger.InitNotifier(botapi, config.AppCfg.AdminChatID)
	defer logger.Sync()

	// --- Логирование в файл и консоль ---
	logFile, err := os.OpenFile("bot.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatalf("Не удалось открыть файл логов: %v", err)
	}
	mw := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(mw)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	panel := marzban.NewClient(
		config.AppCfg.MarzbanURL,
		config.AppCfg.MarzbanUsername,
		config.AppCfg.MarzbanPassword,
		time.Duration(config.AppCfg.APITimeout)*time.Second,
	)
	if err := panel.Login(); err != nil {
		log.Fatalf("Marzban panel authentication failed: %v", err)
	}

	notifier := bot.NewNotifier(botapi)
	mon := monitor.New(store, panel, notifier)
	mon.AutoDeleteExpired = config.AppCfg.AutoDeleteExpired

	backupMgr := backup.NewManager(config.AppCfg.BackupDir, config.AppCfg.MarzbanServicePath)

	orch := scheduler.New(mon, backupMgr, store, notifier,
		time.Duration(config.AppCfg.MonitoringInterval)*time.Second,
		config.AppCfg.BackupCronExpr(),
		config.AppCfg.AdminChatID,
	)
	if err := orch.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Чистка старых бэкапов раз в сутки
	go func() {
		for {
			if err := backupMgr.CleanOldSnapshots(31 * 24 * time.Hour); err != nil {
				log.Println("Ошибка чистки старых бэкапов:", err)
			}
			time.Sleep(24 * time.Hour)
		}
	}()

	// health endpoint для внешних проверок
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		if err := http.ListenAndServe(":8080", nil); err != nil {
			log.Fatalf("Health server error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		orch.Stop()
		botapi.StopReceivingUpdates()
	}()

	// Запуск Telegram-бота (polling)
	bot.StartBotWithInstance(botapi, &bot.Deps{
		Store:   store,
		Panel:   panel,
		Monitor: mon,
		Backup:  backupMgr,
		Orch:    orch,
	})
}
