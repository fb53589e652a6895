package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	BotToken           string
	SudoAdmins         []int64
	AdminChatID        int64
	MarzbanURL         string
	MarzbanUsername    string
	MarzbanPassword    string
	DatabaseURL        string
	MonitoringInterval int     // секунды между циклами мониторинга
	WarningThreshold   float64 // информационный порог, сами уровни фиксированы
	AutoDeleteExpired  bool
	BackupDir          string
	BackupInterval     string // daily | weekly | monthly
	DBServiceName      string
	MarzbanServicePath string
	APITimeout         int // секунды на один запрос к панели
}

var AppCfg AppConfig

// BackupCronExpr возвращает cron-выражение для интервала бэкапа
func (c *AppConfig) BackupCronExpr() string {
	switch c.BackupInterval {
	case "weekly":
		return "0 0 * * 0"
	case "monthly":
		return "0 0 1 * *"
	default:
		return "0 0 * * *"
	}
}

// LoadConfig загружает конфигурацию из .env / окружения, ошибки фатальны
func LoadConfig() {
	err := godotenv.Load()
	if err != nil {
		log.Println(".env file not found, relying on environment variables")
	}

	AppCfg.BotToken = os.Getenv("BOT_TOKEN")
	AppCfg.MarzbanURL = strings.TrimRight(os.Getenv("MARZBAN_URL"), "/")
	AppCfg.MarzbanUsername = os.Getenv("MARZBAN_USERNAME")
	AppCfg.MarzbanPassword = os.Getenv("MARZBAN_PASSWORD")
	AppCfg.DatabaseURL = os.Getenv("DATABASE_URL")
	AppCfg.BackupDir = getEnvDefault("BACKUP_DIR", "backups")
	AppCfg.DBServiceName = getEnvDefault("DB_SERVICE_NAME", "mysql")
	AppCfg.MarzbanServicePath = getEnvDefault("MARZBAN_SERVICE_PATH", "/opt/marzban")

	if AppCfg.BotToken == "" || AppCfg.MarzbanURL == "" || AppCfg.MarzbanUsername == "" ||
		AppCfg.MarzbanPassword == "" || AppCfg.DatabaseURL == "" {
		log.Fatal("Critical environment variables are missing. Bot will exit.")
	}

	sudo, err := ParseSudoAdmins(os.Getenv("SUDO_ADMINS"))
	if err != nil {
		log.Fatalf("Invalid SUDO_ADMINS: %v", err)
	}
	if len(sudo) == 0 {
		log.Fatal("SUDO_ADMINS is empty. Bot will exit.")
	}
	AppCfg.SudoAdmins = sudo

	if raw := os.Getenv("ADMIN_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Fatalf("Invalid ADMIN_CHAT_ID: %v", err)
		}
		AppCfg.AdminChatID = id
	}

	AppCfg.MonitoringInterval, err = parseIntDefault("MONITORING_INTERVAL", 600)
	if err != nil || AppCfg.MonitoringInterval < 1 {
		log.Fatal("MONITORING_INTERVAL must be an integer >= 1")
	}

	AppCfg.WarningThreshold = 0.8
	if raw := os.Getenv("WARNING_THRESHOLD"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			log.Fatalf("Invalid WARNING_THRESHOLD: %v", err)
		}
		AppCfg.WarningThreshold = v
	}

	AppCfg.AutoDeleteExpired = parseBool(os.Getenv("AUTO_DELETE_EXPIRED_USERS"))

	AppCfg.BackupInterval, err = ParseBackupInterval(getEnvDefault("BACKUP_INTERVAL", "daily"))
	if err != nil {
		log.Fatalf("Invalid BACKUP_INTERVAL: %v", err)
	}

	AppCfg.APITimeout, err = parseIntDefault("API_TIMEOUT", 30)
	if err != nil || AppCfg.APITimeout < 1 {
		log.Fatal("API_TIMEOUT must be an integer >= 1")
	}
}

// ParseSudoAdmins разбирает список telegram id через запятую
func ParseSudoAdmins(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ParseBackupInterval принимает только символьные интервалы.
// Числовая форма из старых конфигов намеренно отклоняется: её семантика
// не согласована с cron-триггером.
func ParseBackupInterval(raw string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "daily", "weekly", "monthly":
		return v, nil
	}
	if _, err := strconv.Atoi(v); err == nil {
		return "", &IntervalError{Value: raw, Reason: "numeric intervals are not supported, use daily|weekly|monthly"}
	}
	return "", &IntervalError{Value: raw, Reason: "unknown interval, use daily|weekly|monthly"}
}

type IntervalError struct {
	Value  string
	Reason string
}

func (e *IntervalError) Error() string {
	return "backup interval " + strconv.Quote(e.Value) + ": " + e.Reason
}

// IsSudo проверяет, входит ли пользователь в список судо-админов
func IsSudo(userID int64) bool {
	for _, id := range AppCfg.SudoAdmins {
		if id == userID {
			return true
		}
	}
	return false
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseIntDefault(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
