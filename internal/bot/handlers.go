package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"Marzban-Panel-Bot/config"
	"Marzban-Panel-Bot/internal/backup"
	"Marzban-Panel-Bot/internal/db"
	"Marzban-Panel-Bot/internal/logger"
	"Marzban-Panel-Bot/internal/marzban"
	"Marzban-Panel-Bot/internal/monitor"
	"Marzban-Panel-Bot/internal/scheduler"
)

// Deps — всё, что нужно обработчикам команд
type Deps struct {
	Store   *db.Store
	Panel   *marzban.Client
	Monitor *monitor.Monitor
	Backup  *backup.Manager
	Orch    *scheduler.Orchestrator
}

var rateLimiter = NewRateLimiter()

func HandleUpdate(botapi *tgbotapi.BotAPI, update tgbotapi.Update, deps *Deps) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID
	cmd := update.Message.Command()
	args := update.Message.CommandArguments()

	if cmd == "" {
		return
	}
	if rateLimiter.IsLimited(userID, "/"+cmd) {
		reply(botapi, chatID, "Слишком часто, попробуйте чуть позже")
		return
	}

	switch cmd {
	case "start":
		msg := tgbotapi.NewMessage(chatID, "Панель управления Marzban. Выберите команду:")
		msg.ReplyMarkup = GetReplyKeyboard(userID)
		botapi.Send(msg)
		return
	case "me":
		handleMe(botapi, chatID, userID, deps)
		return
	}

	// всё остальное только для судо-админов
	if !config.IsSudo(userID) {
		reply(botapi, chatID, "⛔ Вы не авторизованы для этой команды")
		return
	}

	switch cmd {
	case "status":
		handleStatus(botapi, chatID, deps)
	case "admins":
		handleAdmins(botapi, chatID, deps)
	case "add_admin":
		handleAddAdmin(botapi, chatID, args, deps)
	case "disable_admin":
		handleSetActive(botapi, chatID, args, deps, false)
	case "enable_admin":
		handleSetActive(botapi, chatID, args, deps, true)
	case "set_limits":
		handleSetLimits(botapi, chatID, args, deps)
	case "disable_users":
		handleToggleUsers(botapi, chatID, args, deps, false)
	case "enable_users":
		handleToggleUsers(botapi, chatID, args, deps, true)
	case "check":
		handleCheck(botapi, chatID, args, deps)
	case "backup":
		handleBackup(botapi, chatID, deps)
	case "backups":
		handleBackups(botapi, chatID, deps)
	case "restore":
		handleRestore(botapi, chatID, args, deps)
	case "reports":
		handleReports(botapi, chatID, args, deps)
	case "logs":
		handleLogs(botapi, chatID, deps)
	case "test_connection":
		handleTestConnection(botapi, chatID, deps)
	default:
		return
	}
	logger.LogAdminAction(userID, cmd, update.Message.Text)
}

func reply(botapi *tgbotapi.BotAPI, chatID int64, text string) {
	botapi.Send(tgbotapi.NewMessage(chatID, text))
}

func handleStatus(botapi *tgbotapi.BotAPI, chatID int64, deps *Deps) {
	st := deps.Orch.Status()
	var b strings.Builder
	if st.Running {
		b.WriteString("Планировщик: запущен\n")
		fmt.Fprintf(&b, "Задач: %d\n", st.Jobs)
		for name, next := range st.NextRuns {
			fmt.Fprintf(&b, "Следующий запуск %s: %s\n", name, next.Format("2006-01-02 15:04:05"))
		}
	} else {
		b.WriteString("Планировщик: остановлен\n")
	}
	reply(botapi, chatID, b.String())
}

func handleAdmins(botapi *tgbotapi.BotAPI, chatID int64, deps *Deps) {
	admins, err := deps.Store.GetAllAdmins()
	if err != nil {
		reply(botapi, chatID, "Ошибка чтения списка админов: "+err.Error())
		return
	}
	if len(admins) == 0 {
		reply(botapi, chatID, "Админы не зарегистрированы")
		return
	}
	var b strings.Builder
	for _, a := range admins {
		state := "✅"
		if !a.IsActive {
			state = "🚫"
		}
		fmt.Fprintf(&b, "%s #%d %s (tg %d): users %d, time %ds, traffic %d\n",
			state, a.ID, a.MarzbanUsername, a.UserID, a.MaxUsers, a.MaxTotalTime, a.MaxTotalTraffic)
	}
	reply(botapi, chatID, b.String())
}

// /add_admin <tg_id> <marzban_username> <max_users> <max_days> <max_gb>
func handleAddAdmin(botapi *tgbotapi.BotAPI, chatID int64, args string, deps *Deps) {
	parts := strings.Fields(args)
	if len(parts) != 5 {
		reply(botapi, chatID, "Формат: /add_admin <tg_id> <marzban_username> <max_users> <max_days> <max_gb>")
		return
	}
	userID, err1 := strconv.ParseInt(parts[0], 10, 64)
	maxUsers, err2 := strconv.Atoi(parts[2])
	maxDays, err3 := strconv.Atoi(parts[3])
	maxGB, err4 := strconv.Atoi(parts[4])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil ||
		maxUsers < 0 || maxDays < 0 || maxGB < 0 {
		reply(botapi, chatID, "Числовые аргументы должны быть неотрицательными")
		return
	}
	admin := &db.Admin{
		UserID:          userID,
		MarzbanUsername: parts[1],
		MaxUsers:        maxUsers,
		MaxTotalTime:    int64(maxDays) * 24 * 60 * 60,
		MaxTotalTraffic: int64(maxGB) * 1024 * 1024 * 1024,
	}
	if err := deps.Store.AddAdmin(admin); err != nil {
		reply(botapi, chatID, "Ошибка добавления админа: "+err.Error())
		return
	}
	reply(botapi, chatID, fmt.Sprintf("✅ Админ #%d добавлен", admin.ID))
}

func handleSetActive(botapi *tgbotapi.BotAPI, chatID int64, args string, deps *Deps, active bool) {
	id, err := parseAdminID(args)
	if err != nil {
		reply(botapi, chatID, "Формат: /disable_admin <id> или /enable_admin <id>")
		return
	}
	if active {
		err = deps.Store.ActivateAdmin(id)
	} else {
		err = deps.Store.DeactivateAdmin(id)
	}
	if err != nil {
		reply(botapi, chatID, "Ошибка: "+err.Error())
		return
	}
	if active {
		reply(botapi, chatID, "✅ Панель включена")
	} else {
		reply(botapi, chatID, "🚫 Панель отключена, история отчётов сохранена")
	}
}

// /set_limits <id> <max_users> <max_days> <max_gb>
func handleSetLimits(botapi *tgbotapi.BotAPI, chatID int64, args string, deps *Deps) {
	parts := strings.Fields(args)
	if len(parts) != 4 {
		reply(botapi, chatID, "Формат: /set_limits <id> <max_users> <max_days> <max_gb>")
		return
	}
	id, err1 := strconv.ParseUint(parts[0], 10, 32)
	maxUsers, err2 := strconv.Atoi(parts[1])
	maxDays, err3 := strconv.Atoi(parts[2])
	maxGB, err4 := strconv.Atoi(parts[3])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil ||
		maxUsers < 0 || maxDays < 0 || maxGB < 0 {
		reply(botapi, chatID, "Числовые аргументы должны быть неотрицательными")
		return
	}
	err := deps.Store.UpdateAdminLimits(uint(id), maxUsers,
		int64(maxDays)*24*60*60, int64(maxGB)*1024*1024*1024)
	if err != nil {
		reply(botapi, chatID, "Ошибка: "+err.Error())
		return
	}
	reply(botapi, chatID, "✅ Лимиты обновлены, применятся со следующего цикла")
}

// handleToggleUsers массово отключает или включает пользователей панели
// у конкретного админа — рычаг принуждения при исчерпанных лимитах
func handleToggleUsers(botapi *tgbotapi.BotAPI, chatID int64, args string, deps *Deps, enable bool) {
	id, err := parseAdminID(args)
	if err != nil {
		reply(botapi, chatID, "Формат: /disable_users <id> или /enable_users <id>")
		return
	}
	admin, err := deps.Store.GetAdminByID(id)
	if err != nil || admin == nil {
		reply(botapi, chatID, "Панель не найдена")
		return
	}
	username := monitor.PanelUsername(admin)

	var done, failed int
	var action string
	if enable {
		done, failed, err = deps.Panel.ActivateAllDisabledUsers(username)
		action = "enable_users"
	} else {
		done, failed, err = deps.Panel.DisableAllActiveUsers(username)
		action = "disable_users"
	}
	if err != nil {
		reply(botapi, chatID, "❌ Ошибка запроса к панели: "+err.Error())
		return
	}
	deps.Store.AddLog(&db.ActionLog{
		AdminUserID: &admin.UserID,
		Action:      action,
		Details:     fmt.Sprintf("%s for panel %s: %d ok, %d failed", action, username, done, failed),
		Timestamp:   time.Now(),
	})
	if enable {
		reply(botapi, chatID, fmt.Sprintf("✅ Включено пользователей: %d (ошибок: %d)", done, failed))
	} else {
		reply(botapi, chatID, fmt.Sprintf("🚫 Отключено пользователей: %d (ошибок: %d)", done, failed))
	}
}

func handleCheck(botapi *tgbotapi.BotAPI, chatID int64, args string, deps *Deps) {
	id, err := parseAdminID(args)
	if err != nil {
		reply(botapi, chatID, "Формат: /check <id>")
		return
	}
	result := deps.Monitor.CheckAdminLimitsByID(id)
	if result.AdminID == 0 {
		reply(botapi, chatID, "Панель не найдена или проверка не удалась")
		return
	}
	state := "в норме"
	if result.Exceeded {
		state = "⛔ лимиты исчерпаны"
	} else if result.Warning {
		state = "⚠️ приближение к лимиту"
	}
	text := fmt.Sprintf("Панель #%d: %s\nusers: %.0f%% (%d/%d)\ntraffic: %.0f%%\ntime: %.0f%%",
		result.AdminID, state,
		result.UserPercentage*100, result.CurrentUsers, result.MaxUsers,
		result.TrafficPercentage*100, result.TimePercentage*100)
	reply(botapi, chatID, text)
}

func handleBackup(botapi *tgbotapi.BotAPI, chatID int64, deps *Deps) {
	reply(botapi, chatID, "Создаю бэкап...")
	filename, err := deps.Backup.CreateSnapshot(false)
	if err != nil {
		reply(botapi, chatID, "❌ Ошибка создания бэкапа: "+err.Error())
		return
	}
	deps.Store.AddLog(&db.ActionLog{
		Action:    "manual_backup",
		Details:   "Manual backup created: " + filename,
		Timestamp: time.Now(),
	})
	reply(botapi, chatID, "✅ Бэкап создан: "+filename)
}

func handleBackups(botapi *tgbotapi.BotAPI, chatID int64, deps *Deps) {
	names, err := deps.Backup.ListSnapshots()
	if err != nil {
		reply(botapi, chatID, "Ошибка: "+err.Error())
		return
	}
	if len(names) == 0 {
		reply(botapi, chatID, "Бэкапов пока нет")
		return
	}
	reply(botapi, chatID, strings.Join(names, "\n"))
}

func handleRestore(botapi *tgbotapi.BotAPI, chatID int64, args string, deps *Deps) {
	filename := strings.TrimSpace(args)
	if filename == "" {
		reply(botapi, chatID, "Формат: /restore <файл из /backups>")
		return
	}
	reply(botapi, chatID, "Восстанавливаю из "+filename+"...")
	if err := deps.Backup.RestoreSnapshot(filename); err != nil {
		reply(botapi, chatID, "❌ Ошибка восстановления: "+err.Error())
		return
	}
	deps.Store.AddLog(&db.ActionLog{
		Action:    "backup_restore",
		Details:   "Backup restored: " + filename,
		Timestamp: time.Now(),
	})
	reply(botapi, chatID, "✅ Восстановление завершено")
}

func handleReports(botapi *tgbotapi.BotAPI, chatID int64, args string, deps *Deps) {
	userID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		reply(botapi, chatID, "Формат: /reports <tg_id>")
		return
	}
	reports, err := deps.Store.GetRecentReports(userID, 10)
	if err != nil {
		reply(botapi, chatID, "Ошибка: "+err.Error())
		return
	}
	if len(reports) == 0 {
		reply(botapi, chatID, "Отчётов по этой панели ещё нет")
		return
	}
	var b strings.Builder
	for _, r := range reports {
		fmt.Fprintf(&b, "%s: users=%d traffic=%d time=%ds\n",
			r.CheckTime.Format("01-02 15:04"), r.CurrentUsers, r.CurrentTotalTraffic, r.CurrentTotalTime)
	}
	reply(botapi, chatID, b.String())
}

func handleLogs(botapi *tgbotapi.BotAPI, chatID int64, deps *Deps) {
	logs, err := deps.Store.GetRecentLogs(15)
	if err != nil {
		reply(botapi, chatID, "Ошибка: "+err.Error())
		return
	}
	if len(logs) == 0 {
		reply(botapi, chatID, "Журнал пуст")
		return
	}
	var b strings.Builder
	for _, l := range logs {
		fmt.Fprintf(&b, "%s [%s] %s\n", l.Timestamp.Format("01-02 15:04"), l.Action, l.Details)
	}
	reply(botapi, chatID, b.String())
}

func handleTestConnection(botapi *tgbotapi.BotAPI, chatID int64, deps *Deps) {
	if deps.Panel.TestConnection() {
		reply(botapi, chatID, "✅ Панель доступна")
	} else {
		reply(botapi, chatID, "❌ Панель недоступна")
	}
}

// handleMe показывает админу его собственное последнее потребление
func handleMe(botapi *tgbotapi.BotAPI, chatID int64, userID int64, deps *Deps) {
	admin, err := deps.Store.GetAdmin(userID)
	if err != nil {
		reply(botapi, chatID, "Ошибка: "+err.Error())
		return
	}
	if admin == nil {
		reply(botapi, chatID, "⛔ За вами не закреплена панель")
		return
	}
	reports, err := deps.Store.GetRecentReports(userID, 1)
	if err != nil || len(reports) == 0 {
		reply(botapi, chatID, "Данных о потреблении ещё нет, подождите следующего цикла")
		return
	}
	r := reports[0]
	text := fmt.Sprintf("Панель %s\nПользователи: %d (лимит %d)\nТрафик: %d байт (лимит %d)\nВремя: %ds (лимит %d)",
		admin.MarzbanUsername, r.CurrentUsers, admin.MaxUsers,
		r.CurrentTotalTraffic, admin.MaxTotalTraffic, r.CurrentTotalTime, admin.MaxTotalTime)
	reply(botapi, chatID, text)
}

func parseAdminID(args string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(args), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
