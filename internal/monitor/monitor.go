package monitor

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"Marzban-Panel-Bot/internal/db"
	"Marzban-Panel-Bot/internal/logger"
	"Marzban-Panel-Bot/internal/marzban"
)

// Store — часть хранилища, нужная циклу мониторинга
type Store interface {
	GetAdminByID(id uint) (*db.Admin, error)
	GetAllAdmins() ([]db.Admin, error)
	AddUsageReport(report *db.UsageReport) error
	AddLog(entry *db.ActionLog) error
}

// Panel — операции панели, которые потребляет ядро
type Panel interface {
	GetAdminStats(username string) (*marzban.AdminStats, error)
	GetUsers(username string) ([]marzban.User, error)
	RemoveUser(username string) (bool, error)
}

// Notifier — исходящие сообщения, транспорт задаёт презентационный слой
type Notifier interface {
	SendMessage(chatID int64, text string) error
}

// Monitor выполняет цикл проверки лимитов по всем админам.
// Ошибка по одному админу никогда не прерывает проход.
type Monitor struct {
	store    Store
	panel    Panel
	notifier Notifier

	// AutoDeleteExpired включает чистку истёкших пользователей перед циклом
	AutoDeleteExpired bool

	// Паузы между внешними вызовами, защита панели от шквала запросов
	AdminPace  time.Duration
	RemovePace time.Duration
	BatchPace  time.Duration
}

func New(store Store, panel Panel, notifier Notifier) *Monitor {
	return &Monitor{
		store:      store,
		panel:      panel,
		notifier:   notifier,
		AdminPace:  time.Second,
		RemovePace: 100 * time.Millisecond,
		BatchPace:  500 * time.Millisecond,
	}
}

// PanelUsername выбирает имя панели: marzban username, затем локальный
// username, затем telegram id строкой
func PanelUsername(admin *db.Admin) string {
	if admin.MarzbanUsername != "" {
		return admin.MarzbanUsername
	}
	if admin.Username != "" {
		return admin.Username
	}
	return strconv.FormatInt(admin.UserID, 10)
}

// CheckAdminLimitsByID проверяет лимиты одного админа и пишет отчёт.
// Любая ошибка панели или БД даёт нейтральный результат, не ошибку.
func (m *Monitor) CheckAdminLimitsByID(adminID uint) LimitCheckResult {
	admin, err := m.store.GetAdminByID(adminID)
	if err != nil {
		logger.Error("failed to load admin", zap.Uint("admin_id", adminID), zap.Error(err))
		return LimitCheckResult{}
	}
	if admin == nil {
		return LimitCheckResult{}
	}
	if !admin.IsActive {
		// неактивные панели не опрашиваются и не отчитываются
		return LimitCheckResult{AdminUserID: admin.UserID, AdminID: admin.ID}
	}

	username := PanelUsername(admin)
	stats, err := m.panel.GetAdminStats(username)
	if err != nil {
		logger.Error("failed to fetch admin stats",
			zap.Uint("admin_id", admin.ID), zap.String("username", username), zap.Error(err))
		return LimitCheckResult{AdminUserID: admin.UserID, AdminID: admin.ID}
	}

	now := time.Now().UTC()
	result := Evaluate(admin, LiveStats{
		TotalUsers:       stats.TotalUsers,
		TotalTrafficUsed: stats.TotalTrafficUsed,
	}, now)

	// Отчёт пишется всегда, даже без warning/exceeded: это непрерывный
	// временной ряд по каждой панели
	report := &db.UsageReport{
		AdminUserID:         admin.UserID,
		CheckTime:           now,
		CurrentUsers:        stats.TotalUsers,
		CurrentTotalTime:    result.CurrentTime,
		CurrentTotalTraffic: stats.TotalTrafficUsed,
		UsersData:           "[]",
	}
	if err := m.store.AddUsageReport(report); err != nil {
		logger.Error("failed to persist usage report",
			zap.Uint("admin_id", admin.ID), zap.Error(err))
		return LimitCheckResult{AdminUserID: admin.UserID, AdminID: admin.ID}
	}

	return result
}

// MonitorAllAdmins — один полный цикл по всем админам
func (m *Monitor) MonitorAllAdmins() {
	cycleID := uuid.New().String()[:8]
	logger.Info("monitoring cycle started", zap.String("cycle", cycleID))

	if m.AutoDeleteExpired {
		m.CleanupExpiredUsers()
	}

	admins, err := m.store.GetAllAdmins()
	if err != nil {
		logger.Error("failed to list admins", zap.String("cycle", cycleID), zap.Error(err))
		return
	}

	active := 0
	for _, admin := range admins {
		if admin.IsActive {
			active++
		}
	}
	if active == 0 {
		logger.Info("no active admins to monitor", zap.String("cycle", cycleID))
		return
	}
	logger.Info("monitoring admins", zap.String("cycle", cycleID), zap.Int("active", active))

	for _, admin := range admins {
		result := m.CheckAdminLimitsByID(admin.ID)
		if result.Exceeded {
			m.notifyLimitExceeded(result)
		} else if result.Warning {
			m.notifyLimitWarning(result)
		}
		time.Sleep(m.AdminPace)
	}

	logger.Info("monitoring cycle completed", zap.String("cycle", cycleID))
}

// CleanupExpiredUsers удаляет истёкших пользователей у всех активных админов.
// Возвращает число удалённых. Ошибки по пользователю и по админу изолированы.
func (m *Monitor) CleanupExpiredUsers() int {
	totalCleaned := 0
	admins, err := m.store.GetAllAdmins()
	if err != nil {
		logger.Error("cleanup: failed to list admins", zap.Error(err))
		return 0
	}

	for _, admin := range admins {
		if !admin.IsActive {
			continue
		}
		username := PanelUsername(&admin)
		users, err := m.panel.GetUsers(username)
		if err != nil {
			logger.Error("cleanup: failed to list users",
				zap.Uint("admin_id", admin.ID), zap.String("username", username), zap.Error(err))
			continue
		}
		for _, user := range users {
			if !user.IsExpired() {
				continue
			}
			ok, err := m.panel.RemoveUser(user.Username)
			if err != nil {
				logger.Error("cleanup: failed to remove user",
					zap.String("user", user.Username), zap.Error(err))
				time.Sleep(m.RemovePace)
				continue
			}
			if ok {
				totalCleaned++
				logger.Info("removed expired user",
					zap.String("user", user.Username), zap.String("admin", username))
			}
			time.Sleep(m.RemovePace)
		}
		time.Sleep(m.BatchPace)
	}

	if totalCleaned > 0 {
		entry := &db.ActionLog{
			Action:    "expired_users_cleanup",
			Details:   fmt.Sprintf("Automatically cleaned up %d expired users", totalCleaned),
			Timestamp: time.Now(),
		}
		if err := m.store.AddLog(entry); err != nil {
			logger.Error("cleanup: failed to write log entry", zap.Error(err))
		}
	}
	return totalCleaned
}
