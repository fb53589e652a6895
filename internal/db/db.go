package db

import (
	"errors"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Store владеет всеми персистентными данными бота. Весь доступ к админам,
// отчётам и журналу идёт только через его методы.
type Store struct {
	db *gorm.DB
}

// InitStore открывает БД и выполняет миграции, ошибка фатальна
func InitStore(dsn string) *Store {
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	if err := gdb.AutoMigrate(&Admin{}, &UsageReport{}, &ActionLog{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}
	return &Store{db: gdb}
}

// GetAdmin ищет активного админа по telegram id владельца
func (s *Store) GetAdmin(userID int64) (*Admin, error) {
	var admin Admin
	err := s.db.Where("user_id = ? AND is_active = true", userID).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

// GetAdminByID ищет админа по внутреннему id, включая неактивных
func (s *Store) GetAdminByID(id uint) (*Admin, error) {
	var admin Admin
	err := s.db.First(&admin, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

// GetAllAdmins возвращает всех админов, включая неактивных
func (s *Store) GetAllAdmins() ([]Admin, error) {
	var admins []Admin
	if err := s.db.Order("id").Find(&admins).Error; err != nil {
		return nil, err
	}
	return admins, nil
}

// AddAdmin регистрирует нового админа
func (s *Store) AddAdmin(admin *Admin) error {
	if admin.CreatedAt.IsZero() {
		admin.CreatedAt = time.Now().UTC()
	}
	admin.IsActive = true
	return s.db.Create(admin).Error
}

// DeactivateAdmin мягко отключает панель, история отчётов сохраняется
func (s *Store) DeactivateAdmin(id uint) error {
	return s.db.Model(&Admin{}).Where("id = ?", id).Update("is_active", false).Error
}

func (s *Store) ActivateAdmin(id uint) error {
	return s.db.Model(&Admin{}).Where("id = ?", id).Update("is_active", true).Error
}

// UpdateAdminLimits меняет потолки квот, 0 означает "без ограничений"
func (s *Store) UpdateAdminLimits(id uint, maxUsers int, maxTotalTime, maxTotalTraffic int64) error {
	return s.db.Model(&Admin{}).Where("id = ?", id).Updates(map[string]interface{}{
		"max_users":         maxUsers,
		"max_total_time":    maxTotalTime,
		"max_total_traffic": maxTotalTraffic,
	}).Error
}

// AddUsageReport добавляет снимок потребления, записи никогда не изменяются
func (s *Store) AddUsageReport(report *UsageReport) error {
	return s.db.Create(report).Error
}

func (s *Store) AddLog(entry *ActionLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	return s.db.Create(entry).Error
}

// GetRecentReports возвращает последние отчёты по админу, новые первыми
func (s *Store) GetRecentReports(adminUserID int64, limit int) ([]UsageReport, error) {
	var reports []UsageReport
	err := s.db.Where("admin_user_id = ?", adminUserID).
		Order("check_time desc").Limit(limit).Find(&reports).Error
	if err != nil {
		return nil, err
	}
	return reports, nil
}

func (s *Store) GetRecentLogs(limit int) ([]ActionLog, error) {
	var logs []ActionLog
	if err := s.db.Order("timestamp desc").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
