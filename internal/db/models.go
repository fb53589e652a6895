package db

import "time"

// Admin — делегированный админ панели со своими лимитами.
// Лимит 0 означает "без ограничений".
type Admin struct {
	ID              uint   `gorm:"primaryKey"`
	UserID          int64  `gorm:"index"` // telegram id владельца
	Username        string // telegram username, может быть пустым
	MarzbanUsername string
	IsActive        bool `gorm:"default:true"`
	MaxUsers        int
	MaxTotalTime    int64 // секунды
	MaxTotalTraffic int64 // байты
	CreatedAt       time.Time
}

// UsageReport — снимок потребления на момент проверки, только добавляется
type UsageReport struct {
	ID                  uint `gorm:"primaryKey"`
	AdminUserID         int64
	CheckTime           time.Time
	CurrentUsers        int
	CurrentTotalTime    int64
	CurrentTotalTraffic int64
	UsersData           string // сериализованные детали, ядром не интерпретируются
}

// ActionLog — журнал действий и системных событий
type ActionLog struct {
	ID          uint   `gorm:"primaryKey"`
	AdminUserID *int64 // nil для системных записей
	Action      string
	Details     string
	Timestamp   time.Time
}
