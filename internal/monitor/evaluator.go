package monitor

import (
	"time"

	"Marzban-Panel-Bot/internal/db"
)

// LiveStats — текущие показатели админа, полученные от панели
type LiveStats struct {
	TotalUsers       int
	TotalTrafficUsed int64
}

// LimitCheckResult — результат одной проверки лимитов. Не сохраняется,
// живёт от вычисления до отправки уведомления.
type LimitCheckResult struct {
	AdminUserID int64
	AdminID     uint
	Exceeded    bool
	Warning     bool

	UserPercentage    float64
	TrafficPercentage float64
	TimePercentage    float64

	CurrentUsers   int
	MaxUsers       int
	CurrentTraffic int64
	MaxTraffic     int64
	CurrentTime    int64 // секунды с момента создания панели
	MaxTime        int64
}

// MaxPercentage возвращает наибольший из трёх процентов
func (r LimitCheckResult) MaxPercentage() float64 {
	max := r.UserPercentage
	if r.TrafficPercentage > max {
		max = r.TrafficPercentage
	}
	if r.TimePercentage > max {
		max = r.TimePercentage
	}
	return max
}

// Контрольные уровни предупреждений: пересечение любого из них
// при значении ниже 1.0 даёт warning
var warningLevels = []float64{0.6, 0.7, 0.8, 0.9}

// percentage считает долю потребления, нулевой потолок = без ограничений
func percentage(current, max float64) float64 {
	if max > 0 {
		return current / max
	}
	return 0
}

func warningAt(p float64) bool {
	for _, level := range warningLevels {
		if p >= level && p < 1.0 {
			return true
		}
	}
	return false
}

// Evaluate — чистая проверка лимитов админа по живой статистике.
// Не ходит ни в панель, ни в БД.
func Evaluate(admin *db.Admin, stats LiveStats, now time.Time) LimitCheckResult {
	elapsed := now.Sub(admin.CreatedAt).Seconds()

	timePct := percentage(elapsed, float64(admin.MaxTotalTime))
	userPct := percentage(float64(stats.TotalUsers), float64(admin.MaxUsers))
	trafficPct := percentage(float64(stats.TotalTrafficUsed), float64(admin.MaxTotalTraffic))

	exceeded := timePct >= 1.0 || userPct >= 1.0 || trafficPct >= 1.0
	warning := warningAt(timePct) || warningAt(userPct) || warningAt(trafficPct)

	return LimitCheckResult{
		AdminUserID:       admin.UserID,
		AdminID:           admin.ID,
		Exceeded:          exceeded,
		Warning:           warning,
		UserPercentage:    userPct,
		TrafficPercentage: trafficPct,
		TimePercentage:    timePct,
		CurrentUsers:      stats.TotalUsers,
		MaxUsers:          admin.MaxUsers,
		CurrentTraffic:    stats.TotalTrafficUsed,
		MaxTraffic:        admin.MaxTotalTraffic,
		CurrentTime:       int64(elapsed),
		MaxTime:           admin.MaxTotalTime,
	}
}
