package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"Marzban-Panel-Bot/internal/db"
	"Marzban-Panel-Bot/internal/logger"
	"Marzban-Panel-Bot/internal/monitor"
)

// Имена повторяющихся задач. На каждое имя — не больше одного
// одновременно работающего запуска.
const (
	JobMonitor    = "admin_monitor"
	JobAutoBackup = "auto_backup"
)

// Trigger — расписание задачи, разбирается один раз при регистрации
type Trigger interface {
	Spec() string
}

// FixedInterval запускает задачу каждые N секунд
type FixedInterval time.Duration

func (t FixedInterval) Spec() string {
	return fmt.Sprintf("@every %ds", int(time.Duration(t).Seconds()))
}

// CronLike — стандартное cron-выражение
type CronLike string

func (t CronLike) Spec() string { return string(t) }

// MonitorJob — то, что оркестратор дергает по расписанию мониторинга
type MonitorJob interface {
	MonitorAllAdmins()
}

// Backup — внешний сервис снапшотов
type Backup interface {
	CreateSnapshot(isScheduled bool) (string, error)
}

// Orchestrator владеет таймерной инфраструктурой и двумя задачами:
// мониторинг лимитов и автоматический бэкап
type Orchestrator struct {
	cron        *cron.Cron
	monitor     MonitorJob
	backup      Backup
	store       monitor.Store
	notifier    monitor.Notifier
	adminChatID int64

	monitorTrigger Trigger
	backupTrigger  Trigger

	mu      sync.Mutex
	running bool
	jobs    map[string]cron.EntryID
}

func New(m MonitorJob, b Backup, store monitor.Store, notifier monitor.Notifier,
	monitorInterval time.Duration, backupCron string, adminChatID int64) *Orchestrator {
	return &Orchestrator{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger{}),
		)),
		monitor:        m,
		backup:         b,
		store:          store,
		notifier:       notifier,
		adminChatID:    adminChatID,
		monitorTrigger: FixedInterval(monitorInterval),
		backupTrigger:  CronLike(backupCron),
		jobs:           make(map[string]cron.EntryID),
	}
}

// Register добавляет задачу; повторная регистрация того же имени
// заменяет прежнюю, дубликатов не возникает
func (o *Orchestrator) Register(name string, trigger Trigger, cmd func()) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if old, ok := o.jobs[name]; ok {
		o.cron.Remove(old)
	}
	id, err := o.cron.AddFunc(trigger.Spec(), cmd)
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	o.jobs[name] = id
	return nil
}

// Start регистрирует задачи, запускает таймеры и делает первый прогон
// мониторинга и бэкапа синхронно. Повторный Start — no-op.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		logger.Info("scheduler is already running")
		return nil
	}
	o.mu.Unlock()

	if err := o.Register(JobMonitor, o.monitorTrigger, o.RunMonitor); err != nil {
		return err
	}
	if err := o.Register(JobAutoBackup, o.backupTrigger, o.RunAutoBackup); err != nil {
		return err
	}

	o.cron.Start()
	o.mu.Lock()
	o.running = true
	o.mu.Unlock()
	logger.Info("scheduler started",
		zap.String("monitor", o.monitorTrigger.Spec()),
		zap.String("backup", o.backupTrigger.Spec()))

	// Прогрев: состояние должно быть свежим до первого срабатывания
	// таймера. Запуск идёт через обёрнутую задачу, чтобы затянувшийся
	// прогрев не наложился на первое срабатывание той же задачи.
	o.runWrapped(JobMonitor)
	o.runWrapped(JobAutoBackup)
	return nil
}

// runWrapped синхронно запускает задачу через её cron-обёртку,
// разделяя с плановыми срабатываниями защиту от наложения
func (o *Orchestrator) runWrapped(name string) {
	o.mu.Lock()
	id, ok := o.jobs[name]
	o.mu.Unlock()
	if !ok {
		return
	}
	o.cron.Entry(id).WrappedJob.Run()
}

// Stop останавливает таймеры, не дожидаясь текущих запусков.
// Повторный Stop — no-op.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return
	}
	o.cron.Stop()
	o.running = false
	logger.Info("scheduler stopped")
}

func (o *Orchestrator) RunMonitor() {
	o.monitor.MonitorAllAdmins()
}

// RunAutoBackup создаёт снапшот и фиксирует исход. Успех уведомляет
// сервисный чат, ошибка только логируется — намеренная асимметрия.
func (o *Orchestrator) RunAutoBackup() {
	logger.Info("auto backup started")
	filename, err := o.backup.CreateSnapshot(true)
	if err != nil {
		logger.Error("auto backup failed", zap.Error(err))
		entry := &db.ActionLog{
			Action:    "auto_backup_failed",
			Details:   "Auto backup failed: " + err.Error(),
			Timestamp: time.Now(),
		}
		if logErr := o.store.AddLog(entry); logErr != nil {
			logger.Error("failed to record backup failure", zap.Error(logErr))
		}
		return
	}

	entry := &db.ActionLog{
		Action:    "auto_backup",
		Details:   "Auto backup created: " + filename,
		Timestamp: time.Now(),
	}
	if err := o.store.AddLog(entry); err != nil {
		logger.Error("failed to record backup success", zap.Error(err))
	}
	if o.adminChatID != 0 {
		if err := o.notifier.SendMessage(o.adminChatID, "✅ Бэкап создан: "+filename); err != nil {
			logger.Error("failed to send backup notice", zap.Error(err))
		}
	}
}

// Status — состояние оркестратора для операторских команд
type Status struct {
	Running  bool
	Jobs     int
	NextRuns map[string]time.Time
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{Running: o.running}
	if !o.running {
		return st
	}
	st.Jobs = len(o.jobs)
	st.NextRuns = make(map[string]time.Time, len(o.jobs))
	for name, id := range o.jobs {
		st.NextRuns[name] = o.cron.Entry(id).Next
	}
	return st
}

// cronLogger направляет сообщения cron (в том числе о пропущенных
// запусках) в общий логгер
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	logger.Info("cron: "+msg, zap.Any("details", kv))
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	logger.Error("cron: "+msg, zap.Error(err), zap.Any("details", kv))
}
