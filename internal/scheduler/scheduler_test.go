package scheduler

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"Marzban-Panel-Bot/internal/db"
)

type fakeMonitor struct {
	calls int32
}

func (m *fakeMonitor) MonitorAllAdmins() {
	atomic.AddInt32(&m.calls, 1)
}

type fakeBackup struct {
	name  string
	err   error
	calls int32
}

func (b *fakeBackup) CreateSnapshot(isScheduled bool) (string, error) {
	atomic.AddInt32(&b.calls, 1)
	return b.name, b.err
}

type fakeStore struct {
	mu   sync.Mutex
	logs []db.ActionLog
}

func (s *fakeStore) GetAdminByID(id uint) (*db.Admin, error) { return nil, nil }
func (s *fakeStore) GetAllAdmins() ([]db.Admin, error)       { return nil, nil }
func (s *fakeStore) AddUsageReport(r *db.UsageReport) error  { return nil }
func (s *fakeStore) AddLog(entry *db.ActionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *entry)
	return nil
}

type fakeNotifier struct {
	sent []string
	to   []int64
}

func (n *fakeNotifier) SendMessage(chatID int64, text string) error {
	n.to = append(n.to, chatID)
	n.sent = append(n.sent, text)
	return nil
}

func newTestOrchestrator(m *fakeMonitor, b *fakeBackup, store *fakeStore, n *fakeNotifier, chatID int64) *Orchestrator {
	return New(m, b, store, n, time.Hour, "0 0 * * *", chatID)
}

func TestTriggerSpecs(t *testing.T) {
	if got := FixedInterval(600 * time.Second).Spec(); got != "@every 600s" {
		t.Errorf("FixedInterval spec = %q", got)
	}
	if got := CronLike("0 0 * * 0").Spec(); got != "0 0 * * 0" {
		t.Errorf("CronLike spec = %q", got)
	}
}

func TestRegisterReplacesSameIdentity(t *testing.T) {
	o := newTestOrchestrator(&fakeMonitor{}, &fakeBackup{}, &fakeStore{}, &fakeNotifier{}, 0)

	if err := o.Register("job", CronLike("@every 1h"), func() {}); err != nil {
		t.Fatal(err)
	}
	if err := o.Register("job", CronLike("@every 2h"), func() {}); err != nil {
		t.Fatal(err)
	}
	if n := len(o.cron.Entries()); n != 1 {
		t.Errorf("re-registering the same identity must not duplicate: %d entries", n)
	}
}

func TestSkipIfStillRunning(t *testing.T) {
	o := newTestOrchestrator(&fakeMonitor{}, &fakeBackup{}, &fakeStore{}, &fakeNotifier{}, 0)

	var runs int32
	block := make(chan struct{})
	started := make(chan struct{}, 2)
	if err := o.Register("slow", CronLike("@every 1h"), func() {
		atomic.AddInt32(&runs, 1)
		started <- struct{}{}
		<-block
	}); err != nil {
		t.Fatal(err)
	}

	job := o.cron.Entries()[0].WrappedJob
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); job.Run() }()
	<-started // первый запуск держит задачу
	go func() { defer wg.Done(); job.Run() }()

	// второй запуск должен быть молча отброшен, не поставлен в очередь
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Errorf("overlapping firing must be dropped: %d executions, want 1", got)
	}
}

func TestStartPrimesJobsOnce(t *testing.T) {
	m := &fakeMonitor{}
	b := &fakeBackup{name: "marzban_backup_x.tar.gz"}
	o := newTestOrchestrator(m, b, &fakeStore{}, &fakeNotifier{}, 0)

	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	defer o.Stop()

	if got := atomic.LoadInt32(&m.calls); got != 1 {
		t.Errorf("prime run: monitor calls = %d, want 1", got)
	}
	if got := atomic.LoadInt32(&b.calls); got != 1 {
		t.Errorf("prime run: backup calls = %d, want 1", got)
	}

	// повторный Start — no-op, прогон не повторяется
	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&m.calls); got != 1 {
		t.Errorf("second Start must be a no-op, monitor calls = %d", got)
	}
}

type blockingMonitor struct {
	calls   int32
	started chan struct{}
	release chan struct{}
}

func (m *blockingMonitor) MonitorAllAdmins() {
	atomic.AddInt32(&m.calls, 1)
	m.started <- struct{}{}
	<-m.release
}

func TestPrimeRunSharesOverlapGuard(t *testing.T) {
	// Затянувшийся прогрев и срабатывание таймера — одна и та же задача:
	// второе должно быть отброшено, а не выполнено параллельно
	m := &blockingMonitor{started: make(chan struct{}, 1), release: make(chan struct{})}
	o := New(m, &fakeBackup{name: "f"}, &fakeStore{}, &fakeNotifier{}, time.Hour, "0 0 * * *", 0)

	startDone := make(chan struct{})
	go func() {
		o.Start()
		close(startDone)
	}()
	<-m.started // прогрев мониторинга держит задачу

	// имитируем плановое срабатывание той же задачи
	o.mu.Lock()
	id := o.jobs[JobMonitor]
	o.mu.Unlock()
	fired := make(chan struct{})
	go func() {
		o.cron.Entry(id).WrappedJob.Run()
		close(fired)
	}()

	select {
	case <-fired:
		// срабатывание отброшено сразу, прогрев ещё держит задачу
	case <-time.After(2 * time.Second):
		t.Fatal("overlapping firing was queued instead of dropped")
	}

	close(m.release)
	<-startDone
	o.Stop()

	if got := atomic.LoadInt32(&m.calls); got != 1 {
		t.Errorf("monitor executions = %d, want 1", got)
	}
}

func TestStatusLifecycle(t *testing.T) {
	o := newTestOrchestrator(&fakeMonitor{}, &fakeBackup{name: "f"}, &fakeStore{}, &fakeNotifier{}, 0)

	st := o.Status()
	if st.Running || st.Jobs != 0 || st.NextRuns != nil {
		t.Errorf("stopped orchestrator status = %+v", st)
	}

	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	st = o.Status()
	if !st.Running {
		t.Errorf("must be running after Start")
	}
	if st.Jobs != 2 {
		t.Errorf("jobs = %d, want 2", st.Jobs)
	}
	for _, name := range []string{JobMonitor, JobAutoBackup} {
		if next, ok := st.NextRuns[name]; !ok || next.IsZero() {
			t.Errorf("next run for %s missing or zero: %v", name, st.NextRuns)
		}
	}

	o.Stop()
	o.Stop() // повторный Stop — no-op
	st = o.Status()
	if st.Running || st.Jobs != 0 {
		t.Errorf("status after stop = %+v", st)
	}
}

func TestRunAutoBackupFailure(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(&fakeMonitor{},
		&fakeBackup{err: errors.New("disk full")}, store, notifier, 99)

	o.RunAutoBackup()

	if len(store.logs) != 1 {
		t.Fatalf("want exactly one log entry, got %d", len(store.logs))
	}
	if !strings.Contains(store.logs[0].Details, "disk full") {
		t.Errorf("log entry must carry the failure message: %q", store.logs[0].Details)
	}
	if len(notifier.sent) != 0 {
		t.Errorf("backup failure must not notify anyone, sent %v", notifier.sent)
	}
}

func TestRunAutoBackupSuccess(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(&fakeMonitor{},
		&fakeBackup{name: "marzban_backup_20240101.tar.gz"}, store, notifier, 99)

	o.RunAutoBackup()

	if len(store.logs) != 1 || store.logs[0].Action != "auto_backup" {
		t.Fatalf("want one auto_backup log entry, got %+v", store.logs)
	}
	if len(notifier.sent) != 1 || notifier.to[0] != 99 {
		t.Fatalf("success must notify the admin chat, got %v -> %v", notifier.sent, notifier.to)
	}
	if !strings.Contains(notifier.sent[0], "marzban_backup_20240101.tar.gz") {
		t.Errorf("notice must carry the filename: %q", notifier.sent[0])
	}
}

func TestRunAutoBackupSuccessNoChatConfigured(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(&fakeMonitor{}, &fakeBackup{name: "f.tar.gz"}, store, notifier, 0)

	o.RunAutoBackup()

	if len(notifier.sent) != 0 {
		t.Errorf("no admin chat configured: nothing must be sent")
	}
}
