package backup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Manager создаёт и восстанавливает снапшоты панели: архив служебных
// директорий Marzban плюс дамп БД.
type Manager struct {
	BackupDir   string
	ServicePath string // обычно /opt/marzban
	DataPath    string // обычно /var/lib/marzban
}

func NewManager(backupDir, servicePath string) *Manager {
	return &Manager{
		BackupDir:   backupDir,
		ServicePath: servicePath,
		DataPath:    "/var/lib/marzban",
	}
}

const commandTimeout = 5 * time.Minute

// CreateSnapshot создаёт архив, имя файла возвращается как message.
// isScheduled различает плановый и ручной запуск только в имени.
func (m *Manager) CreateSnapshot(isScheduled bool) (string, error) {
	if err := os.MkdirAll(m.BackupDir, 0o755); err != nil {
		return "", err
	}
	ts := time.Now().Format("20060102_150405")
	prefix := "marzban_backup_"
	if isScheduled {
		prefix = "marzban_autobackup_"
	}
	name := prefix + ts + ".tar.gz"
	archivePath := filepath.Join(m.BackupDir, name)
	dbFile := filepath.Join(m.BackupDir, "marzban_db_"+ts+".sql")

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	dump := exec.CommandContext(ctx, "sh", "-c",
		fmt.Sprintf("mysqldump --all-databases > %s", dbFile))
	if out, err := dump.CombinedOutput(); err != nil {
		os.Remove(dbFile)
		return "", fmt.Errorf("database dump failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	defer os.Remove(dbFile)

	args := []string{"-czf", archivePath}
	for _, dir := range []string{m.ServicePath, m.DataPath} {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		args = append(args, "-C", "/", strings.TrimPrefix(dir, "/"))
	}
	args = append(args, "-C", m.BackupDir, filepath.Base(dbFile))

	tar := exec.CommandContext(ctx, "tar", args...)
	if out, err := tar.CombinedOutput(); err != nil {
		os.Remove(archivePath)
		return "", fmt.Errorf("archive failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return name, nil
}

// RestoreSnapshot распаковывает архив в корень и накатывает дамп БД
func (m *Manager) RestoreSnapshot(filename string) error {
	archivePath := filepath.Join(m.BackupDir, filepath.Base(filename))
	if _, err := os.Stat(archivePath); err != nil {
		return fmt.Errorf("backup file not found: %s", filename)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	list := exec.CommandContext(ctx, "tar", "-tzf", archivePath)
	out, err := list.Output()
	if err != nil {
		return fmt.Errorf("failed to read archive: %v", err)
	}
	var sqlMember string
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasSuffix(line, ".sql") {
			sqlMember = line
			break
		}
	}

	untar := exec.CommandContext(ctx, "tar", "-xzf", archivePath, "-C", "/")
	if out, err := untar.CombinedOutput(); err != nil {
		return fmt.Errorf("extract failed: %v: %s", err, strings.TrimSpace(string(out)))
	}

	if sqlMember != "" {
		sqlPath := "/" + sqlMember
		restore := exec.CommandContext(ctx, "sh", "-c", fmt.Sprintf("mysql < %s", sqlPath))
		if out, err := restore.CombinedOutput(); err != nil {
			return fmt.Errorf("database restore failed: %v: %s", err, strings.TrimSpace(string(out)))
		}
		os.Remove(sqlPath)
	}
	return nil
}

// ListSnapshots возвращает имена архивов, новые первыми
func (m *Manager) ListSnapshots() ([]string, error) {
	patterns := []string{"marzban_backup_*.tar.gz", "marzban_autobackup_*.tar.gz"}
	var names []string
	for _, p := range patterns {
		files, err := filepath.Glob(filepath.Join(m.BackupDir, p))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			names = append(names, filepath.Base(f))
		}
	}
	// сортировка по метке времени, а не по имени: иначе ручные бэкапы
	// всегда оказывались бы впереди автоматических
	sort.Slice(names, func(i, j int) bool {
		return snapshotStamp(names[i]) > snapshotStamp(names[j])
	})
	return names, nil
}

// snapshotStamp выделяет метку времени 20060102_150405 из имени архива
func snapshotStamp(name string) string {
	base := strings.TrimSuffix(name, ".tar.gz")
	if len(base) > 15 {
		return base[len(base)-15:]
	}
	return base
}

// CleanOldSnapshots удаляет архивы старше maxAge
func (m *Manager) CleanOldSnapshots(maxAge time.Duration) error {
	names, err := m.ListSnapshots()
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, name := range names {
		path := filepath.Join(m.BackupDir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(path)
		}
	}
	return nil
}
