package migration

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
)

const (
	// BackupInfix 备份文件名中存储文件名之后的固定部分
	BackupInfix = ".backup_"
	// DefaultBackupNameTemplate 默认备份文件名模板，可用字段为 .Base 与 .Version
	DefaultBackupNameTemplate = `{{ .Base }}.backup_{{ now | date "20060102_150405" }}`
	// MaxBackupCount 默认最大保留备份数量
	MaxBackupCount = 5
)

// BackupManager 备份管理器
type BackupManager struct {
	dbPath   string
	keep     int
	nameTmpl *template.Template
}

// backupNameData 备份文件名模板的数据
type backupNameData struct {
	Base    string
	Version uint64
}

// NewBackupManager 创建备份管理器
func NewBackupManager(dbPath string) *BackupManager {
	m, _ := NewBackupManagerWithTemplate(dbPath, DefaultBackupNameTemplate, MaxBackupCount)
	return m
}

// NewBackupManagerWithTemplate 使用自定义文件名模板创建备份管理器。
// 模板输出必须以 "<存储文件名>.backup_" 开头，否则无法被 ListBackups 找到
func NewBackupManagerWithTemplate(dbPath, nameTmpl string, keep int) (*BackupManager, error) {
	if nameTmpl == "" {
		nameTmpl = DefaultBackupNameTemplate
	}
	if keep <= 0 {
		keep = MaxBackupCount
	}
	tmpl, err := template.New("backup_name").Funcs(sprig.TxtFuncMap()).Parse(nameTmpl)
	if err != nil {
		return nil, fmt.Errorf("invalid backup name template: %w", err)
	}
	return &BackupManager{
		dbPath:   dbPath,
		keep:     keep,
		nameTmpl: tmpl,
	}, nil
}

// backupName 渲染备份文件名
func (m *BackupManager) backupName(version uint64) (string, error) {
	base := filepath.Base(m.dbPath)
	var buf bytes.Buffer
	if err := m.nameTmpl.Execute(&buf, backupNameData{Base: base, Version: version}); err != nil {
		return "", fmt.Errorf("failed to render backup name: %w", err)
	}
	name := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(name, base+BackupInfix) || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("backup name %q must start with %q", name, base+BackupInfix)
	}
	return name, nil
}

// CreateBackup 创建存储文件备份，文件不存在时返回空路径
func (m *BackupManager) CreateBackup(version uint64) (string, error) {
	// 检查源文件是否存在
	if _, err := os.Stat(m.dbPath); os.IsNotExist(err) {
		return "", nil // 新存储不需要备份
	}

	name, err := m.backupName(version)
	if err != nil {
		return "", err
	}
	backupPath := filepath.Join(filepath.Dir(m.dbPath), name)

	// 复制文件
	if err := copyFile(m.dbPath, backupPath); err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}

	// 清理旧备份（清理失败不影响主流程）
	_ = m.CleanupOldBackups()

	return backupPath, nil
}

// RestoreBackup 从备份恢复存储文件
func (m *BackupManager) RestoreBackup(backupPath string) error {
	if backupPath == "" {
		return fmt.Errorf("backup path is empty")
	}

	// 检查备份文件是否存在
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		return fmt.Errorf("backup file not found: %s", backupPath)
	}

	// 删除当前存储文件（如果存在）
	if _, err := os.Stat(m.dbPath); err == nil {
		if err := os.Remove(m.dbPath); err != nil {
			return fmt.Errorf("failed to remove current store: %w", err)
		}
	}

	// 从备份恢复
	if err := copyFile(backupPath, m.dbPath); err != nil {
		return fmt.Errorf("failed to restore from backup: %w", err)
	}

	return nil
}

// RemoveBackup 删除备份文件
func (m *BackupManager) RemoveBackup(backupPath string) error {
	if backupPath == "" {
		return nil
	}
	if err := os.Remove(backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove backup: %w", err)
	}
	return nil
}

// ListBackups 列出所有备份文件
func (m *BackupManager) ListBackups() ([]string, error) {
	dir := filepath.Dir(m.dbPath)
	pattern := filepath.Base(m.dbPath) + BackupInfix

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var backups []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), pattern) {
			backups = append(backups, filepath.Join(dir, entry.Name()))
		}
	}

	// 按时间排序（最新的在前）
	sort.Slice(backups, func(i, j int) bool {
		return backups[i] > backups[j]
	})

	return backups, nil
}

// CleanupOldBackups 清理旧备份，保留最近的 keep 个
func (m *BackupManager) CleanupOldBackups() error {
	backups, err := m.ListBackups()
	if err != nil {
		return err
	}

	if len(backups) <= m.keep {
		return nil
	}

	// 删除超出数量的旧备份
	for _, backup := range backups[m.keep:] {
		if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove old backup %s: %w", backup, err)
		}
	}

	return nil
}

// GetLatestBackup 获取最新的备份文件
func (m *BackupManager) GetLatestBackup() (string, error) {
	backups, err := m.ListBackups()
	if err != nil {
		return "", err
	}
	if len(backups) == 0 {
		return "", nil
	}
	return backups[0], nil
}

// copyFile 复制文件
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		os.Remove(dst)
		return err
	}

	return dstFile.Sync()
}
