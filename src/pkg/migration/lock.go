package migration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/shelfdb/shelf/src/pkg/schema"
)

const (
	// LockFileExtension 锁文件扩展名
	LockFileExtension = ".migration.lock"
)

// LockManager 锁管理器：迁移期间在存储文件旁写入锁文件
type LockManager struct {
	dbPath     string
	lockPath   string
	staleAfter time.Duration
}

// NewLockManager 创建锁管理器
func NewLockManager(dbPath string) *LockManager {
	return &LockManager{
		dbPath:   dbPath,
		lockPath: dbPath + LockFileExtension,
	}
}

// WithStaleAfter 锁文件存在超过 d 即视为过期，0 表示只检查持锁进程
func (m *LockManager) WithStaleAfter(d time.Duration) *LockManager {
	m.staleAfter = d
	return m
}

// GetLockPath 获取锁文件路径
func (m *LockManager) GetLockPath() string {
	return m.lockPath
}

// Acquire 获取锁。锁文件已存在且未过期时返回 ErrConcurrentAccessDenied；
// 过期的锁文件会被清除后重新获取
func (m *LockManager) Acquire(info *LockInfo) error {
	// 确保目录存在
	if err := os.MkdirAll(filepath.Dir(m.lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock file directory: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock info: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(m.lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			if _, err := f.Write(data); err != nil {
				f.Close()
				os.Remove(m.lockPath)
				return fmt.Errorf("failed to write lock file: %w", err)
			}
			return f.Close()
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("failed to create lock file: %w", err)
		}

		existing, readErr := m.GetLockInfo()
		if readErr == nil && !m.IsStale(existing) {
			return fmt.Errorf("%w: %s is locked by migration started at %s (PID: %d)",
				ErrConcurrentAccessDenied, m.dbPath, existing.StartTime, existing.PID)
		}
		if readErr != nil && !m.olderThanStale() {
			return fmt.Errorf("%w: lock file exists but cannot be read: %v", ErrConcurrentAccessDenied, readErr)
		}
		// 过期锁，删除后重试
		if err := os.Remove(m.lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lock file: %w", err)
		}
	}
	return fmt.Errorf("%w: lock file for %s keeps reappearing", ErrConcurrentAccessDenied, m.dbPath)
}

// Update 覆写已持有的锁文件内容（例如补充备份路径）
func (m *LockManager) Update(info *LockInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock info: %w", err)
	}
	if err := os.WriteFile(m.lockPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// Release 释放锁
func (m *LockManager) Release() error {
	if err := os.Remove(m.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// IsLocked 检查是否被锁定
func (m *LockManager) IsLocked() bool {
	_, err := os.Stat(m.lockPath)
	return err == nil
}

// IsStale 持锁进程已退出，或锁文件已超过 staleAfter
func (m *LockManager) IsStale(info *LockInfo) bool {
	if info == nil {
		return true
	}
	if m.staleAfter > 0 {
		if started, err := time.Parse(time.RFC3339, info.StartTime); err == nil && time.Since(started) > m.staleAfter {
			return true
		}
	}
	if info.PID <= 0 {
		return true
	}
	alive, err := process.PidExists(int32(info.PID))
	if err != nil {
		// 无法判断时按存活处理
		return false
	}
	return !alive
}

// GetLockInfo 获取锁信息
func (m *LockManager) GetLockInfo() (*LockInfo, error) {
	data, err := os.ReadFile(m.lockPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read lock file: %w", err)
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lock info: %w", err)
	}

	return &info, nil
}

func (m *LockManager) olderThanStale() bool {
	if m.staleAfter <= 0 {
		return false
	}
	st, err := os.Stat(m.lockPath)
	if err != nil {
		return true
	}
	return time.Since(st.ModTime()) > m.staleAfter
}

// CreateLockInfo 创建锁信息
func CreateLockInfo(dbPath, backupPath string, fromVersion, targetVersion schema.Version) *LockInfo {
	return &LockInfo{
		DBPath:        dbPath,
		BackupPath:    backupPath,
		StartTime:     time.Now().Format(time.RFC3339),
		FromVersion:   fromVersion,
		TargetVersion: targetVersion,
		PID:           os.Getpid(),
	}
}
