package configs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shelfdb/shelf/src/consts"
)

type Log struct {
	OutPutFolder string `yaml:"out_put_folder" json:"out_put_folder"`
	SaveLastLog  bool   `yaml:"save_last_log" json:"save_last_log"`
	SaveEveryLog bool   `yaml:"save_every_log" json:"save_every_log"`
	// RotateDays 指定按"天"为单位滚动日志时，最多保留的天数（<=0 表示不清理）
	RotateDays int `yaml:"rotate_days" json:"rotate_days"`
}

// Migration 迁移相关配置
type Migration struct {
	// Backup 迁移前是否复制一份存储文件
	Backup bool `yaml:"backup" json:"backup"`
	// BackupKeep 每个存储保留的备份数量
	BackupKeep int `yaml:"backup_keep" json:"backup_keep"`
	// BackupNameTmpl 备份文件名模板，可使用 .Base .Version 与 sprig 函数
	BackupNameTmpl string `yaml:"backup_name_tmpl" json:"backup_name_tmpl"`
	// LockStaleAfter 迁移锁文件超过该时长视为过期，0 表示只看持锁进程是否存活
	LockStaleAfter time.Duration `yaml:"lock_stale_after" json:"lock_stale_after"`
	// BusyTimeout 等待其他写入者的时长
	BusyTimeout time.Duration `yaml:"busy_timeout" json:"busy_timeout"`
}

func (m *Migration) verify() error {
	if m.BackupKeep < 0 {
		return fmt.Errorf("backup_keep 不能为负数")
	}
	if m.LockStaleAfter < 0 {
		return fmt.Errorf("lock_stale_after 不能为负数")
	}
	if m.BusyTimeout < 0 {
		return fmt.Errorf("busy_timeout 不能为负数")
	}
	if m.BackupNameTmpl != "" {
		if _, err := template.New("backup").Parse(m.BackupNameTmpl); err != nil {
			return fmt.Errorf("无效的备份文件名模板: %w", err)
		}
	}
	return nil
}

// Sentry 错误上报配置
type Sentry struct {
	Enable      bool   `yaml:"enable" json:"enable"`
	DSN         string `yaml:"dsn" json:"dsn"`
	Environment string `yaml:"environment" json:"environment"`
}

// Config content all config info.
type Config struct {
	File    string `yaml:"-" json:"-"`
	Debug   bool   `yaml:"debug" json:"debug"`
	Version int64  `yaml:"-" json:"-"` // 内部版本号：不参与 YAML/JSON 序列化，仅用于乐观并发控制

	// DefaultStorePath 默认存储文件路径，为空时使用工作目录下的 default.shelf
	DefaultStorePath string    `yaml:"default_store_path" json:"default_store_path"`
	Log              Log       `yaml:"log" json:"log"`
	Migration        Migration `yaml:"migration" json:"migration"`
	Sentry           Sentry    `yaml:"sentry" json:"sentry"`
}

// 使用 atomic.Value 存放当前配置指针，避免并发读写造成 data race
var config atomic.Value // stores *Config

// 单独的 Debug 原子标志，便于高频读取
var currentDebug atomic.Bool

// 序列化所有 Update 操作，避免并发更新造成的丢写问题
var updateMu sync.Mutex

// 当期望版本与实际版本不一致时返回的错误
var ErrConfigVersionConflict = errors.New("config version conflict")

func SetCurrentConfig(cfg *Config) {
	if cfg == nil {
		config.Store((*Config)(nil))
		currentDebug.Store(false)
		return
	}
	config.Store(cfg)
	currentDebug.Store(cfg.Debug)
}

func GetCurrentConfig() *Config {
	v := config.Load()
	if v == nil {
		return nil
	}
	return v.(*Config)
}

// IsDebug 提供并发安全、低开销的 Debug 值读取
func IsDebug() bool {
	return currentDebug.Load()
}

// Update 采用“复制-更新-原子替换”模式安全更新全局配置，并持久化到文件。
// 返回更新后的新配置快照。
func Update(mutator func(c *Config) error) (*Config, error) {
	return updateImpl(mutator, true)
}

// UpdateTransient 与 Update 类似，但不进行文件持久化，仅更新内存配置。
func UpdateTransient(mutator func(c *Config) error) (*Config, error) {
	return updateImpl(mutator, false)
}

func updateImpl(mutator func(c *Config) error, persist bool) (*Config, error) {
	updateMu.Lock()
	defer updateMu.Unlock()
	cur := GetCurrentConfig()
	var expected int64
	if cur != nil {
		expected = cur.Version
	}
	return commitLocked(cur, expected, mutator, persist)
}

// UpdateCAS 使用期望版本进行乐观并发控制，版本不匹配则返回 ErrConfigVersionConflict
func UpdateCAS(expectedVersion int64, mutator func(c *Config) error) (*Config, error) {
	updateMu.Lock()
	defer updateMu.Unlock()
	cur := GetCurrentConfig()
	var curVersion int64
	if cur != nil {
		curVersion = cur.Version
	}
	if curVersion != expectedVersion {
		return nil, ErrConfigVersionConflict
	}
	return commitLocked(cur, expectedVersion, mutator, true)
}

func commitLocked(cur *Config, expectedVersion int64, mutator func(c *Config) error, persist bool) (*Config, error) {
	var base *Config
	if cur == nil {
		base = NewConfig()
	} else {
		base = cur.Clone()
	}
	if err := mutator(base); err != nil {
		return nil, err
	}
	base.Version = expectedVersion + 1

	if persist && base.File != "" {
		if err := base.Marshal(); err != nil {
			return nil, fmt.Errorf("failed to save config: %w", err)
		}
	}

	SetCurrentConfig(base)
	return base, nil
}

// SetDebug 原子更新 Debug 标志，不写回文件。
func SetDebug(v bool) (*Config, error) {
	return UpdateTransient(func(c *Config) error { c.Debug = v; return nil })
}

var defaultConfig = Config{
	Debug:            false,
	DefaultStorePath: "",
	Log: Log{
		OutPutFolder: "./",
		SaveLastLog:  true,
		SaveEveryLog: false,
		RotateDays:   7,
	},
	Migration: Migration{
		Backup:         true,
		BackupKeep:     5,
		BackupNameTmpl: "",
		LockStaleAfter: 0,
		BusyTimeout:    5 * time.Second,
	},
	Sentry: Sentry{
		Enable:      false,
		DSN:         "",
		Environment: "production",
	},
}

func NewConfig() *Config {
	config := defaultConfig
	return &config
}

// Verify will return an error when this config has problem.
func (c *Config) Verify() error {
	if c == nil {
		return fmt.Errorf("配置不存在")
	}
	if c.DefaultStorePath != "" && strings.HasSuffix(c.DefaultStorePath, string(os.PathSeparator)) {
		return fmt.Errorf(`默认存储路径 "%s" 不能是目录`, c.DefaultStorePath)
	}
	if err := c.Migration.verify(); err != nil {
		return err
	}
	if c.Sentry.Enable && c.Sentry.DSN == "" {
		return fmt.Errorf("已启用 Sentry 但未配置 dsn")
	}
	return nil
}

// StorePath 返回生效的默认存储路径
func (c *Config) StorePath() string {
	if c == nil || c.DefaultStorePath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return consts.DefaultStoreFile
		}
		return filepath.Join(wd, consts.DefaultStoreFile)
	}
	if abs, err := filepath.Abs(c.DefaultStorePath); err == nil {
		return abs
	}
	return c.DefaultStorePath
}

func NewConfigWithBytes(b []byte) (*Config, error) {
	config := defaultConfig
	if err := yaml.Unmarshal(b, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

func NewConfigWithFile(file string) (*Config, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		// 进行权限诊断，提供更详细的错误信息
		diag := DiagnoseFilePermission(file)
		if diagInfo := diag.FormatError(); diagInfo != "" {
			return nil, fmt.Errorf("can`t open file: %s%s", file, diagInfo)
		}
		return nil, fmt.Errorf("can`t open file: %s", file)
	}
	config, err := NewConfigWithBytes(b)
	if err != nil {
		return nil, err
	}
	config.File = file
	return config, nil
}

func (c *Config) Marshal() error {
	if c.File == "" {
		return errors.New("config path not set")
	}

	var node yaml.Node
	tempBytes, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(tempBytes, &node); err != nil {
		return err
	}

	DecorateConfigNode(&node)

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&node); err != nil {
		return err
	}
	return os.WriteFile(c.File, buf.Bytes(), 0644)
}

// Clone 返回配置副本；Config 只含值类型字段，浅拷贝即可
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
