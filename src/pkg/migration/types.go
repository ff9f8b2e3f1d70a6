package migration

import (
	"time"

	"github.com/shelfdb/shelf/src/pkg/schema"
)

// State 一次迁移尝试所处的阶段
type State int

const (
	// StateIdle 尚未开始
	StateIdle State = iota
	// StateVersionRead 已读取持久化版本
	StateVersionRead
	// StateDecide 正在比较持久化版本与声明版本
	StateDecide
	// StateNoOp 版本一致，无需任何操作
	StateNoOp
	// StateInitialized 存储文件首次创建
	StateInitialized
	// StateMigrating 正在执行迁移回调
	StateMigrating
	// StateCommitted 迁移已提交
	StateCommitted
	// StateAborted 迁移被中止，存储保持原状
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateVersionRead:
		return "version_read"
	case StateDecide:
		return "decide"
	case StateNoOp:
		return "noop"
	case StateInitialized:
		return "initialized"
	case StateMigrating:
		return "migrating"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Block 迁移回调：每次版本升级恰好调用一次
type Block interface {
	Migrate(ctx *Context, oldVersion schema.Version) error
}

// BlockFunc 将普通函数适配为 Block
type BlockFunc func(ctx *Context, oldVersion schema.Version) error

// Migrate 调用 f
func (f BlockFunc) Migrate(ctx *Context, oldVersion schema.Version) error {
	return f(ctx, oldVersion)
}

// Entry 一个存储路径的注册信息
type Entry struct {
	// Path 规范化后的绝对路径
	Path string
	// Version 声明的 schema 版本
	Version schema.Version
	// Block 迁移回调，可以为空
	Block Block
	// Schema 声明的 schema，打开时未提供 schema 则使用它
	Schema *schema.Catalog
}

// EntryOption 注册时的可选项
type EntryOption func(*Entry)

// WithSchema 为注册项附带声明的 schema
func WithSchema(c *schema.Catalog) EntryOption {
	return func(e *Entry) {
		e.Schema = c
	}
}

// MigrationConfig 迁移配置
type MigrationConfig struct {
	// DBPath 存储文件路径
	DBPath string
	// Adapter 存储适配器
	Adapter StoreAdapter
	// Declared 调用方声明的 schema；为空时使用注册项中的 schema
	Declared *schema.Catalog
	// Entry 可选，显式指定的注册项；为空时从 Registry 查找
	Entry *Entry
	// Registry 为空时使用全局注册表
	Registry *Registry
	// Backup 迁移前是否备份，nil 表示不备份
	Backup *bool
	// BackupKeep 保留的备份数量，<=0 时使用 MaxBackupCount
	BackupKeep int
	// BackupNameTemplate 备份文件名模板，为空时使用 DefaultBackupNameTemplate
	BackupNameTemplate string
	// LockStaleAfter 锁文件超过该时长即视为过期，0 表示只按进程是否存活判断
	LockStaleAfter time.Duration
}

// MigrationResult 迁移结果
type MigrationResult struct {
	// State 最终状态
	State State
	// FromVersion 迁移前版本
	FromVersion schema.Version
	// ToVersion 迁移后版本
	ToVersion schema.Version
	// CallbackInvoked 回调是否被调用
	CallbackInvoked bool
	// Changes 新旧 schema 的结构差异
	Changes []schema.Change
	// BackupPath 备份文件路径（如果有）
	BackupPath string
}

// LockInfo 锁文件信息
type LockInfo struct {
	// DBPath 正在迁移的存储路径
	DBPath string `json:"db_path"`
	// BackupPath 备份文件路径
	BackupPath string `json:"backup_path"`
	// StartTime 迁移开始时间
	StartTime string `json:"start_time"`
	// FromVersion 迁移前版本
	FromVersion schema.Version `json:"from_version"`
	// TargetVersion 目标版本
	TargetVersion schema.Version `json:"target_version"`
	// PID 进程ID
	PID int `json:"pid"`
}
