package migration

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shelfdb/shelf/src/pkg/schema"
	shelfsentry "github.com/shelfdb/shelf/src/pkg/sentry"
)

var (
	// ErrRollbackFailed 从备份恢复失败
	ErrRollbackFailed = errors.New("rollback failed")
	// ErrNoBackup 无备份可回滚
	ErrNoBackup = errors.New("no backup available for rollback")
)

// Migrator 迁移引擎：比较持久化版本与声明版本，必要时在独占事务中调用回调并提交新 schema
type Migrator struct {
	config        *MigrationConfig
	path          string
	registry      *Registry
	lockManager   *LockManager
	backupManager *BackupManager
	lockInfo      *LockInfo
	logger        *logrus.Entry
}

// NewMigrator 创建迁移器
func NewMigrator(config *MigrationConfig) (*Migrator, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	path := config.DBPath
	if path == "" && config.Adapter != nil {
		path = config.Adapter.Path()
	}
	if path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}

	registry := config.Registry
	if registry == nil {
		registry = Global()
	}

	backupManager, err := NewBackupManagerWithTemplate(path, config.BackupNameTemplate, config.BackupKeep)
	if err != nil {
		return nil, err
	}

	return &Migrator{
		config:        config,
		path:          path,
		registry:      registry,
		lockManager:   NewLockManager(path).WithStaleAfter(config.LockStaleAfter),
		backupManager: backupManager,
		logger: logrus.WithFields(logrus.Fields{
			"db_path":   path,
			"component": "migrator",
		}),
	}, nil
}

// shouldBackup 判断是否需要备份
func (m *Migrator) shouldBackup() bool {
	return m.config.Backup != nil && *m.config.Backup
}

// resolveEntry 返回声明的版本、回调与 schema；未注册的路径版本为 0 且没有回调
func (m *Migrator) resolveEntry() (schema.Version, Block, *schema.Catalog) {
	entry := m.config.Entry
	if entry == nil {
		entry, _ = m.registry.Lookup(m.path)
	}
	declared := m.config.Declared
	if entry == nil {
		return 0, nil, declared
	}
	if declared == nil {
		declared = entry.Schema
	}
	return entry.Version, entry.Block, declared
}

// Run 执行一次迁移尝试
func (m *Migrator) Run() (*MigrationResult, error) {
	if m.config.Adapter == nil {
		return nil, fmt.Errorf("%w: no adapter for %s", ErrStoreUnavailable, m.path)
	}

	start := time.Now()
	result := &MigrationResult{State: StateIdle}
	err := m.run(result)
	observe(outcomeOf(result, err), time.Since(start).Seconds())

	logger := m.logger.WithFields(logrus.Fields{
		"from_version": result.FromVersion,
		"to_version":   result.ToVersion,
		"state":        result.State.String(),
	})
	switch {
	case err != nil:
		logger.WithError(err).Warn("store migration failed")
	case result.State == StateCommitted:
		logger.WithFields(logrus.Fields{
			"callback_invoked": result.CallbackInvoked,
			"changes":          len(result.Changes),
			"backup_path":      result.BackupPath,
		}).Info("store migration completed")
	case result.State == StateInitialized:
		logger.Info("store initialized")
	default:
		logger.Debug("store schema is up to date")
	}
	return result, err
}

func (m *Migrator) run(result *MigrationResult) error {
	target, block, declared := m.resolveEntry()
	result.ToVersion = target

	current, err := m.config.Adapter.ReadVersion()
	exists := true
	switch {
	case errors.Is(err, ErrNotFound):
		exists = false
		current = 0
	case err != nil:
		return err
	}
	result.State = StateVersionRead
	result.FromVersion = current

	if exists {
		m.registry.Observe(m.path, current)
		result.State = StateDecide
		proceed, err := m.decide(result, current, target, declared, m.config.Adapter.ReadSchema)
		if err != nil || !proceed {
			return err
		}
	}

	// 回调会执行时才需要锁文件：已存在的存储升级，或新存储以非零版本注册了回调
	locked := exists || runsBlockOnCreate(target, block)
	if locked {
		release, err := m.prepare(current, target)
		if err != nil {
			return err
		}
		defer release()
	}

	return m.write(result, locked, target, block, declared)
}

// runsBlockOnCreate 新存储从版本 0 升级到 target 时是否调用回调
func runsBlockOnCreate(target schema.Version, block Block) bool {
	return target > 0 && block != nil
}

// decide 比较版本；返回 true 表示需要迁移
func (m *Migrator) decide(result *MigrationResult, current, target schema.Version, declared *schema.Catalog, readSchema func() (*schema.Catalog, error)) (bool, error) {
	switch {
	case current > target:
		return false, fmt.Errorf("%w: %s is at version %d, declared version is %d",
			ErrSchemaVersionDowngrade, m.path, current, target)
	case current == target:
		if declared != nil {
			persisted, err := readSchema()
			if err != nil {
				return false, err
			}
			if changes := schema.Diff(persisted, declared); len(changes) > 0 {
				result.Changes = changes
				return false, fmt.Errorf("%w: %s at version %d differs from declared schema (%s)",
					ErrSchemaMismatch, m.path, current, changes[0])
			}
		}
		result.State = StateNoOp
		result.ToVersion = current
		return false, nil
	default:
		return true, nil
	}
}

// prepare 获取锁文件，返回释放函数
func (m *Migrator) prepare(from, to schema.Version) (func(), error) {
	m.lockInfo = CreateLockInfo(m.path, "", from, to)
	if err := m.lockManager.Acquire(m.lockInfo); err != nil {
		return nil, err
	}
	return func() {
		if err := m.lockManager.Release(); err != nil {
			m.logger.WithError(err).Warn("failed to release migration lock")
		}
	}, nil
}

// backup 在持有独占事务时复制存储文件，此时没有其他写入者能修改文件
func (m *Migrator) backup(result *MigrationResult, from schema.Version) error {
	if !m.shouldBackup() {
		return nil
	}
	backupPath, err := m.backupManager.CreateBackup(from)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	result.BackupPath = backupPath
	if m.lockInfo != nil {
		m.lockInfo.BackupPath = backupPath
		if err := m.lockManager.Update(m.lockInfo); err != nil {
			m.logger.WithError(err).Warn("failed to record backup path in lock file")
		}
	}
	return nil
}

// write 在独占事务内重新读取版本并完成创建或迁移
func (m *Migrator) write(result *MigrationResult, locked bool, target schema.Version, block Block, declared *schema.Catalog) error {
	tx, err := m.config.Adapter.BeginExclusiveWrite()
	if err != nil {
		return err
	}

	current, err := tx.ReadVersion()
	if errors.Is(err, ErrNotFound) {
		if !locked || !runsBlockOnCreate(target, block) {
			return m.initialize(tx, result, target, declared)
		}
		// 从未创建的存储视为版本 0、空 schema，回调照常执行一次
		result.FromVersion = 0
		return m.migrate(tx, result, 0, target, block, declared, schema.Empty())
	}
	if err != nil {
		m.abort(tx)
		return err
	}

	// 其他迁移器可能已先完成
	m.registry.Observe(m.path, current)
	result.FromVersion = current
	result.State = StateDecide
	proceed, err := m.decide(result, current, target, declared, tx.ReadSchema)
	if err != nil || !proceed {
		m.abort(tx)
		return err
	}
	if !locked {
		m.abort(tx)
		return fmt.Errorf("%w: %s was created by another writer", ErrConcurrentAccessDenied, m.path)
	}

	if err := m.backup(result, current); err != nil {
		m.abort(tx)
		return err
	}
	return m.migrate(tx, result, current, target, block, declared, nil)
}

// initialize 首次创建：版本为 0 或没有回调时直接写入声明的 schema 与版本
func (m *Migrator) initialize(tx Transaction, result *MigrationResult, target schema.Version, declared *schema.Catalog) error {
	catalog := declared
	if catalog == nil {
		catalog = schema.Empty()
	}
	if err := tx.WriteSchemaAndVersion(catalog, target); err != nil {
		m.abort(tx)
		result.State = StateAborted
		return err
	}
	if err := tx.Commit(); err != nil {
		result.State = StateAborted
		return err
	}
	m.registry.Observe(m.path, target)
	result.State = StateInitialized
	result.FromVersion = 0
	result.ToVersion = target
	result.Changes = schema.Diff(schema.Empty(), catalog)
	return nil
}

// migrate 调用回调并提交新 schema；oldSchema 为 nil 时从事务读取
func (m *Migrator) migrate(tx Transaction, result *MigrationResult, from, to schema.Version, block Block, declared, oldSchema *schema.Catalog) error {
	result.State = StateMigrating

	if oldSchema == nil {
		var err error
		if oldSchema, err = tx.ReadSchema(); err != nil {
			m.abort(tx)
			result.State = StateAborted
			return err
		}
	}
	newSchema := declared
	if newSchema == nil {
		newSchema = oldSchema
	}

	ctx := newContext(tx, oldSchema, newSchema, from, to)
	result.Changes = ctx.Changes()

	if block != nil {
		result.CallbackInvoked = true
		err := m.invoke(block, ctx, from)
		ctx.expire()
		if err != nil {
			m.abort(tx)
			result.State = StateAborted
			return fmt.Errorf("%w: %w", ErrMigrationCallbackFailed, err)
		}
	} else {
		ctx.expire()
	}

	if err := tx.WriteSchemaAndVersion(newSchema, to); err != nil {
		m.abort(tx)
		result.State = StateAborted
		return err
	}
	if err := tx.Commit(); err != nil {
		result.State = StateAborted
		return err
	}

	m.registry.Observe(m.path, to)
	result.State = StateCommitted
	result.ToVersion = to
	return nil
}

// invoke 调用回调，panic 会被恢复、上报并转换为错误
func (m *Migrator) invoke(block Block, ctx *Context, oldVersion schema.Version) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			m.logger.WithField("panic", r).Error("migration callback panicked")
			shelfsentry.CaptureException(err)
		}
	}()
	return block.Migrate(ctx, oldVersion)
}

func (m *Migrator) abort(tx Transaction) {
	if err := tx.Abort(); err != nil {
		m.logger.WithError(err).Warn("failed to abort transaction")
	}
}

// Rollback 从备份恢复存储文件；优先使用锁文件中记录的备份。
// 调用前需关闭所有打开该文件的连接
func (m *Migrator) Rollback() error {
	// 检查是否有锁文件
	if m.lockManager.IsLocked() {
		lockInfo, err := m.lockManager.GetLockInfo()
		if err != nil {
			return fmt.Errorf("failed to read lock info: %w", err)
		}
		if !m.lockManager.IsStale(lockInfo) {
			return fmt.Errorf("%w: migration still running (PID: %d)", ErrConcurrentAccessDenied, lockInfo.PID)
		}

		if lockInfo.BackupPath != "" {
			m.logger.WithField("backup_path", lockInfo.BackupPath).Info("rolling back from lock file info")
			if err := m.backupManager.RestoreBackup(lockInfo.BackupPath); err != nil {
				return fmt.Errorf("%w: %v", ErrRollbackFailed, err)
			}
			// 回滚成功，释放锁
			return m.lockManager.Release()
		}
	}

	// 没有锁文件，尝试使用最新备份
	latestBackup, err := m.backupManager.GetLatestBackup()
	if err != nil {
		return fmt.Errorf("failed to get latest backup: %w", err)
	}
	if latestBackup == "" {
		return ErrNoBackup
	}

	m.logger.WithField("backup_path", latestBackup).Info("rolling back from latest backup")
	if err := m.backupManager.RestoreBackup(latestBackup); err != nil {
		return fmt.Errorf("%w: %v", ErrRollbackFailed, err)
	}
	return m.lockManager.Release()
}

// CheckAndRecover 检查未正常结束的迁移留下的锁文件。
// 持锁进程已退出（或锁已过期）时删除锁文件并返回 true；事务未提交的改动由存储自身回滚
func (m *Migrator) CheckAndRecover() (bool, error) {
	if !m.lockManager.IsLocked() {
		return false, nil
	}

	lockInfo, err := m.lockManager.GetLockInfo()
	if err != nil {
		return false, fmt.Errorf("failed to read lock info: %w", err)
	}

	logger := m.logger.WithFields(logrus.Fields{
		"start_time":     lockInfo.StartTime,
		"pid":            lockInfo.PID,
		"from_version":   lockInfo.FromVersion,
		"target_version": lockInfo.TargetVersion,
		"backup_path":    lockInfo.BackupPath,
	})
	if !m.lockManager.IsStale(lockInfo) {
		logger.Debug("migration lock is held by a live process")
		return false, nil
	}

	logger.Warn("detected incomplete migration, removing stale lock")
	if err := m.lockManager.Release(); err != nil {
		return false, err
	}
	return true, nil
}

func outcomeOf(result *MigrationResult, err error) string {
	if err != nil {
		switch {
		case result.State == StateAborted:
			return outcomeAborted
		case errors.Is(err, ErrSchemaVersionDowngrade), errors.Is(err, ErrSchemaMismatch):
			return outcomeRejected
		default:
			return outcomeError
		}
	}
	switch result.State {
	case StateInitialized:
		return outcomeInitialized
	case StateCommitted:
		return outcomeCommitted
	default:
		return outcomeNoop
	}
}
