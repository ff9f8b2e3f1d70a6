package migration

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	shelfsentry "github.com/shelfdb/shelf/src/pkg/sentry"
)

// BatchMigrator 批量迁移器，用于迁移多个存储文件
type BatchMigrator struct {
	configs []*MigrationConfig
	logger  *logrus.Entry
	mu      sync.Mutex
}

// BatchMigrationResult 批量迁移结果
type BatchMigrationResult struct {
	Results map[string]*MigrationResult
	Success bool
	Errors  []error
}

// NewBatchMigrator 创建批量迁移器
func NewBatchMigrator() *BatchMigrator {
	return &BatchMigrator{
		configs: make([]*MigrationConfig, 0),
		logger:  logrus.WithField("component", "batch_migrator"),
	}
}

// Add 添加迁移配置
func (b *BatchMigrator) Add(config *MigrationConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configs = append(b.configs, config)
}

// AddMultiple 添加多个迁移配置
func (b *BatchMigrator) AddMultiple(configs []*MigrationConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configs = append(b.configs, configs...)
}

// Run 执行所有迁移
// parallel 参数指定是否并行执行；同一路径不能出现在多个配置中
func (b *BatchMigrator) Run(parallel bool) *BatchMigrationResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.configs) == 0 {
		return &BatchMigrationResult{
			Results: make(map[string]*MigrationResult),
			Success: true,
		}
	}

	if dup := b.duplicatePath(); dup != "" {
		return &BatchMigrationResult{
			Results: make(map[string]*MigrationResult),
			Errors:  []error{fmt.Errorf("%w: %s appears more than once", ErrConcurrentAccessDenied, dup)},
		}
	}

	if parallel {
		return b.runParallel()
	}
	return b.runSequential()
}

func (b *BatchMigrator) duplicatePath() string {
	seen := make(map[string]struct{}, len(b.configs))
	for _, config := range b.configs {
		key := NormalizePath(configPath(config))
		if _, ok := seen[key]; ok {
			return key
		}
		seen[key] = struct{}{}
	}
	return ""
}

// runSequential 顺序执行迁移
func (b *BatchMigrator) runSequential() *BatchMigrationResult {
	result := &BatchMigrationResult{
		Results: make(map[string]*MigrationResult),
		Success: true,
	}

	for _, config := range b.configs {
		migResult, err := b.migrateOne(config)
		path := configPath(config)
		result.Results[path] = migResult
		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Errorf("migration failed for %s: %w", path, err))
		}
	}

	return result
}

// runParallel 并行执行迁移
func (b *BatchMigrator) runParallel() *BatchMigrationResult {
	result := &BatchMigrationResult{
		Results: make(map[string]*MigrationResult),
		Success: true,
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, config := range b.configs {
		wg.Add(1)
		shelfsentry.Go(func() {
			defer wg.Done()

			migResult, err := b.migrateOne(config)
			path := configPath(config)
			mu.Lock()
			defer mu.Unlock()
			result.Results[path] = migResult
			if err != nil {
				result.Success = false
				result.Errors = append(result.Errors, fmt.Errorf("migration failed for %s: %w", path, err))
			}
		})
	}

	wg.Wait()
	return result
}

func (b *BatchMigrator) migrateOne(config *MigrationConfig) (*MigrationResult, error) {
	migrator, err := NewMigrator(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	// 先检查是否需要恢复
	recovered, err := migrator.CheckAndRecover()
	if err != nil {
		b.logger.WithError(err).WithField("db_path", migrator.path).Warn("recovery check failed")
	}
	if recovered {
		b.logger.WithField("db_path", migrator.path).Info("recovered from incomplete migration")
	}

	return migrator.Run()
}

// Clear 清空迁移配置
func (b *BatchMigrator) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configs = make([]*MigrationConfig, 0)
}

// MigrateStore 便捷函数：迁移单个存储文件
func MigrateStore(config *MigrationConfig) (*MigrationResult, error) {
	migrator, err := NewMigrator(config)
	if err != nil {
		return nil, err
	}

	// 先检查是否需要恢复
	if _, err := migrator.CheckAndRecover(); err != nil {
		logrus.WithError(err).WithField("db_path", migrator.path).Warn("recovery check failed")
	}

	return migrator.Run()
}

func configPath(config *MigrationConfig) string {
	if config.DBPath != "" {
		return config.DBPath
	}
	if config.Adapter != nil {
		return config.Adapter.Path()
	}
	return ""
}
