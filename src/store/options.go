package store

import (
	"time"

	"github.com/shelfdb/shelf/src/configs"
	"github.com/shelfdb/shelf/src/pkg/migration"
	"github.com/shelfdb/shelf/src/pkg/schema"
)

// Option 打开存储时的可选项
type Option func(*options)

type options struct {
	declared  *schema.Catalog
	registry  *migration.Registry
	entry     *migration.Entry
	migration *configs.Migration
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.migration == nil {
		if cfg := configs.GetCurrentConfig(); cfg != nil {
			m := cfg.Migration
			o.migration = &m
		}
	}
	return o
}

// WithSchema 声明期望的 schema；存储不存在时按它创建，版本升级时作为新 schema
func WithSchema(c *schema.Catalog) Option {
	return func(o *options) {
		o.declared = c
	}
}

// WithRegistry 使用独立的注册表代替全局注册表
func WithRegistry(r *migration.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithMigration 直接指定版本与回调，不经过注册表
func WithMigration(version schema.Version, block migration.Block) Option {
	return func(o *options) {
		o.entry = &migration.Entry{Version: version, Block: block}
	}
}

// WithConfig 使用配置中的迁移设置（备份、锁过期、等待时长）
func WithConfig(cfg *configs.Config) Option {
	return func(o *options) {
		if cfg == nil {
			return
		}
		m := cfg.Migration
		o.migration = &m
	}
}

func (o *options) busyTimeout() time.Duration {
	if o.migration == nil {
		return DefaultBusyTimeout
	}
	return o.migration.BusyTimeout
}

// migrationConfig 组装迁移引擎配置；未提供配置时不备份
func (o *options) migrationConfig(adapter *Adapter) *migration.MigrationConfig {
	cfg := &migration.MigrationConfig{
		DBPath:   adapter.Path(),
		Adapter:  adapter,
		Declared: o.declared,
		Registry: o.registry,
	}
	if o.entry != nil {
		entry := *o.entry
		entry.Path = adapter.Path()
		cfg.Entry = &entry
	}
	if o.migration != nil {
		backup := o.migration.Backup
		cfg.Backup = &backup
		cfg.BackupKeep = o.migration.BackupKeep
		cfg.BackupNameTemplate = o.migration.BackupNameTmpl
		cfg.LockStaleAfter = o.migration.LockStaleAfter
	}
	return cfg
}

func (o *options) defaultPath() string {
	if o.registry != nil {
		return o.registry.DefaultPath()
	}
	return migration.DefaultPath()
}
