package migration

import "errors"

var (
	// ErrSchemaVersionDowngrade 持久化版本高于声明版本
	ErrSchemaVersionDowngrade = errors.New("schema version downgrade")
	// ErrMigrationCallbackFailed 迁移回调返回错误或panic
	ErrMigrationCallbackFailed = errors.New("migration callback failed")
	// ErrNotFound 存储文件从未创建
	ErrNotFound = errors.New("store not found")
	// ErrStoreUnavailable 存储文件无法打开或读写
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrConcurrentAccessDenied 无法取得独占写
	ErrConcurrentAccessDenied = errors.New("concurrent access denied")
	// ErrInvalidVersion 注册的版本低于已观察到的持久化版本
	ErrInvalidVersion = errors.New("invalid schema version")
	// ErrSchemaMismatch 版本相同但结构不同，需要提升版本号
	ErrSchemaMismatch = errors.New("schema mismatch, migration required")
	// ErrContextExpired 回调结束后继续使用迁移上下文
	ErrContextExpired = errors.New("migration context expired")
)
