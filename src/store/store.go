// Package store 基于 SQLite 单文件的对象存储。打开时先交给迁移引擎比较版本，
// 只有迁移成功（或无需迁移）才返回可用的 Store
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/shelfdb/shelf/src/pkg/migration"
	"github.com/shelfdb/shelf/src/pkg/object"
	"github.com/shelfdb/shelf/src/pkg/schema"
)

var (
	// ErrObjectNotFound 对象不存在
	ErrObjectNotFound = errors.New("object not found")
	// ErrClosed 存储已关闭
	ErrClosed = errors.New("store is closed")
)

// Store 已打开的存储，schema 与版本在打开时确定
type Store struct {
	adapter *Adapter
	result  *migration.MigrationResult
	logger  *logrus.Entry

	mu      sync.RWMutex
	version schema.Version
	catalog *schema.Catalog
	closed  bool
}

// Open 打开 path 处的存储，必要时先完成创建或迁移
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}
	o := newOptions(opts)
	adapter := NewAdapter(migration.NormalizePath(path), o.busyTimeout())

	result, err := migration.MigrateStore(o.migrationConfig(adapter))
	if err != nil {
		adapter.Close()
		return nil, err
	}

	version, err := adapter.ReadVersion()
	if err != nil {
		adapter.Close()
		return nil, err
	}
	catalog, err := adapter.ReadSchema()
	if err != nil {
		adapter.Close()
		return nil, err
	}

	s := &Store{
		adapter: adapter,
		result:  result,
		logger:  adapter.logger,
		version: version,
		catalog: catalog,
	}
	s.logger.WithFields(logrus.Fields{
		"version": version,
		"classes": len(catalog.Names()),
		"state":   result.State.String(),
	}).Debug("store opened")
	return s, nil
}

// OpenDefault 打开默认路径的存储
func OpenDefault(opts ...Option) (*Store, error) {
	return Open(newOptions(opts).defaultPath(), opts...)
}

// SchemaVersionAtPath 读取存储文件的持久化版本，不创建文件也不触发迁移。
// 文件不存在时返回 migration.ErrNotFound
func SchemaVersionAtPath(path string) (schema.Version, error) {
	adapter := NewAdapter(migration.NormalizePath(path), 0)
	defer adapter.Close()
	return adapter.ReadVersion()
}

// MigrateStore 只执行迁移，不保留打开的存储
func MigrateStore(path string, opts ...Option) (*migration.MigrationResult, error) {
	s, err := Open(path, opts...)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.result, nil
}

// Path 存储文件的绝对路径
func (s *Store) Path() string {
	return s.adapter.Path()
}

// Version 打开时的 schema 版本
func (s *Store) Version() schema.Version {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Schema 打开时的 schema
func (s *Store) Schema() *schema.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// MigrationResult 打开时迁移引擎的执行结果
func (s *Store) MigrationResult() *migration.MigrationResult {
	return s.result
}

func (s *Store) class(className string) (*schema.ObjectSchema, *sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, nil, ErrClosed
	}
	cls, err := s.catalog.Lookup(className)
	if err != nil {
		return nil, nil, err
	}
	db, err := s.adapter.open()
	if err != nil {
		return nil, nil, err
	}
	return cls, db, nil
}

// Objects 返回类的全部对象，按插入顺序
func (s *Store) Objects(className string) ([]*object.Object, error) {
	cls, db, err := s.class(className)
	if err != nil {
		return nil, err
	}
	return readObjects(db, cls)
}

// Count 返回类的对象数量
func (s *Store) Count(className string) (int, error) {
	cls, db, err := s.class(className)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM objects WHERE class_name = ?`, cls.ClassName).Scan(&n); err != nil {
		return 0, wrapErr("count objects", err)
	}
	return n, nil
}

// Object 按 ID 读取对象
func (s *Store) Object(className, id string) (*object.Object, error) {
	cls, db, err := s.class(className)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = db.QueryRow(`SELECT data FROM objects WHERE class_name = ? AND id = ?`, cls.ClassName, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, className, id)
	}
	if err != nil {
		return nil, wrapErr("read object", err)
	}
	return object.Decode(cls, id, data)
}

// Add 按当前 schema 创建并写入新对象
func (s *Store) Add(className string, values map[string]any) (*object.Object, error) {
	cls, _, err := s.class(className)
	if err != nil {
		return nil, err
	}
	obj, err := object.New(cls, values)
	if err != nil {
		return nil, err
	}
	if err := s.Put(obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Put 写入对象；对象必须来自当前 schema
func (s *Store) Put(obj *object.Object) error {
	if obj == nil {
		return errors.New("object cannot be nil")
	}
	cls, _, err := s.class(obj.ClassName)
	if err != nil {
		return err
	}
	if !cls.Equal(obj.Schema()) {
		return fmt.Errorf("%w: object %s/%s was built with a different class definition",
			migration.ErrSchemaMismatch, obj.ClassName, obj.ID)
	}
	return s.write(func(tx *Tx) error {
		return tx.PutObject(obj)
	})
}

// Delete 删除对象，对象不存在时不报错
func (s *Store) Delete(obj *object.Object) error {
	if obj == nil {
		return nil
	}
	if _, _, err := s.class(obj.ClassName); err != nil {
		return err
	}
	return s.write(func(tx *Tx) error {
		return tx.DeleteObject(obj.ClassName, obj.ID)
	})
}

// write 在独占事务中执行写入；期间若其他进程已提升版本则拒绝写入
func (s *Store) write(fn func(tx *Tx) error) error {
	tx, err := s.adapter.begin()
	if err != nil {
		return err
	}
	current, err := tx.ReadVersion()
	if err != nil {
		_ = tx.Abort()
		return err
	}
	if expected := s.Version(); current != expected {
		_ = tx.Abort()
		return fmt.Errorf("%w: store moved from version %d to %d, reopen it",
			migration.ErrSchemaMismatch, expected, current)
	}
	if err := fn(tx); err != nil {
		_ = tx.Abort()
		return err
	}
	return tx.Commit()
}

// Close 关闭存储，可重复调用
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.adapter.Close()
}
