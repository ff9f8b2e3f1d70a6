package store

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shelfdb/shelf/src/pkg/migration"
	"github.com/shelfdb/shelf/src/pkg/object"
	"github.com/shelfdb/shelf/src/pkg/schema"
)

// Tx 独占写事务，实现 migration.Transaction
type Tx struct {
	tx      *sql.Tx
	path    string
	catalog *schema.Catalog
	done    bool
	// written 提交成功后需要写入缓存的键，只在 WriteSchemaAndVersion 后设置
	written string
}

var _ migration.Transaction = (*Tx)(nil)

// ReadVersion 事务内读取版本
func (t *Tx) ReadVersion() (schema.Version, error) {
	return readVersion(t.tx)
}

// ReadSchema 事务内读取 schema；WriteSchemaAndVersion 之后返回新写入的 schema
func (t *Tx) ReadSchema() (*schema.Catalog, error) {
	if t.catalog != nil {
		return t.catalog, nil
	}
	catalog, err := loadCatalog(t.tx)
	if err != nil {
		return nil, err
	}
	t.catalog = catalog
	return catalog, nil
}

// EnumerateObjects 按持久化 schema 解码类的全部对象
func (t *Tx) EnumerateObjects(className string) ([]*object.Object, error) {
	catalog, err := t.ReadSchema()
	if err != nil {
		return nil, err
	}
	cls, err := catalog.Lookup(className)
	if err != nil {
		return nil, err
	}
	return readObjects(t.tx, cls)
}

// PutObject 插入或覆盖对象
func (t *Tx) PutObject(obj *object.Object) error {
	if obj == nil {
		return errors.New("object cannot be nil")
	}
	data, err := object.Encode(obj)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`
		INSERT INTO objects (class_name, id, data) VALUES (?, ?, ?)
		ON CONFLICT(class_name, id) DO UPDATE SET data = excluded.data
	`, obj.ClassName, obj.ID, string(data))
	return wrapErr("put object", err)
}

// DeleteObject 删除单个对象，对象不存在时不报错
func (t *Tx) DeleteObject(className, id string) error {
	_, err := t.tx.Exec(`DELETE FROM objects WHERE class_name = ? AND id = ?`, className, id)
	return wrapErr("delete object", err)
}

// DeleteClassData 删除类的全部对象
func (t *Tx) DeleteClassData(className string) error {
	_, err := t.tx.Exec(`DELETE FROM objects WHERE class_name = ?`, className)
	return wrapErr("delete class data", err)
}

// WriteSchemaAndVersion 替换 schema 与版本号，并把仍存在的类的对象调整为新结构。
// 已删除类的对象保留在文件中，不再能通过 schema 访问
func (t *Tx) WriteSchemaAndVersion(catalog *schema.Catalog, version schema.Version) error {
	if catalog == nil {
		return fmt.Errorf("%w: catalog cannot be nil", schema.ErrInvalidSchema)
	}
	if err := saveCatalog(t.tx, catalog); err != nil {
		return wrapErr("write schema", err)
	}
	for _, cls := range catalog.Classes() {
		if err := conformObjects(t.tx, cls); err != nil {
			return err
		}
	}
	if err := writeVersionInfo(t.tx, version); err != nil {
		return wrapErr("write version", err)
	}
	storeID, _, err := readMeta(t.tx, metaStoreID)
	if err != nil {
		return wrapErr("read store id", err)
	}
	t.catalog = catalog
	t.written = catalogKey(t.path, storeID, version)
	return nil
}

// Commit 提交事务
func (t *Tx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return wrapErr("commit", err)
	}
	if t.written != "" {
		_ = catalogCache.Set(t.written, t.catalog)
	}
	return nil
}

// Abort 回滚事务，已结束的事务不报错
func (t *Tx) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return wrapErr("rollback", err)
	}
	return nil
}

// conformObjects 用新结构重新编码对象：新增属性取默认值，删除的属性丢弃，类型变化的属性重置为默认值
func conformObjects(q querier, cls *schema.ObjectSchema) error {
	rows, err := q.Query(`SELECT id, data FROM objects WHERE class_name = ?`, cls.ClassName)
	if err != nil {
		return wrapErr("conform objects", err)
	}
	type record struct {
		id   string
		data []byte
	}
	var updates []record
	for rows.Next() {
		var r record
		if err := rows.Scan(&r.id, &r.data); err != nil {
			rows.Close()
			return wrapErr("conform objects", err)
		}
		obj, err := object.Decode(cls, r.id, r.data)
		if err != nil {
			rows.Close()
			return fmt.Errorf("%s/%s: %w", cls.ClassName, r.id, err)
		}
		encoded, err := object.Encode(obj)
		if err != nil {
			rows.Close()
			return err
		}
		if !bytes.Equal(encoded, r.data) {
			updates = append(updates, record{id: r.id, data: encoded})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return wrapErr("conform objects", err)
	}

	for _, r := range updates {
		if _, err := q.Exec(`UPDATE objects SET data = ? WHERE class_name = ? AND id = ?`,
			string(r.data), cls.ClassName, r.id); err != nil {
			return wrapErr("conform objects", err)
		}
	}
	return nil
}
