package store

import (
	"database/sql"
	"fmt"

	"github.com/bluele/gcache"

	"github.com/shelfdb/shelf/src/pkg/object"
	"github.com/shelfdb/shelf/src/pkg/schema"
)

// catalogCacheSize 缓存的持久化 schema 数量
const catalogCacheSize = 64

// catalogCache 按 路径|store_id@version 缓存已解析的 schema。
// 复制或从备份恢复的文件共享 store_id，因此键中必须包含路径
var catalogCache = gcache.New(catalogCacheSize).LRU().Build()

func catalogKey(path, storeID string, version schema.Version) string {
	return fmt.Sprintf("%s|%s@%d", path, storeID, version)
}

// cachedCatalog 读取持久化 schema，优先使用缓存
func cachedCatalog(path string, q querier) (*schema.Catalog, error) {
	version, err := readVersion(q)
	if err != nil {
		return nil, err
	}
	storeID, found, err := readMeta(q, metaStoreID)
	if err != nil {
		return nil, wrapErr("read store id", err)
	}
	if !found {
		return loadCatalog(q)
	}

	key := catalogKey(path, storeID, version)
	if v, err := catalogCache.Get(key); err == nil {
		return v.(*schema.Catalog), nil
	}
	catalog, err := loadCatalog(q)
	if err != nil {
		return nil, err
	}
	_ = catalogCache.Set(key, catalog)
	return catalog, nil
}

// loadCatalog 从 schema_classes / schema_properties 还原 schema
func loadCatalog(q querier) (*schema.Catalog, error) {
	rows, err := q.Query(`
		SELECT c.name, p.name, p.type, p.object_class, p.indexed
		FROM schema_classes c
		LEFT JOIN schema_properties p ON p.class_name = c.name
		ORDER BY c.position, p.position
	`)
	if err != nil {
		return nil, wrapErr("read schema", err)
	}
	defer rows.Close()

	var (
		order []string
		props = make(map[string][]schema.Property)
	)
	for rows.Next() {
		var (
			className                       string
			propName, typeName, objectClass sql.NullString
			indexed                         sql.NullBool
		)
		if err := rows.Scan(&className, &propName, &typeName, &objectClass, &indexed); err != nil {
			return nil, wrapErr("read schema", err)
		}
		if _, ok := props[className]; !ok {
			order = append(order, className)
			props[className] = nil
		}
		if !propName.Valid {
			continue
		}
		t, err := schema.ParsePropertyType(typeName.String)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", object.ErrCorrupt, className, propName.String, err)
		}
		props[className] = append(props[className], schema.Property{
			Name:        propName.String,
			Type:        t,
			ObjectClass: objectClass.String,
			Indexed:     indexed.Valid && indexed.Bool,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("read schema", err)
	}

	classes := make([]*schema.ObjectSchema, 0, len(order))
	for _, name := range order {
		cls, err := schema.NewObjectSchema(name, props[name]...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", object.ErrCorrupt, err)
		}
		classes = append(classes, cls)
	}
	catalog, err := schema.NewCatalog(classes...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", object.ErrCorrupt, err)
	}
	return catalog, nil
}

// saveCatalog 整体替换持久化 schema，并按索引标记重建表达式索引
func saveCatalog(q querier, catalog *schema.Catalog) error {
	if _, err := q.Exec(`DELETE FROM schema_properties`); err != nil {
		return err
	}
	if _, err := q.Exec(`DELETE FROM schema_classes`); err != nil {
		return err
	}
	if err := dropPropertyIndexes(q); err != nil {
		return err
	}

	for i, cls := range catalog.Classes() {
		if _, err := q.Exec(`INSERT INTO schema_classes (name, position) VALUES (?, ?)`, cls.ClassName, i); err != nil {
			return err
		}
		for j, p := range cls.Properties() {
			if _, err := q.Exec(`
				INSERT INTO schema_properties (class_name, name, position, type, object_class, indexed)
				VALUES (?, ?, ?, ?, ?, ?)
			`, cls.ClassName, p.Name, j, p.Type.String(), p.ObjectClass, p.Indexed); err != nil {
				return err
			}
			if p.Indexed {
				if err := createPropertyIndex(q, cls.ClassName, p.Name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// propertyIndexName 以标识符中不会出现的 "." 分隔类名与属性名，保证不同属性的索引名不冲突
func propertyIndexName(className, propName string) string {
	return fmt.Sprintf("idx_prop_%s.%s", className, propName)
}

// createPropertyIndex 类名与属性名已通过标识符校验，可以直接拼接
func createPropertyIndex(q querier, className, propName string) error {
	_, err := q.Exec(fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS "%s" ON objects(json_extract(data, '$.%s')) WHERE class_name = '%s'`,
		propertyIndexName(className, propName), propName, className))
	return err
}

func dropPropertyIndexes(q querier) error {
	rows, err := q.Query(`SELECT name FROM sqlite_master WHERE type = 'index' AND name GLOB 'idx_prop_*'`)
	if err != nil {
		return err
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, name := range names {
		if _, err := q.Exec(`DROP INDEX IF EXISTS "` + name + `"`); err != nil {
			return err
		}
	}
	return nil
}
