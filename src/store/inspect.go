package store

import (
	"github.com/shelfdb/shelf/src/pkg/migration"
	"github.com/shelfdb/shelf/src/pkg/schema"
)

// Info 存储文件的只读概览
type Info struct {
	Path                 string
	Version              schema.Version
	StoreID              string
	AppVersion           string
	MinCompatibleVersion string
	LayoutVersion        uint
	LayoutDirty          bool
	Schema               *schema.Catalog
	// Counts 每个类（包括已从 schema 删除但仍有数据的类）的对象数量
	Counts map[string]int
}

// Inspect 读取存储概览，不创建文件也不触发迁移
func Inspect(path string) (*Info, error) {
	adapter := NewAdapter(migration.NormalizePath(path), 0)
	defer adapter.Close()

	version, err := adapter.ReadVersion()
	if err != nil {
		return nil, err
	}
	catalog, err := adapter.ReadSchema()
	if err != nil {
		return nil, err
	}
	db, err := adapter.open()
	if err != nil {
		return nil, err
	}

	info := &Info{
		Path:    adapter.Path(),
		Version: version,
		Schema:  catalog,
		Counts:  make(map[string]int),
	}
	for key, dst := range map[string]*string{
		metaStoreID:              &info.StoreID,
		metaAppVersion:           &info.AppVersion,
		metaMinCompatibleVersion: &info.MinCompatibleVersion,
	} {
		value, _, err := readMeta(db, key)
		if err != nil {
			return nil, wrapErr("read meta", err)
		}
		*dst = value
	}
	if info.LayoutVersion, info.LayoutDirty, err = layoutVersion(db); err != nil {
		return nil, wrapErr("read layout version", err)
	}

	rows, err := db.Query(`SELECT class_name, COUNT(*) FROM objects GROUP BY class_name`)
	if err != nil {
		return nil, wrapErr("count objects", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			className string
			n         int
		)
		if err := rows.Scan(&className, &n); err != nil {
			return nil, wrapErr("count objects", err)
		}
		info.Counts[className] = n
	}
	return info, wrapErr("count objects", rows.Err())
}
