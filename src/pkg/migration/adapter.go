//go:generate go run go.uber.org/mock/mockgen -package migration -destination mock_test.go github.com/shelfdb/shelf/src/pkg/migration StoreAdapter,Transaction
package migration

import (
	"github.com/shelfdb/shelf/src/pkg/object"
	"github.com/shelfdb/shelf/src/pkg/schema"
)

// StoreAdapter 迁移引擎访问存储文件的唯一入口
type StoreAdapter interface {
	// ReadVersion 读取持久化版本，文件从未创建时返回 ErrNotFound
	ReadVersion() (schema.Version, error)
	// ReadSchema 读取持久化的 schema，未创建时返回空目录
	ReadSchema() (*schema.Catalog, error)
	// BeginExclusiveWrite 开启独占写事务，已被占用时返回 ErrConcurrentAccessDenied
	BeginExclusiveWrite() (Transaction, error)
	// Path 存储文件路径
	Path() string
	Close() error
}

// Transaction 独占写事务，Commit 与 Abort 只能调用其一
type Transaction interface {
	ReadVersion() (schema.Version, error)
	ReadSchema() (*schema.Catalog, error)
	// EnumerateObjects 按持久化 schema 读取类的全部对象
	EnumerateObjects(className string) ([]*object.Object, error)
	PutObject(obj *object.Object) error
	DeleteObject(className, id string) error
	DeleteClassData(className string) error
	// WriteSchemaAndVersion 替换 schema 与版本号，并将已有对象调整为新结构
	WriteSchemaAndVersion(catalog *schema.Catalog, version schema.Version) error
	Commit() error
	Abort() error
}
