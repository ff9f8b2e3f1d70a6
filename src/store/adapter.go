package store

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/shelfdb/shelf/src/pkg/migration"
	"github.com/shelfdb/shelf/src/pkg/object"
	"github.com/shelfdb/shelf/src/pkg/schema"
)

// DefaultBusyTimeout 等待其他写入者释放文件锁的时长
const DefaultBusyTimeout = 5 * time.Second

// Adapter 基于 SQLite 单文件的存储适配器，实现 migration.StoreAdapter。
// 文件只在第一次写入时创建，读取版本不会产生任何文件
type Adapter struct {
	path        string
	busyTimeout time.Duration

	mu          sync.Mutex
	db          *sql.DB
	layoutReady bool
	logger      *logrus.Entry
}

var _ migration.StoreAdapter = (*Adapter)(nil)

// NewAdapter 创建适配器，busyTimeout<=0 时使用 DefaultBusyTimeout
func NewAdapter(path string, busyTimeout time.Duration) *Adapter {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	return &Adapter{
		path:        path,
		busyTimeout: busyTimeout,
		logger: logrus.WithFields(logrus.Fields{
			"db_path":   path,
			"component": "store",
		}),
	}
}

// Path 存储文件路径
func (a *Adapter) Path() string {
	return a.path
}

// dsn 默认回滚日志模式，保证备份只需复制单个文件；所有事务以 BEGIN EXCLUSIVE 开启
func (a *Adapter) dsn() string {
	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", a.busyTimeout.Milliseconds()))
	params.Add("_txlock", "exclusive")
	return "file:" + a.path + "?" + params.Encode()
}

func (a *Adapter) exists() (bool, error) {
	_, err := os.Stat(a.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", migration.ErrStoreUnavailable, err)
	}
	return true, nil
}

func (a *Adapter) open() (*sql.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		return a.db, nil
	}
	db, err := sql.Open("sqlite", a.dsn())
	if err != nil {
		return nil, wrapErr("open store", err)
	}
	a.db = db
	return db, nil
}

// ReadVersion 读取持久化版本，文件不存在时返回 migration.ErrNotFound
func (a *Adapter) ReadVersion() (schema.Version, error) {
	ok, err := a.exists()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, migration.ErrNotFound
	}
	db, err := a.open()
	if err != nil {
		return 0, err
	}
	return readVersion(db)
}

// ReadSchema 读取持久化 schema，文件不存在时返回空目录
func (a *Adapter) ReadSchema() (*schema.Catalog, error) {
	ok, err := a.exists()
	if err != nil {
		return nil, err
	}
	if !ok {
		return schema.Empty(), nil
	}
	db, err := a.open()
	if err != nil {
		return nil, err
	}
	catalog, err := cachedCatalog(a.path, db)
	if errors.Is(err, migration.ErrNotFound) {
		return schema.Empty(), nil
	}
	return catalog, err
}

// BeginExclusiveWrite 开启独占写事务
func (a *Adapter) BeginExclusiveWrite() (migration.Transaction, error) {
	return a.begin()
}

func (a *Adapter) begin() (*Tx, error) {
	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create store directory: %v", migration.ErrStoreUnavailable, err)
	}
	db, err := a.open()
	if err != nil {
		return nil, err
	}
	if err := a.ensureLayout(db); err != nil {
		return nil, err
	}

	sqlTx, err := db.Begin()
	if err != nil {
		return nil, wrapErr("begin exclusive write", err)
	}
	if err := checkWriter(sqlTx); err != nil {
		_ = sqlTx.Rollback()
		if errors.Is(err, ErrIncompatibleWriter) {
			return nil, err
		}
		return nil, wrapErr("check writer", err)
	}
	return &Tx{tx: sqlTx, path: a.path}, nil
}

func (a *Adapter) ensureLayout(db *sql.DB) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.layoutReady {
		return nil
	}
	if err := applyLayout(db); err != nil {
		return wrapErr("apply layout", err)
	}
	a.layoutReady = true
	a.logger.Debug("store layout ready")
	return nil
}

// Close 关闭底层连接，可重复调用
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	a.layoutReady = false
	return err
}

// readObjects 按插入顺序读取类的全部对象
func readObjects(q querier, cls *schema.ObjectSchema) ([]*object.Object, error) {
	rows, err := q.Query(`SELECT id, data FROM objects WHERE class_name = ? ORDER BY rowid`, cls.ClassName)
	if err != nil {
		return nil, wrapErr("read objects", err)
	}
	defer rows.Close()

	var objs []*object.Object
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, wrapErr("read objects", err)
		}
		obj, err := object.Decode(cls, id, data)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", cls.ClassName, id, err)
		}
		objs = append(objs, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("read objects", err)
	}
	return objs, nil
}

func isLockedMessage(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
