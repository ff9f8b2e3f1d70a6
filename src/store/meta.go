package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/Masterminds/semver/v3"
	uuid "github.com/satori/go.uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/shelfdb/shelf/src/consts"
	"github.com/shelfdb/shelf/src/pkg/migration"
	"github.com/shelfdb/shelf/src/pkg/schema"
)

// store_meta 中的键
const (
	metaSchemaVersion        = "schema_version"
	metaStoreID              = "store_id"
	metaAppVersion           = "app_version"
	metaMinCompatibleVersion = "min_compatible_version"
)

// ErrIncompatibleWriter 存储文件要求更新的程序版本才能写入
var ErrIncompatibleWriter = errors.New("store requires a newer writer")

// querier *sql.DB 与 *sql.Tx 的公共部分
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// hasMetaTable 判断物理表结构是否已创建
func hasMetaTable(q querier) (bool, error) {
	var n int
	err := q.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'store_meta'`).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func readMeta(q querier, key string) (string, bool, error) {
	var value string
	err := q.QueryRow(`SELECT value FROM store_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func writeMeta(q querier, key, value string) error {
	_, err := q.Exec(`
		INSERT INTO store_meta (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// readVersion 读取持久化版本；表或版本号不存在时返回 migration.ErrNotFound
func readVersion(q querier) (schema.Version, error) {
	ok, err := hasMetaTable(q)
	if err != nil {
		return 0, wrapErr("read version", err)
	}
	if !ok {
		return 0, migration.ErrNotFound
	}
	value, found, err := readMeta(q, metaSchemaVersion)
	if err != nil {
		return 0, wrapErr("read version", err)
	}
	if !found {
		return 0, migration.ErrNotFound
	}
	version, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid schema version %q", migration.ErrStoreUnavailable, value)
	}
	return version, nil
}

// writeVersionInfo 写入版本号与写入程序信息；store_id 只在首次写入时生成
func writeVersionInfo(q querier, version schema.Version) error {
	if err := writeMeta(q, metaSchemaVersion, strconv.FormatUint(version, 10)); err != nil {
		return err
	}
	if _, found, err := readMeta(q, metaStoreID); err != nil {
		return err
	} else if !found {
		if err := writeMeta(q, metaStoreID, uuid.Must(uuid.NewV4()).String()); err != nil {
			return err
		}
	}
	if err := writeMeta(q, metaAppVersion, consts.Version()); err != nil {
		return err
	}
	if _, found, err := readMeta(q, metaMinCompatibleVersion); err != nil {
		return err
	} else if !found {
		return writeMeta(q, metaMinCompatibleVersion, consts.MinCompatibleVersion)
	}
	return nil
}

// checkWriter 检查当前程序版本是否满足存储文件记录的最低写入版本。
// 未注入版本号的开发构建跳过检查
func checkWriter(q querier) error {
	if consts.AppVersion == "" {
		return nil
	}
	required, found, err := readMeta(q, metaMinCompatibleVersion)
	if err != nil || !found {
		return err
	}

	current, err := semver.NewVersion(consts.AppVersion)
	if err != nil {
		return nil
	}
	minimum, err := semver.NewVersion(required)
	if err != nil {
		return fmt.Errorf("%w: invalid min_compatible_version %q", migration.ErrStoreUnavailable, required)
	}
	if current.LessThan(minimum) {
		return fmt.Errorf("%w: requires %s, running %s", ErrIncompatibleWriter, minimum, current)
	}
	return nil
}

// isBusy 判断是否为 SQLITE_BUSY / SQLITE_LOCKED
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		// golang-migrate 包装后的错误只保留了消息
		return isLockedMessage(err)
	}
	code := se.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

// wrapErr 将底层错误映射为迁移引擎可识别的错误
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isBusy(err) {
		return fmt.Errorf("%w: %s: %v", migration.ErrConcurrentAccessDenied, op, err)
	}
	return fmt.Errorf("%w: %s: %v", migration.ErrStoreUnavailable, op, err)
}
