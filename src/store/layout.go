package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var layoutMigrations embed.FS

// layoutTable 记录物理表结构版本的表，与 schema 版本无关
const layoutTable = "layout_migrations"

// applyLayout 创建或升级存储文件的物理表结构
func applyLayout(db *sql.DB) error {
	sourceDriver, err := iofs.New(layoutMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create iofs source: %w", err)
	}

	dbDriver, err := sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: layoutTable})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	mig, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply store layout: %w", err)
	}
	return nil
}

// layoutVersion 读取物理表结构版本；只读，不会创建版本表
func layoutVersion(q querier) (uint, bool, error) {
	var exists int
	if err := q.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, layoutTable).Scan(&exists); err != nil {
		return 0, false, err
	}
	if exists == 0 {
		return 0, false, nil
	}

	var (
		version int64
		dirty   bool
	)
	err := q.QueryRow(`SELECT version, dirty FROM ` + layoutTable + ` LIMIT 1`).Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint(version), dirty, nil
}
