package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelf/src/configs"
	"github.com/shelfdb/shelf/src/consts"
	"github.com/shelfdb/shelf/src/pkg/migration"
	"github.com/shelfdb/shelf/src/pkg/object"
	"github.com/shelfdb/shelf/src/pkg/schema"
)

var (
	stringObjectV0 = schema.MustFromDeclared(schema.ClassDescriptor{
		Name:       "SwiftStringObject",
		Properties: []schema.PropertyDescriptor{{Name: "stringCol", Type: schema.TypeInt}},
	})
	stringObjectV1 = schema.MustFromDeclared(schema.ClassDescriptor{
		Name:       "SwiftStringObject",
		Properties: []schema.PropertyDescriptor{{Name: "stringCol", Type: schema.TypeString}},
	})
	personV0 = schema.MustFromDeclared(
		schema.ClassDescriptor{Name: "Person", Properties: []schema.PropertyDescriptor{
			{Name: "firstName", Type: schema.TypeString},
			{Name: "lastName", Type: schema.TypeString},
			{Name: "age", Type: schema.TypeInt, Indexed: true},
		}},
		schema.ClassDescriptor{Name: "Legacy", Properties: []schema.PropertyDescriptor{
			{Name: "note", Type: schema.TypeString},
		}},
	)
	personV1 = schema.MustFromDeclared(
		schema.ClassDescriptor{Name: "Person", Properties: []schema.PropertyDescriptor{
			{Name: "fullName", Type: schema.TypeString, Indexed: true},
			{Name: "age", Type: schema.TypeInt},
			{Name: "pet", Type: schema.TypeObject, ObjectClass: "Pet"},
		}},
		schema.ClassDescriptor{Name: "Pet", Properties: []schema.PropertyDescriptor{
			{Name: "name", Type: schema.TypeString},
		}},
	)
)

func newStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.shelf")
}

func openStore(t *testing.T, path string, opts ...Option) *Store {
	t.Helper()
	s, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func counterBlock(counter *int) migration.Block {
	return migration.BlockFunc(func(*migration.Context, schema.Version) error {
		*counter++
		return nil
	})
}

func TestSchemaVersionAtPath(t *testing.T) {
	path := newStorePath(t)

	_, err := SchemaVersionAtPath(path)
	assert.ErrorIs(t, err, migration.ErrNotFound)
	// 读取版本不会创建文件
	assert.NoFileExists(t, path)

	openStore(t, path, WithRegistry(migration.NewRegistry())).Close()

	version, err := SchemaVersionAtPath(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), version)
}

func TestSchemaVersionAtPath_UninitializedFile(t *testing.T) {
	path := newStorePath(t)
	require.NoError(t, os.WriteFile(path, nil, 0644))

	_, err := SchemaVersionAtPath(path)
	assert.ErrorIs(t, err, migration.ErrNotFound)
}

func TestOpen_CallbackInvokedOnce(t *testing.T) {
	path := newStorePath(t)
	r := migration.NewRegistry()
	openStore(t, path, WithRegistry(r)).Close()

	counter := 0
	require.NoError(t, r.SetVersion(path, 1, counterBlock(&counter)))

	s := openStore(t, path, WithRegistry(r))
	assert.Equal(t, 1, counter)
	assert.Equal(t, uint64(1), s.Version())
	assert.Equal(t, migration.StateCommitted, s.MigrationResult().State)
	require.NoError(t, s.Close())

	s = openStore(t, path, WithRegistry(r))
	assert.Equal(t, 1, counter)
	assert.Equal(t, migration.StateNoOp, s.MigrationResult().State)

	version, err := SchemaVersionAtPath(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
}

func TestMigrateStore(t *testing.T) {
	path := newStorePath(t)
	r := migration.NewRegistry()
	openStore(t, path, WithRegistry(r)).Close()

	counter := 0
	require.NoError(t, r.SetVersion(path, 1, counterBlock(&counter)))

	result, err := MigrateStore(path, WithRegistry(r))
	require.NoError(t, err)
	assert.Equal(t, migration.StateCommitted, result.State)
	assert.True(t, result.CallbackInvoked)
	assert.Equal(t, uint64(0), result.FromVersion)
	assert.Equal(t, uint64(1), result.ToVersion)

	result, err = MigrateStore(path, WithRegistry(r))
	require.NoError(t, err)
	assert.Equal(t, migration.StateNoOp, result.State)
	assert.Equal(t, 1, counter)
}

func TestOpen_GlobalRegistry(t *testing.T) {
	t.Cleanup(migration.ResetRegistry)
	path := newStorePath(t)
	openStore(t, path).Close()

	invoked := false
	require.NoError(t, migration.SetSchemaVersion(1, path, migration.BlockFunc(func(ctx *migration.Context, oldVersion schema.Version) error {
		invoked = true
		assert.Equal(t, uint64(0), oldVersion)
		assert.Equal(t, uint64(1), ctx.NewVersion)
		return nil
	})))

	_, err := MigrateStore(path)
	require.NoError(t, err)
	assert.True(t, invoked)

	version, err := SchemaVersionAtPath(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
}

func TestOpenDefault(t *testing.T) {
	r := migration.NewRegistry()
	defaultPath := filepath.Join(t.TempDir(), consts.DefaultStoreFile)
	r.SetDefaultPath(defaultPath)

	s, err := OpenDefault(WithRegistry(r))
	require.NoError(t, err)
	assert.Equal(t, defaultPath, s.Path())
	assert.Equal(t, uint64(0), s.Version())
	require.NoError(t, s.Close())

	counter := 0
	require.NoError(t, r.SetDefaultVersion(1, counterBlock(&counter)))
	s, err = OpenDefault(WithRegistry(r))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, uint64(1), s.Version())
	assert.Equal(t, 1, counter)

	_, err = Open("")
	assert.Error(t, err)
}

func TestOpen_RejectsDowngrade(t *testing.T) {
	path := newStorePath(t)
	r := migration.NewRegistry()
	require.NoError(t, r.SetVersion(path, 2, nil))
	openStore(t, path, WithRegistry(r)).Close()

	// 同一注册表内无法注册更低的版本
	assert.ErrorIs(t, r.SetVersion(path, 1, nil), migration.ErrInvalidVersion)

	other := migration.NewRegistry()
	require.NoError(t, other.SetVersion(path, 1, nil))
	_, err := Open(path, WithRegistry(other))
	assert.ErrorIs(t, err, migration.ErrSchemaVersionDowngrade)

	version, err := SchemaVersionAtPath(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), version)
}

func TestOpen_FailingCallbackLeavesStoreUnchanged(t *testing.T) {
	path := newStorePath(t)
	r := migration.NewRegistry()
	s := openStore(t, path, WithRegistry(r), WithSchema(personV0))
	_, err := s.Add("Person", map[string]any{"firstName": "Alice", "lastName": "Smith", "age": 30})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	cause := errors.New("boom")
	require.NoError(t, r.SetVersion(path, 1, migration.BlockFunc(func(ctx *migration.Context, _ schema.Version) error {
		if _, err := ctx.Create("Pet", map[string]any{"name": "Rex"}); err != nil {
			return err
		}
		if err := ctx.DeleteData("Person"); err != nil {
			return err
		}
		return cause
	}), migration.WithSchema(personV1)))

	_, err = Open(path, WithRegistry(r))
	assert.ErrorIs(t, err, migration.ErrMigrationCallbackFailed)
	assert.ErrorIs(t, err, cause)

	version, err := SchemaVersionAtPath(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), version)

	info, err := Inspect(path)
	require.NoError(t, err)
	assert.True(t, info.Schema.Equal(personV0))
	assert.Equal(t, map[string]int{"Person": 1}, info.Counts)
}

func TestOpen_MigrationProperties(t *testing.T) {
	path := newStorePath(t)
	r := migration.NewRegistry()

	s := openStore(t, path, WithRegistry(r), WithSchema(stringObjectV0))
	_, err := s.Add("SwiftStringObject", map[string]any{"stringCol": 42})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.NoError(t, r.SetVersion(path, 1, migration.BlockFunc(func(ctx *migration.Context, _ schema.Version) error {
		oldType, err := ctx.OldSchema.PropertyType("SwiftStringObject", "stringCol")
		require.NoError(t, err)
		assert.Equal(t, schema.TypeInt, oldType)
		newType, err := ctx.NewSchema.PropertyType("SwiftStringObject", "stringCol")
		require.NoError(t, err)
		assert.Equal(t, schema.TypeString, newType)

		return ctx.Enumerate("SwiftStringObject", func(oldObj, newObj *object.Object) error {
			n, err := object.Value[int64](oldObj, "stringCol")
			if err != nil {
				return err
			}
			return newObj.Set("stringCol", fmt.Sprintf("value-%d", n))
		})
	})))

	s = openStore(t, path, WithRegistry(r), WithSchema(stringObjectV1))
	assert.Equal(t, uint64(1), s.Version())
	assert.True(t, s.Schema().Equal(stringObjectV1))

	objs, err := s.Objects("SwiftStringObject")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	v, err := object.Value[string](objs[0], "stringCol")
	require.NoError(t, err)
	assert.Equal(t, "value-42", v)
}

func TestOpen_MigrationTransformsObjects(t *testing.T) {
	path := newStorePath(t)
	r := migration.NewRegistry()

	s := openStore(t, path, WithRegistry(r), WithSchema(personV0))
	alice, err := s.Add("Person", map[string]any{"firstName": "Alice", "lastName": "Smith", "age": 30})
	require.NoError(t, err)
	_, err = s.Add("Person", map[string]any{"firstName": "Bob", "lastName": "Jones", "age": 40})
	require.NoError(t, err)
	_, err = s.Add("Legacy", map[string]any{"note": "keep me"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.NoError(t, r.SetVersion(path, 3, migration.BlockFunc(func(ctx *migration.Context, oldVersion schema.Version) error {
		// 跨多个版本只调用一次
		assert.Equal(t, uint64(0), oldVersion)
		pet, err := ctx.Create("Pet", map[string]any{"name": "Rex"})
		if err != nil {
			return err
		}
		return ctx.Enumerate("Person", func(oldObj, newObj *object.Object) error {
			first, _ := object.Value[string](oldObj, "firstName")
			last, _ := object.Value[string](oldObj, "lastName")
			if err := newObj.Set("fullName", first+" "+last); err != nil {
				return err
			}
			if first == "Alice" {
				return newObj.Set("pet", pet.ID)
			}
			return nil
		})
	})))

	s = openStore(t, path, WithRegistry(r), WithSchema(personV1))
	assert.Equal(t, uint64(3), s.Version())
	result := s.MigrationResult()
	assert.True(t, result.CallbackInvoked)
	assert.NotEmpty(t, result.Changes)

	got, err := s.Object("Person", alice.ID)
	require.NoError(t, err)
	fullName, err := object.Value[string](got, "fullName")
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", fullName)
	age, err := object.Value[int64](got, "age")
	require.NoError(t, err)
	assert.Equal(t, int64(30), age)
	_, err = got.Get("firstName")
	assert.ErrorIs(t, err, schema.ErrPropertyNotFound)

	petID, err := object.Value[string](got, "pet")
	require.NoError(t, err)
	pet, err := s.Object("Pet", petID)
	require.NoError(t, err)
	name, _ := object.Value[string](pet, "name")
	assert.Equal(t, "Rex", name)

	n, err := s.Count("Person")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// 已删除类的数据仍保留在文件中，但不再能通过 schema 访问
	_, err = s.Objects("Legacy")
	assert.ErrorIs(t, err, schema.ErrClassNotFound)
	info, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Counts["Legacy"])
}

func TestOpen_SchemaMismatchAtSameVersion(t *testing.T) {
	path := newStorePath(t)
	r := migration.NewRegistry()
	openStore(t, path, WithRegistry(r), WithSchema(stringObjectV0)).Close()

	_, err := Open(path, WithRegistry(r), WithSchema(stringObjectV1))
	assert.ErrorIs(t, err, migration.ErrSchemaMismatch)

	// 不声明 schema 时按持久化 schema 打开
	s := openStore(t, path, WithRegistry(r))
	assert.True(t, s.Schema().Equal(stringObjectV0))
}

func TestOpen_ExplicitMigration(t *testing.T) {
	path := newStorePath(t)
	openStore(t, path, WithRegistry(migration.NewRegistry())).Close()

	counter := 0
	s := openStore(t, path, WithRegistry(migration.NewRegistry()), WithMigration(4, counterBlock(&counter)))
	assert.Equal(t, uint64(4), s.Version())
	assert.Equal(t, 1, counter)
}

func TestOpen_BackupBeforeMigration(t *testing.T) {
	path := newStorePath(t)
	r := migration.NewRegistry()
	cfg := configs.NewConfig()
	cfg.Migration.Backup = true
	cfg.Migration.BackupNameTmpl = `{{ .Base }}.backup_v{{ .Version }}`

	s := openStore(t, path, WithRegistry(r), WithConfig(cfg), WithSchema(stringObjectV0))
	assert.Empty(t, s.MigrationResult().BackupPath)
	require.NoError(t, s.Close())

	require.NoError(t, r.SetVersion(path, 1, nil, migration.WithSchema(stringObjectV1)))
	s = openStore(t, path, WithRegistry(r), WithConfig(cfg))
	backupPath := s.MigrationResult().BackupPath
	assert.Equal(t, path+".backup_v0", backupPath)

	// 备份是迁移前的完整单文件副本
	version, err := SchemaVersionAtPath(backupPath)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), version)
	assert.NoFileExists(t, path+".migration.lock")
}

func TestStore_ObjectLifecycle(t *testing.T) {
	s := openStore(t, newStorePath(t), WithRegistry(migration.NewRegistry()), WithSchema(personV1))

	pet, err := s.Add("Pet", map[string]any{"name": "Rex"})
	require.NoError(t, err)
	require.NoError(t, pet.Set("name", "Max"))
	require.NoError(t, s.Put(pet))

	got, err := s.Object("Pet", pet.ID)
	require.NoError(t, err)
	name, _ := object.Value[string](got, "name")
	assert.Equal(t, "Max", name)

	require.NoError(t, s.Delete(got))
	_, err = s.Object("Pet", pet.ID)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, err = s.Add("Nope", nil)
	assert.ErrorIs(t, err, schema.ErrClassNotFound)
	_, err = s.Add("Pet", map[string]any{"name": 1})
	assert.ErrorIs(t, err, object.ErrTypeMismatch)

	// 其他 schema 构建的对象不能写入
	foreign, err := object.New(stringObjectV0.MustClass("SwiftStringObject"), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Put(foreign), schema.ErrClassNotFound)

	require.NoError(t, s.Close())
	_, err = s.Objects("Pet")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close())
}

func TestStore_WriteAfterConcurrentMigration(t *testing.T) {
	path := newStorePath(t)
	s := openStore(t, path, WithRegistry(migration.NewRegistry()), WithSchema(stringObjectV0))

	r := migration.NewRegistry()
	require.NoError(t, r.SetVersion(path, 1, nil, migration.WithSchema(stringObjectV1)))
	openStore(t, path, WithRegistry(r)).Close()

	_, err := s.Add("SwiftStringObject", map[string]any{"stringCol": 1})
	assert.ErrorIs(t, err, migration.ErrSchemaMismatch)
}

func TestAdapter_ExclusiveWrite(t *testing.T) {
	path := newStorePath(t)
	openStore(t, path, WithRegistry(migration.NewRegistry())).Close()

	holder := NewAdapter(path, 0)
	defer holder.Close()
	tx, err := holder.BeginExclusiveWrite()
	require.NoError(t, err)

	other := NewAdapter(path, 50*time.Millisecond)
	defer other.Close()
	_, err = other.BeginExclusiveWrite()
	assert.ErrorIs(t, err, migration.ErrConcurrentAccessDenied)

	require.NoError(t, tx.Abort())
	assert.NoError(t, tx.Abort())

	tx, err = other.BeginExclusiveWrite()
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
}

func TestAdapter_IncompatibleWriter(t *testing.T) {
	t.Cleanup(func() { consts.AppVersion = "" })
	path := newStorePath(t)
	s := openStore(t, path, WithRegistry(migration.NewRegistry()), WithSchema(stringObjectV0))

	consts.AppVersion = "0.0.1"
	_, err := s.Add("SwiftStringObject", nil)
	assert.ErrorIs(t, err, ErrIncompatibleWriter)

	consts.AppVersion = "1.2.0"
	_, err = s.Add("SwiftStringObject", nil)
	assert.NoError(t, err)
}

func TestInspect(t *testing.T) {
	path := newStorePath(t)
	_, err := Inspect(path)
	assert.ErrorIs(t, err, migration.ErrNotFound)

	s := openStore(t, path, WithRegistry(migration.NewRegistry()), WithSchema(personV0))
	_, err = s.Add("Legacy", map[string]any{"note": "x"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	info, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, path, info.Path)
	assert.Equal(t, uint64(0), info.Version)
	assert.NotEmpty(t, info.StoreID)
	assert.Equal(t, consts.DevVersion, info.AppVersion)
	assert.Equal(t, consts.MinCompatibleVersion, info.MinCompatibleVersion)
	assert.Equal(t, uint(1), info.LayoutVersion)
	assert.False(t, info.LayoutDirty)
	assert.True(t, info.Schema.Equal(personV0))
	assert.Equal(t, map[string]int{"Legacy": 1}, info.Counts)
}

func TestAdapter_ReadSchemaCached(t *testing.T) {
	path := newStorePath(t)
	openStore(t, path, WithRegistry(migration.NewRegistry()), WithSchema(personV0)).Close()

	a := NewAdapter(path, 0)
	defer a.Close()
	first, err := a.ReadSchema()
	require.NoError(t, err)
	second, err := a.ReadSchema()
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.True(t, first.Equal(personV0))

	missing := NewAdapter(newStorePath(t), 0)
	defer missing.Close()
	empty, err := missing.ReadSchema()
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
	assert.NoFileExists(t, missing.Path())
}

func TestOpen_FreshStoreRunsCallbackOnce(t *testing.T) {
	path := newStorePath(t)
	r := migration.NewRegistry()

	calls := 0
	require.NoError(t, r.SetVersion(path, 1, migration.BlockFunc(func(ctx *migration.Context, oldVersion schema.Version) error {
		calls++
		assert.Equal(t, uint64(0), oldVersion)
		assert.True(t, ctx.OldSchema.IsEmpty())
		_, err := ctx.Create("Pet", map[string]any{"name": "Rex"})
		return err
	}), migration.WithSchema(personV1)))

	s := openStore(t, path, WithRegistry(r))
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), s.Version())
	result := s.MigrationResult()
	assert.Equal(t, migration.StateCommitted, result.State)
	assert.True(t, result.CallbackInvoked)
	assert.Equal(t, uint64(0), result.FromVersion)

	n, err := s.Count("Pet")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, s.Close())

	s = openStore(t, path, WithRegistry(r))
	assert.Equal(t, 1, calls)
	assert.Equal(t, migration.StateNoOp, s.MigrationResult().State)

	version, err := SchemaVersionAtPath(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
	assert.NoFileExists(t, path+".migration.lock")
}

func TestOpen_FreshStoreFailingCallbackLeavesStoreUninitialized(t *testing.T) {
	path := newStorePath(t)
	r := migration.NewRegistry()
	require.NoError(t, r.SetVersion(path, 1, migration.BlockFunc(func(*migration.Context, schema.Version) error {
		return errors.New("boom")
	}), migration.WithSchema(personV1)))

	_, err := Open(path, WithRegistry(r))
	assert.ErrorIs(t, err, migration.ErrMigrationCallbackFailed)

	_, err = SchemaVersionAtPath(path)
	assert.ErrorIs(t, err, migration.ErrNotFound)
}

func TestOpen_CopiedStoreKeepsOwnSchema(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.shelf")
	b := filepath.Join(dir, "b.shelf")
	openStore(t, a, WithRegistry(migration.NewRegistry())).Close()

	// 复制的文件与原文件共享 store_id
	data, err := os.ReadFile(a)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(b, data, 0644))

	r := migration.NewRegistry()
	require.NoError(t, r.SetVersion(a, 1, nil, migration.WithSchema(personV0)))
	require.NoError(t, r.SetVersion(b, 1, nil, migration.WithSchema(stringObjectV1)))

	sa := openStore(t, a, WithRegistry(r))
	assert.True(t, sa.Schema().Equal(personV0))
	require.NoError(t, sa.Close())

	sb := openStore(t, b, WithRegistry(r))
	assert.True(t, sb.Schema().Equal(stringObjectV1))
	// 提交后缓存持有新写入的 schema
	assert.Same(t, stringObjectV1, sb.Schema())
	require.NoError(t, sb.Close())

	infoA, err := Inspect(a)
	require.NoError(t, err)
	infoB, err := Inspect(b)
	require.NoError(t, err)
	assert.Equal(t, infoA.StoreID, infoB.StoreID)
	assert.True(t, infoA.Schema.Equal(personV0))
	assert.True(t, infoB.Schema.Equal(stringObjectV1))
}

func TestAdapter_PropertyIndexNamesDoNotCollide(t *testing.T) {
	path := newStorePath(t)
	catalog := schema.MustFromDeclared(
		schema.ClassDescriptor{Name: "A_b", Properties: []schema.PropertyDescriptor{
			{Name: "c", Type: schema.TypeString, Indexed: true},
		}},
		schema.ClassDescriptor{Name: "A", Properties: []schema.PropertyDescriptor{
			{Name: "b_c", Type: schema.TypeString, Indexed: true},
		}},
	)
	openStore(t, path, WithRegistry(migration.NewRegistry()), WithSchema(catalog)).Close()

	a := NewAdapter(path, 0)
	defer a.Close()
	db, err := a.open()
	require.NoError(t, err)

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'index' AND name GLOB 'idx_prop_*' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"idx_prop_A.b_c", "idx_prop_A_b.c"}, names)
}
