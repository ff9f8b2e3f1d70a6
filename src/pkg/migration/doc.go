// Package migration 存储文件的 schema 版本管理与迁移引擎
//
// 每个存储文件持久化一个 schema 版本号和一组类定义。调用方通过注册表为路径声明版本
// 和迁移回调，打开存储时引擎比较两个版本：
//
// 1. 文件不存在：按声明的 schema 和版本直接创建，不调用回调
// 2. 版本相同：什么都不做；声明的 schema 与持久化的不同则返回 ErrSchemaMismatch
// 3. 持久化版本更高：返回 ErrSchemaVersionDowngrade，文件保持不变
// 4. 持久化版本更低：获取锁文件，可选备份，在独占事务中调用一次回调，
//    然后与回调的改动一起提交新 schema 和版本；回调出错或 panic 时整体回滚
//
// 跨越多个版本时回调只调用一次，oldVersion 为持久化版本。
//
// 基本使用示例：
//
//	migration.SetSchemaVersion(2, "/path/to/app.shelf", migration.BlockFunc(
//	    func(ctx *migration.Context, oldVersion schema.Version) error {
//	        return ctx.Enumerate("Person", func(oldObj, newObj *object.Object) error {
//	            name, err := object.Value[string](oldObj, "firstName")
//	            if err != nil {
//	                return err
//	            }
//	            return newObj.Set("fullName", name)
//	        })
//	    }), migration.WithSchema(declared))
//
//	s, err := store.Open("/path/to/app.shelf")
//
// 批量迁移示例：
//
//	batcher := migration.NewBatchMigrator()
//	batcher.Add(&migration.MigrationConfig{DBPath: path1, Adapter: adapter1})
//	batcher.Add(&migration.MigrationConfig{DBPath: path2, Adapter: adapter2})
//	result := batcher.Run(true) // 并行执行
package migration
