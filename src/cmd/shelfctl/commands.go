package main

import (
	"errors"
	"fmt"

	"github.com/alecthomas/kingpin"
	"gopkg.in/yaml.v3"

	"github.com/shelfdb/shelf/src/pkg/migration"
	"github.com/shelfdb/shelf/src/pkg/schema"
	"github.com/shelfdb/shelf/src/store"
)

func (c *cli) printVersion(*kingpin.ParseContext) error {
	version, err := store.SchemaVersionAtPath(c.path)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, version)
	return nil
}

// inspectOutput inspect 命令的 YAML 输出
type inspectOutput struct {
	Path                 string                   `yaml:"path"`
	Version              schema.Version           `yaml:"version"`
	StoreID              string                   `yaml:"store_id"`
	AppVersion           string                   `yaml:"app_version"`
	MinCompatibleVersion string                   `yaml:"min_compatible_version"`
	Layout               string                   `yaml:"layout"`
	Objects              map[string]int           `yaml:"objects"`
	Classes              []schema.ClassDescriptor `yaml:"classes"`
}

func (c *cli) inspect(*kingpin.ParseContext) error {
	info, err := store.Inspect(c.path)
	if err != nil {
		return err
	}
	layout := fmt.Sprintf("v%d", info.LayoutVersion)
	if info.LayoutDirty {
		layout += " (dirty)"
	}
	b, err := yaml.Marshal(inspectOutput{
		Path:                 info.Path,
		Version:              info.Version,
		StoreID:              info.StoreID,
		AppVersion:           info.AppVersion,
		MinCompatibleVersion: info.MinCompatibleVersion,
		Layout:               layout,
		Objects:              info.Counts,
		Classes:              schema.Describe(info.Schema),
	})
	if err != nil {
		return err
	}
	_, err = c.out.Write(b)
	return err
}

func (c *cli) diff(*kingpin.ParseContext) error {
	declared, declaredVersion, err := schema.LoadFile(c.schemaFile)
	if err != nil {
		return err
	}

	persisted := schema.Empty()
	var persistedVersion schema.Version
	info, err := store.Inspect(c.path)
	switch {
	case errors.Is(err, migration.ErrNotFound):
		fmt.Fprintf(c.out, "store %s does not exist\n", c.path)
	case err != nil:
		return err
	default:
		persisted = info.Schema
		persistedVersion = info.Version
	}

	fmt.Fprintf(c.out, "version %d -> %d\n", persistedVersion, declaredVersion)
	changes := schema.Diff(persisted, declared)
	if len(changes) == 0 {
		fmt.Fprintln(c.out, "no schema changes")
		return nil
	}
	for _, change := range changes {
		fmt.Fprintln(c.out, change.String())
	}
	if info != nil && declaredVersion <= persistedVersion {
		return fmt.Errorf("%w: schema changed without a version bump", migration.ErrSchemaMismatch)
	}
	return nil
}

func (c *cli) migrate(*kingpin.ParseContext) error {
	var (
		declared *schema.Catalog
		target   = c.toVersion
	)
	if c.schemaFile != "" {
		catalog, version, err := schema.LoadFile(c.schemaFile)
		if err != nil {
			return err
		}
		declared = catalog
		if target == 0 {
			target = version
		}
	}
	if declared == nil && target == 0 {
		return errors.New("migrate needs --schema or --to")
	}

	opts := []store.Option{
		store.WithConfig(c.config),
		store.WithMigration(target, nil),
	}
	if declared != nil {
		opts = append(opts, store.WithSchema(declared))
	}
	result, err := store.MigrateStore(c.path, opts...)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "%s: version %d -> %d\n", result.State, result.FromVersion, result.ToVersion)
	for _, change := range result.Changes {
		fmt.Fprintf(c.out, "  %s\n", change)
	}
	if result.BackupPath != "" {
		fmt.Fprintf(c.out, "backup: %s\n", result.BackupPath)
	}
	return nil
}

func (c *cli) recover(*kingpin.ParseContext) error {
	cfg := &migration.MigrationConfig{
		DBPath:             migration.NormalizePath(c.path),
		BackupKeep:         c.config.Migration.BackupKeep,
		BackupNameTemplate: c.config.Migration.BackupNameTmpl,
		LockStaleAfter:     c.config.Migration.LockStaleAfter,
	}
	migrator, err := migration.NewMigrator(cfg)
	if err != nil {
		return err
	}

	recovered, err := migrator.CheckAndRecover()
	if err != nil {
		return err
	}
	if recovered {
		fmt.Fprintln(c.out, "removed stale migration lock")
	} else {
		fmt.Fprintln(c.out, "no stale migration lock")
	}

	if !c.restore {
		return nil
	}
	if err := migrator.Rollback(); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "restored store from backup")
	return nil
}
