package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/alecthomas/kingpin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/shelfdb/shelf/src/configs"
	"github.com/shelfdb/shelf/src/consts"
	"github.com/shelfdb/shelf/src/log"
	"github.com/shelfdb/shelf/src/pkg/migration"
	shelfsentry "github.com/shelfdb/shelf/src/pkg/sentry"
)

// cli 命令行参数与运行环境
type cli struct {
	configFile string
	debug      bool

	path       string
	schemaFile string
	toVersion  uint64
	restore    bool

	config *configs.Config
	out    io.Writer
	cancel context.CancelFunc
}

func newApp(c *cli) *kingpin.Application {
	app := kingpin.New(consts.AppName+"ctl", "Inspect and migrate shelf store files.")
	app.Version(consts.GetAppInfo().String())
	app.Flag("config", "配置文件路径").Short('c').Envar("SHELF_CONFIG").StringVar(&c.configFile)
	app.Flag("debug", "输出调试日志").Envar("SHELF_DEBUG").BoolVar(&c.debug)
	app.PreAction(c.setup)

	versionCmd := app.Command("version", "打印存储文件的 schema 版本")
	versionCmd.Arg("path", "存储文件路径").Required().StringVar(&c.path)
	versionCmd.Action(c.printVersion)

	inspectCmd := app.Command("inspect", "打印存储文件的版本、schema 与对象数量")
	inspectCmd.Arg("path", "存储文件路径").Required().StringVar(&c.path)
	inspectCmd.Action(c.inspect)

	diffCmd := app.Command("diff", "比较存储文件与 schema 文件")
	diffCmd.Arg("path", "存储文件路径").Required().StringVar(&c.path)
	diffCmd.Flag("schema", "schema YAML 文件").Required().ExistingFileVar(&c.schemaFile)
	diffCmd.Action(c.diff)

	migrateCmd := app.Command("migrate", "把存储文件迁移到指定版本")
	migrateCmd.Arg("path", "存储文件路径").Required().StringVar(&c.path)
	migrateCmd.Flag("schema", "新 schema 的 YAML 文件，留空则沿用持久化 schema").ExistingFileVar(&c.schemaFile)
	migrateCmd.Flag("to", "目标版本，留空则使用 schema 文件中的 version").Uint64Var(&c.toVersion)
	migrateCmd.Action(c.migrate)

	recoverCmd := app.Command("recover", "清理未完成迁移留下的锁文件")
	recoverCmd.Arg("path", "存储文件路径").Required().StringVar(&c.path)
	recoverCmd.Flag("restore-backup", "同时从备份恢复存储文件").BoolVar(&c.restore)
	recoverCmd.Action(c.recover)

	return app
}

func run(args []string, stdout, stderr io.Writer) int {
	// .env 不存在时忽略
	_ = godotenv.Load()

	c := &cli{out: stdout}
	defer c.teardown()

	app := newApp(c)
	app.UsageWriter(stdout)
	app.ErrorWriter(stderr)
	if _, err := app.Parse(args); err != nil {
		fmt.Fprintf(stderr, "%s: error: %v\n", app.Name, err)
		return exitCode(err)
	}
	return 0
}

// setup 在命令执行前加载配置、初始化日志与错误上报
func (c *cli) setup(*kingpin.ParseContext) error {
	cfg := configs.NewConfig()
	if c.configFile != "" {
		loaded, err := configs.NewConfigWithFile(c.configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if c.debug {
		cfg.Debug = true
	}
	// 命令行工具只输出到终端
	cfg.Log.SaveLastLog = false
	cfg.Log.SaveEveryLog = false
	if err := cfg.Verify(); err != nil {
		return err
	}
	configs.SetCurrentConfig(cfg)
	c.config = cfg

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if _, err := log.New(ctx, cfg); err != nil {
		return err
	}

	if cfg.Sentry.Enable {
		if err := shelfsentry.Init(cfg.Sentry.DSN, cfg.Sentry.Environment, consts.Version()); err != nil {
			logrus.WithError(err).Warn("failed to init sentry")
		}
	}
	return nil
}

func (c *cli) teardown() {
	shelfsentry.Flush(2 * time.Second)
	if c.cancel != nil {
		c.cancel()
	}
}

// exitCode 并发冲突返回 75（EX_TEMPFAIL），调用方可以重试
func exitCode(err error) int {
	if errors.Is(err, migration.ErrConcurrentAccessDenied) {
		return 75
	}
	return 1
}
