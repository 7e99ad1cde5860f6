// Command sqlitebak takes incremental page-level backups of SQLite databases.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/sqlite-incbackup/internal/catalog"
	"github.com/ramonehamilton/sqlite-incbackup/internal/config"
	"github.com/ramonehamilton/sqlite-incbackup/internal/fingerprint"
	"github.com/ramonehamilton/sqlite-incbackup/internal/incremental"
	"github.com/ramonehamilton/sqlite-incbackup/internal/storage"
	"github.com/ramonehamilton/sqlite-incbackup/internal/ui"
	"github.com/ramonehamilton/sqlite-incbackup/internal/workspace"
)

// Exit statuses outside the error taxonomy.
const (
	exitUsage        = 1
	exitUnclassified = 255
)

// usageError marks bad flags, arguments or configuration.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := newApp(stdout, stderr)
	app.SetArgs(args)

	err := app.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
	}
	return exitCode(err)
}

// exitCode maps err to the process exit status: the taxonomy code for engine
// failures, exitUsage for usage and configuration errors, exitUnclassified
// for everything else.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if kind := incremental.KindOf(err); kind != incremental.KindUnknown {
		return kind.Code()
	}
	var ue usageError
	if errors.As(err, &ue) {
		return exitUsage
	}
	return exitUnclassified
}

func newApp(stdout, stderr io.Writer) *cobra.Command {
	globalCmd := &cmdGlobal{stdout: stdout, stderr: stderr}

	app := &cobra.Command{}
	app.Use = "sqlitebak"
	app.Short = "Incremental page-level SQLite backups"
	app.Long = `Description:
  Incremental page-level SQLite backups

  Each run fingerprints every database page and rewrites only the pages
  that changed since the previous run. Restores are checked against a
  meta-fingerprint and the reference database's first page before anything
  is written.`
	app.SilenceUsage = true
	app.SilenceErrors = true
	app.CompletionOptions.DisableDefaultCmd = true
	app.SetOut(stdout)
	app.SetErr(stderr)
	app.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	app.PersistentFlags().StringVarP(&globalCmd.flagConfig, "config", "c", "", "Path to the config file"+"``")
	app.PersistentFlags().StringVarP(&globalCmd.flagWorkspace, "workspace", "w", "", "Backup workspace directory"+"``")
	app.PersistentFlags().StringVarP(&globalCmd.flagName, "name", "n", "", "Backup name (defaults to the database file name)"+"``")
	app.PersistentFlags().StringVar(&globalCmd.flagDB, "db", "", "Path to the SQLite database"+"``")
	app.PersistentFlags().BoolVar(&globalCmd.flagNoColor, "no-color", false, "Disable colored output")
	app.PersistentFlags().StringVar(&globalCmd.flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)"+"``")

	backupCmd := cmdBackup{global: globalCmd}
	app.AddCommand(backupCmd.Command())

	restoreCmd := cmdRestore{global: globalCmd}
	app.AddCommand(restoreCmd.Command())

	clearCmd := cmdClear{global: globalCmd}
	app.AddCommand(clearCmd.Command())

	verifyCmd := cmdVerify{global: globalCmd}
	app.AddCommand(verifyCmd.Command())

	historyCmd := cmdHistory{global: globalCmd}
	app.AddCommand(historyCmd.Command())

	watchCmd := cmdWatch{global: globalCmd}
	app.AddCommand(watchCmd.Command())

	pushCmd := cmdPush{global: globalCmd}
	app.AddCommand(pushCmd.Command())

	pullCmd := cmdPull{global: globalCmd}
	app.AddCommand(pullCmd.Command())

	versionCmd := cmdVersion{global: globalCmd}
	app.AddCommand(versionCmd.Command())

	globalCmd.cmd = app
	return app
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return usageError{err}
	}
	return nil
}

type cmdGlobal struct {
	cmd    *cobra.Command
	stdout io.Writer
	stderr io.Writer

	flagConfig    string
	flagWorkspace string
	flagName      string
	flagDB        string
	flagNoColor   bool
	flagLogLevel  string

	config *config.Config
	unit   workspace.Unit
	hash   fingerprint.HashFunc
	logger *slog.Logger
}

// Setup loads the config file, applies flag overrides and resolves the
// Backup Unit. Every command except version calls it first.
func (c *cmdGlobal) Setup() error {
	ui.InitColors(c.flagNoColor)
	ui.SetOutput(c.stdout)

	path := c.flagConfig
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return usageError{err}
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		return usageError{err}
	}

	if c.flagWorkspace != "" {
		cfg.Backup.Workspace = c.flagWorkspace
	}
	if c.flagName != "" {
		cfg.Backup.Name = c.flagName
	}
	if c.flagDB != "" {
		cfg.Database.Path = c.flagDB
	}
	if c.flagLogLevel != "" {
		cfg.Log.Level = c.flagLogLevel
	}
	if cfg.Backup.Name == "" && cfg.Database.Path != "" {
		base := filepath.Base(cfg.Database.Path)
		cfg.Backup.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if cfg.Backup.Name == "" {
		return usagef("a backup name is required (--name or --db)")
	}

	if err := cfg.Validate(); err != nil {
		return usageError{err}
	}

	unit, err := cfg.Unit()
	if err != nil {
		return usageError{err}
	}
	hash, err := fingerprint.ByName(cfg.Backup.Hash)
	if err != nil {
		return usageError{err}
	}
	level, err := cfg.GetLogLevel()
	if err != nil {
		return usageError{err}
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "json") {
		c.logger = slog.New(slog.NewJSONHandler(c.stderr, opts))
	} else {
		c.logger = slog.New(slog.NewTextHandler(c.stderr, opts))
	}

	c.config = cfg
	c.unit = unit
	c.hash = hash
	return nil
}

// openDB opens path as a page source. mustExist rejects paths that do not
// exist yet, since opening would otherwise create an empty database.
func (c *cmdGlobal) openDB(path string, mustExist bool) (*storage.DB, error) {
	if path == "" {
		return nil, usagef("a database path is required (--db or database.path)")
	}
	if mustExist && !workspace.Exists(path) {
		return nil, usagef("database %s does not exist", path)
	}

	busy, err := c.config.GetBusyTimeout()
	if err != nil {
		return nil, usageError{err}
	}

	dbConfig := storage.DefaultConfig(path)
	dbConfig.JournalMode = c.config.Database.JournalMode
	if busy > 0 {
		dbConfig.BusyTimeout = busy
	}
	return storage.Open(dbConfig)
}

// openCatalog opens the workspace run catalog when enabled. With create
// unset, a workspace that does not exist yet yields no catalog instead of
// being created as a side effect.
func (c *cmdGlobal) openCatalog(create bool) (*catalog.Catalog, error) {
	if !c.config.Backup.Catalog {
		return nil, nil
	}
	if !create && !workspace.Exists(c.unit.Dir) {
		return nil, nil
	}
	return catalog.Open(c.unit.CatalogPath())
}

// Engine builds the configured engine. The returned close func releases the
// catalog, if one was opened.
func (c *cmdGlobal) Engine(create bool, extra ...incremental.Option) (incremental.Engine, func(), error) {
	version, err := incremental.ParseVersion(c.config.Backup.Engine)
	if err != nil {
		return nil, nil, usageError{err}
	}

	opts := []incremental.Option{incremental.WithLogger(c.logger)}
	if !c.config.Backup.Lock {
		opts = append(opts, incremental.WithoutLock())
	}

	closeFn := func() {}
	cat, err := c.openCatalog(create)
	if err != nil {
		c.logger.Warn("Run catalog unavailable", "path", c.unit.CatalogPath(), "error", err)
	} else if cat != nil {
		opts = append(opts, incremental.WithRecorder(cat))
		closeFn = func() {
			if err := cat.Close(); err != nil {
				c.logger.Warn("Failed to close run catalog", "error", err)
			}
		}
	}
	opts = append(opts, extra...)

	engine, err := incremental.New(version, c.unit, c.hash, opts...)
	if err != nil {
		closeFn()
		return nil, nil, usageError{err}
	}
	return engine, closeFn, nil
}
