package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/fang"
	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hylla/itemflow/internal/adapters/server"
	"github.com/hylla/itemflow/internal/adapters/storage/sqlite"
	"github.com/hylla/itemflow/internal/app"
	"github.com/hylla/itemflow/internal/config"
	"github.com/hylla/itemflow/internal/platform"
)

// version is stamped at build time.
var version = "dev"

// Environment overrides consulted when the matching flag is not set.
const (
	envConfigPath = "ITEMFLOW_CONFIG"
	envDBPath     = "ITEMFLOW_DB_PATH"
	envDevMode    = "ITEMFLOW_DEV_MODE"
	envAppName    = "ITEMFLOW_APP_NAME"
)

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg server.Config, deps server.Dependencies) error {
	return server.Run(ctx, cfg, deps)
}

// clipboardWriter copies text to the system clipboard.
var clipboardWriter = clipboard.WriteAll

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run builds the command tree and executes args through fang.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// cli holds the persistent flag values shared by every subcommand.
type cli struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	dbPath     string
	appName    string
	devMode    bool
}

// runtimeEnv is the resolved configuration for one command invocation.
type runtimeEnv struct {
	appName    string
	devMode    bool
	paths      platform.Paths
	configPath string
	cfg        config.Config
	logger     *runtimeLogger
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv(envDevMode); ok {
		defaultDevMode = envDev
	}
	defaultApp := platform.DefaultAppName
	if envApp := strings.TrimSpace(os.Getenv(envAppName)); envApp != "" {
		defaultApp = envApp
	}

	root := &cobra.Command{
		Use:   "itemflow",
		Short: "Board item lifecycle and collaboration engine",
		Long:  "itemflow tracks items on boards, applies field changes under board policy, and notifies board members.",
	}
	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to config TOML (env "+envConfigPath+")")
	flags.StringVar(&c.dbPath, "db", "", "path to sqlite database (env "+envDBPath+")")
	flags.StringVar(&c.appName, "app", defaultApp, "application name for config/data path resolution")
	flags.BoolVar(&c.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		c.serveCommand(),
		c.pathsCommand(),
		c.boardsCommand(),
		c.itemsCommand(),
	)
	return root
}

// resolvePaths applies app and dev-mode selection to the platform paths.
func (c *cli) resolvePaths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: c.appName,
		DevMode: c.devMode,
	})
}

// resolve loads config, applies flag and env overrides, and builds the logger.
// Callers must Close the returned logger.
func (c *cli) resolve() (*runtimeEnv, error) {
	paths, err := c.resolvePaths()
	if err != nil {
		return nil, err
	}

	configPath := strings.TrimSpace(c.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv(envConfigPath)); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(c.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv(envDBPath)); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}

	logger, err := newRuntimeLogger(c.stderr, c.appName, c.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	charmLog.SetDefault(logger.Console())

	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	logger.Info("configuration loaded", "app", c.appName, "dev_mode", c.devMode, "config_path", configPath, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}
	return &runtimeEnv{
		appName:    c.appName,
		devMode:    c.devMode,
		paths:      paths,
		configPath: configPath,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// withRuntime resolves the environment, opens the repository, and runs fn.
func (c *cli) withRuntime(fn func(env *runtimeEnv, repo *sqlite.Repository) error) error {
	env, err := c.resolve()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := env.logger.Close(); closeErr != nil {
			_, _ = fmt.Fprintf(c.stderr, "warning: close runtime log sink: %v\n", closeErr)
		}
	}()

	env.logger.Debug("opening sqlite repository", "db_path", env.cfg.Database.Path)
	repo, err := sqlite.Open(env.cfg.Database.Path)
	if err != nil {
		env.logger.Error("sqlite open failed", "db_path", env.cfg.Database.Path, "err", err)
		return fmt.Errorf("open sqlite repository: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			env.logger.Warn("sqlite close failed", "db_path", env.cfg.Database.Path, "err", closeErr)
		}
	}()
	return fn(env, repo)
}

// newEngine wires the engine over repo with the configured retry policy.
func newEngine(env *runtimeEnv, repo *sqlite.Repository, extra app.EngineConfig) (*app.Engine, error) {
	backoff, err := env.cfg.Engine.Backoff()
	if err != nil {
		return nil, err
	}
	extra.CommitRetries = env.cfg.Engine.CommitRetries
	extra.RetryBackoff = backoff
	return app.NewEngine(repo, repo, repo, uuid.NewString, time.Now, extra), nil
}

// parseBoolEnv reads a boolean env var; ok is false when unset or malformed.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
