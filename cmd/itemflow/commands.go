package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hylla/itemflow/internal/adapters/liveupdate"
	"github.com/hylla/itemflow/internal/adapters/server"
	"github.com/hylla/itemflow/internal/adapters/storage/sqlite"
	"github.com/hylla/itemflow/internal/app"
	"github.com/hylla/itemflow/internal/config"
	"github.com/hylla/itemflow/internal/domain"
	"github.com/hylla/itemflow/internal/tui"
)

// dispatcherDrainTimeout bounds how long serve waits for queued side effects on shutdown.
const dispatcherDrainTimeout = 5 * time.Second

func (c *cli) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, live updates, and MCP tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime(func(env *runtimeEnv, repo *sqlite.Repository) error {
				if err := ensureConfigDir(env); err != nil {
					return err
				}
				return c.runServe(cmd.Context(), env, repo)
			})
		},
	}
}

// runServe wires fan-out, notifications, and the engine, then blocks in the server.
func (c *cli) runServe(ctx context.Context, env *runtimeEnv, repo *sqlite.Repository) error {
	fanoutBackoff, err := env.cfg.Fanout.Backoff()
	if err != nil {
		return err
	}
	hub := liveupdate.NewHub(env.cfg.Fanout.QueueSize)
	dispatcher := app.NewKeyedDispatcher(app.DispatcherConfig{
		Lanes:        env.cfg.Fanout.Lanes,
		QueueSize:    env.cfg.Fanout.QueueSize,
		MaxAttempts:  env.cfg.Fanout.MaxAttempts,
		RetryBackoff: fanoutBackoff,
	})
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), dispatcherDrainTimeout)
		defer cancel()
		if closeErr := dispatcher.Close(drainCtx); closeErr != nil {
			env.logger.Warn("dispatcher drain incomplete", "err", closeErr)
		}
	}()

	engine, err := newEngine(env, repo, app.EngineConfig{
		Dispatcher:    dispatcher,
		LiveUpdates:   hub,
		Notifications: app.NotificationSinks{repo, hub},
	})
	if err != nil {
		return err
	}

	env.logger.Info("command flow start", "command", "serve", "http", env.cfg.Server.HTTPBind, "lanes", env.cfg.Fanout.Lanes)
	err = serveCommandRunner(ctx, server.Config{
		HTTPBind:      env.cfg.Server.HTTPBind,
		APIEndpoint:   env.cfg.Server.APIEndpoint,
		MCPEndpoint:   env.cfg.Server.MCPEndpoint,
		CORSOrigins:   env.cfg.Server.CORSOrigins,
		ServerName:    env.appName,
		ServerVersion: version,
	}, server.Dependencies{
		Items:  engine,
		Auth:   repo,
		Policy: repo,
		Inbox:  repo,
		Live:   hub,
		Logger: env.logger.Console(),
	})
	if err != nil {
		env.logger.Error("command flow failed", "command", "serve", "err", err)
		return fmt.Errorf("run serve command: %w", err)
	}
	env.logger.Info("command flow complete", "command", "serve")
	return nil
}

func (c *cli) pathsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data, and log locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := c.resolvePaths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", c.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", c.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(out, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

func (c *cli) boardsCommand() *cobra.Command {
	boards := &cobra.Command{
		Use:   "boards",
		Short: "Manage boards and their members",
	}
	boards.AddCommand(&cobra.Command{
		Use:   "seed <file>",
		Short: "Upsert users and boards from a YAML seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := config.LoadBoardSeed(args[0])
			if err != nil {
				return err
			}
			return c.withRuntime(func(env *runtimeEnv, repo *sqlite.Repository) error {
				if err := ensureConfigDir(env); err != nil {
					return err
				}
				ctx := cmd.Context()
				for _, user := range seed.Users {
					if err := repo.UpsertUser(ctx, user); err != nil {
						return fmt.Errorf("seed user %q: %w", user.ID, err)
					}
				}
				for _, board := range seed.Boards {
					if err := repo.UpsertBoard(ctx, board); err != nil {
						return fmt.Errorf("seed board %q: %w", board.ID, err)
					}
				}
				env.logger.Info("board seed applied", "file", args[0], "users", len(seed.Users), "boards", len(seed.Boards))
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d user(s) and %d board(s)\n", len(seed.Users), len(seed.Boards))
				return nil
			})
		},
	}, &cobra.Command{
		Use:   "list",
		Short: "List boards with their statuses, types, and member counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime(func(_ *runtimeEnv, repo *sqlite.Repository) error {
				found, err := repo.ListBoards(cmd.Context())
				if err != nil {
					return fmt.Errorf("list boards: %w", err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), tui.BoardTable(found))
				return nil
			})
		},
	}, &cobra.Command{
		Use:   "show <id>",
		Short: "Show one board with its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(func(_ *runtimeEnv, repo *sqlite.Repository) error {
				board, err := repo.GetBoard(cmd.Context(), strings.TrimSpace(args[0]))
				if errors.Is(err, app.ErrNotFound) {
					return fmt.Errorf("board %q does not exist", args[0])
				}
				if err != nil {
					return fmt.Errorf("get board %q: %w", args[0], err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), tui.BoardDetail(board))
				return nil
			})
		},
	})
	return boards
}

func (c *cli) itemsCommand() *cobra.Command {
	items := &cobra.Command{
		Use:   "items",
		Short: "Inspect items",
	}

	var (
		boardID string
		where   map[string]string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List items as a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(where) > 0 && boardID == "" {
				return fmt.Errorf("--where requires --board")
			}
			return c.withRuntime(func(env *runtimeEnv, repo *sqlite.Repository) error {
				engine, err := newEngine(env, repo, app.EngineConfig{})
				if err != nil {
					return err
				}
				ctx := cmd.Context()
				var out app.Outcome[[]domain.Item]
				switch {
				case len(where) > 0:
					out, err = engine.FilterItems(ctx, where, boardID)
				case boardID != "":
					out, err = engine.GetBoardItems(ctx, boardID)
				default:
					out, err = engine.GetAll(ctx)
				}
				found, err := outcomeValue(out, err)
				if err != nil {
					return err
				}
				domain.SortByImportance(found)
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), tui.ItemTable(found))
				return nil
			})
		},
	}
	list.Flags().StringVar(&boardID, "board", "", "board id to list")
	list.Flags().StringToStringVar(&where, "where", nil, "filter as key=value; repeatable (keys: "+filterKeys()+")")

	var (
		width   int
		style   string
		copyOut bool
	)
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one item with its description and comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(func(env *runtimeEnv, repo *sqlite.Repository) error {
				engine, err := newEngine(env, repo, app.EngineConfig{})
				if err != nil {
					return err
				}
				item, err := outcomeValue(engine.GetItem(cmd.Context(), args[0]))
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), tui.ItemDetail(item, tui.NewMarkdownRenderer(style), width))
				if copyOut {
					if err := clipboardWriter(item.Description); err != nil {
						return fmt.Errorf("copy description to clipboard: %w", err)
					}
					env.logger.Debug("description copied to clipboard", "item_id", item.ID)
				}
				return nil
			})
		},
	}
	show.Flags().IntVar(&width, "width", 80, "wrap width for the description")
	show.Flags().StringVar(&style, "style", tui.DefaultMarkdownStyle, "markdown style (auto, dark, light, notty, ascii)")
	show.Flags().BoolVar(&copyOut, "copy", false, "copy the raw description to the clipboard")

	items.AddCommand(list, show)
	return items
}

// ensureConfigDir creates the directory holding the resolved config file.
func ensureConfigDir(env *runtimeEnv) error {
	if err := config.EnsureConfigDir(env.configPath); err != nil {
		return fmt.Errorf("create config dir for %q: %w", env.configPath, err)
	}
	return nil
}

func filterKeys() string {
	fields := domain.FilterFields()
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, string(f))
	}
	return strings.Join(keys, ", ")
}

// outcomeValue turns a failed outcome into an error for terminal output.
func outcomeValue[T any](out app.Outcome[T], err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if f, failed := out.Failure(); failed {
		return zero, fmt.Errorf("%s: %s", f.Kind, f.Message)
	}
	return out.Value(), nil
}
