package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/topicnav/internal/backend"
	"github.com/hpungsan/topicnav/internal/config"
	"github.com/hpungsan/topicnav/internal/db"
	"github.com/hpungsan/topicnav/internal/errors"
	"github.com/hpungsan/topicnav/internal/gateway"
	"github.com/hpungsan/topicnav/internal/mcp"
	"github.com/hpungsan/topicnav/internal/nav"
	"github.com/hpungsan/topicnav/internal/topic"
	"github.com/hpungsan/topicnav/internal/web"
)

// appEnv carries what every command needs. It is nil for --help and --version.
type appEnv struct {
	cfg     *config.Config
	logger  *zap.Logger
	gw      gateway.Gateway
	metrics *gateway.Metrics

	// dataDir holds the development backend's database.
	dataDir string
}

// controller returns a fresh navigator over the configured gateway.
func (e *appEnv) controller() *nav.Controller {
	return nav.NewWithGateway(e.gw, e.logger)
}

// LevelOutput is the output of ls.
type LevelOutput struct {
	ActiveID   *string         `json:"active_id"`
	Breadcrumb []nav.Crumb     `json:"breadcrumb"`
	Domains    []topic.Domain  `json:"domains"`
	Distances  topic.Distances `json:"distances"`
}

// PathOutput is the output of path.
type PathOutput struct {
	ID   string         `json:"id"`
	Path []topic.Domain `json:"path"`
}

// PostsOutput is the output of posts.
type PostsOutput struct {
	DomainID string       `json:"domain_id"`
	Posts    []topic.Post `json:"posts"`
}

// SummaryOutput is the output of summarize.
type SummaryOutput struct {
	DomainID string `json:"domain_id"`
	Summary  string `json:"summary"`
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "topicnav",
		Usage:   "News topic navigator",
		Version: Version,
		Commands: []*cli.Command{
			lsCmd(env),
			pathCmd(env),
			addCmd(env),
			updateCmd(env),
			rmCmd(env),
			postsCmd(env),
			summarizeCmd(env),
			uiCmd(env),
			backendCmd(env),
			mcpCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// lsCmd creates the ls command.
func lsCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "List the topics under a topic (the top level when no id is given)",
		ArgsUsage: "[id]",
		Action: func(c *cli.Context) error {
			ctrl := env.controller()
			if err := ctrl.Navigate(c.Context, c.Args().First()); err != nil {
				return outputError(err)
			}

			v := ctrl.View()
			return outputJSON(LevelOutput{
				ActiveID:   v.ActiveID,
				Breadcrumb: v.Breadcrumb,
				Domains:    v.Domains,
				Distances:  v.Distances,
			})
		},
	}
}

// pathCmd creates the path command.
func pathCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "path",
		Usage:     "Show the ancestors of a topic, root first",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return outputError(err)
			}

			path, err := env.gw.GetPath(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(PathOutput{ID: id, Path: path})
		},
	}
}

// addCmd creates the add command.
func addCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Add a topic",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "parent", Aliases: []string{"p"}, Usage: "Parent topic id (top level when omitted)"},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Topic description"},
		},
		Action: func(c *cli.Context) error {
			ctrl := env.controller()
			if parent := c.String("parent"); parent != "" {
				if err := ctrl.Navigate(c.Context, parent); err != nil {
					return outputError(err)
				}
			}

			name := strings.Join(c.Args().Slice(), " ")
			created, err := ctrl.AddDomain(c.Context, name, c.String("description"))
			if err != nil && created == nil {
				return outputError(err)
			}
			return outputJSON(created)
		},
	}
}

// updateCmd creates the update command.
func updateCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Rename a topic or change its description",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "New name"},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "New description"},
		},
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return outputError(err)
			}

			var name, description *string
			if c.IsSet("name") {
				v := c.String("name")
				name = &v
			}
			if c.IsSet("description") {
				v := c.String("description")
				description = &v
			}

			updated, err := env.controller().UpdateDomain(c.Context, id, name, description)
			if err != nil && updated == nil {
				return outputError(err)
			}
			return outputJSON(updated)
		},
	}
}

// rmCmd creates the rm command.
func rmCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Delete a topic and all of its subtopics",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return outputError(err)
			}

			// A failed reload after the delete is not a failed delete.
			err = env.controller().DeleteDomain(c.Context, id)
			if err != nil && !errors.Is(err, errors.ErrFetchFailed) && !errors.Is(err, errors.ErrPathFetchFailed) {
				return outputError(err)
			}
			return outputJSON(map[string]any{"deleted": id})
		},
	}
}

// postsCmd creates the posts command.
func postsCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "posts",
		Usage:     "List the posts of a topic",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return outputError(err)
			}

			ctrl := env.controller()
			if err := ctrl.Navigate(c.Context, id); err != nil {
				return outputError(err)
			}
			v := ctrl.View()
			if v.PostsError != "" {
				return outputError(errors.NewStoreFailure(errors.ErrPostsFetchFailed, nil))
			}
			return outputJSON(PostsOutput{DomainID: id, Posts: v.Posts})
		},
	}
}

// summarizeCmd creates the summarize command.
func summarizeCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "summarize",
		Usage:     "Summarize the posts of a topic",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireID(c)
			if err != nil {
				return outputError(err)
			}

			ctrl := env.controller()
			if err := ctrl.Navigate(c.Context, id); err != nil {
				return outputError(err)
			}
			summary, err := ctrl.Summarize(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(SummaryOutput{DomainID: id, Summary: summary})
		},
	}
}

// uiCmd creates the ui command.
func uiCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "ui",
		Usage: "Serve the navigator web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Address to bind (default from config)"},
			&cli.IntFlag{Name: "port", Usage: "Port to listen on (default from config)"},
		},
		Action: func(c *cli.Context) error {
			bind, port := env.cfg.UIBind, env.cfg.UIPort
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			if c.IsSet("port") {
				port = c.Int("port")
			}

			ctrl := env.controller()
			// The page shows the failure; the server still starts.
			if err := ctrl.Start(c.Context); err != nil {
				env.logger.Warn("initial load failed", zap.String("backend", env.cfg.BackendURL), zap.Error(err))
			}

			srv, err := web.NewServer(ctrl, web.Options{
				Version: Version,
				Bind:    bind,
				Port:    port,
				Metrics: env.metrics,
				Logger:  env.logger,
			})
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return web.Run(srv, "topicnav ui", env.logger)
		},
	}
}

// backendCmd creates the backend command.
func backendCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "backend",
		Usage: "Serve the development news-topic API backed by SQLite",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Address to bind (default from config)"},
			&cli.IntFlag{Name: "port", Usage: "Port to listen on (default from config)"},
			&cli.StringFlag{Name: "data-dir", Usage: "Directory holding " + db.FileName + " (default ~/.topicnav)"},
		},
		Action: func(c *cli.Context) error {
			bind, port := env.cfg.BackendBind, env.cfg.BackendPort
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			if c.IsSet("port") {
				port = c.Int("port")
			}
			dataDir := env.dataDir
			if c.IsSet("data-dir") {
				dataDir = c.String("data-dir")
			}

			database, err := db.Init(dataDir)
			if err != nil {
				return outputError(errors.NewInternal(fmt.Errorf("failed to initialize database: %w", err)))
			}
			defer database.Close()
			db.ConfigurePool(database, env.cfg)

			srv := backend.NewServer(database, env.logger, bind, port)
			return web.Run(srv, "topicnav backend", env.logger)
		},
	}
}

// mcpCmd creates the mcp command. Piping input without a command does the same.
func mcpCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the navigator as MCP tools over stdio",
		Action: func(c *cli.Context) error {
			return runMCP(c.Context, env)
		},
	}
}

// runMCP starts the MCP stdio server after checking the disabled tool lists.
func runMCP(ctx context.Context, env *appEnv) error {
	if unknown := mcp.ValidateDisabledTools(env.cfg.DisabledTools); len(unknown) > 0 {
		env.logger.Warn("unknown tools in disabled_tools", zap.Strings("tools", unknown))
	}
	if unknown := mcp.ValidateDisabledTypes(env.cfg.DisabledTypes); len(unknown) > 0 {
		env.logger.Warn("unknown types in disabled_types", zap.Strings("types", unknown))
	}

	ctrl := env.controller()
	if err := ctrl.Start(ctx); err != nil {
		env.logger.Warn("initial load failed", zap.String("backend", env.cfg.BackendURL), zap.Error(err))
	}
	return mcp.Run(ctrl, env.cfg, Version)
}

// Helper functions

// requireID returns the first positional argument, trimmed.
func requireID(c *cli.Context) (string, error) {
	id := strings.TrimSpace(c.Args().First())
	if id == "" {
		return "", errors.NewInvalidRequest("a topic id is required")
	}
	return id, nil
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if navErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", navErr.Code, navErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
