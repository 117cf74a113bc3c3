package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"projectdesk/internal/app"
	"projectdesk/internal/config"
	"projectdesk/internal/db"
	"projectdesk/internal/engine"
	"projectdesk/internal/events"
	"projectdesk/internal/fixtures"
	"projectdesk/internal/logging"
	"projectdesk/internal/migrate"
	"projectdesk/internal/render"
	"projectdesk/internal/server"
	"projectdesk/internal/view"
)

// errViewFailed marks a command that rendered the error branch.
var errViewFailed = errors.New("project could not be loaded")

var rootCmd = &cobra.Command{
	Use:   "pdesk",
	Short: "projectdesk CLI",
	Long: `projectdesk shows project records one identifier at a time.
- Source: where records come from: fixtures (built-in sample projects), sqlite (the workspace store) or http (a projectdesk API).
- Workspace: directory holding projectdesk.yml, .env and .projectdesk/projectdesk.db.
- View: each identifier moves the page to Loading, then to the record or the error. Older answers are dropped once a newer identifier arrives.
- Journal: every view transition is recorded; read it with 'pdesk log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if errors.Is(err, errViewFailed) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	// Process env wins over the workspace .env.
	_ = godotenv.Load(envPath(viper.GetString("workspace")))
	viper.SetEnvPrefix("PROJECTDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("source", "", "fetch source: fixtures, sqlite or http (overrides config)")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/projectdesk.yml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides config)")
	for _, name := range []string{"workspace", "json", "source", "config", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(useCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Load one project and render it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withController(cmd.Context(), func(ctx context.Context, c *view.Controller) error {
				return show(c, id, newOutput(cmd.OutOrStdout()))
			})
		},
	}
	return cmd
}

// show renders Loading for id, then whatever the fetch settles on.
func show(c *view.Controller, id int64, out *output) error {
	c.OnIdentifierChange(id)
	if err := out.render(view.Loading{ID: id}); err != nil {
		return err
	}
	c.Wait()
	final := c.CurrentState()
	if err := out.render(final); err != nil {
		return err
	}
	if view.SelectBranch(final) == view.BranchError {
		return errViewFailed
	}
	return nil
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Read identifiers from stdin and render the latest state",
		Long:  "Each line on stdin is an identifier change. A newer identifier supersedes a fetch still in flight.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd.Context(), func(ctx context.Context, c *view.Controller) error {
				return watch(ctx, c, cmd.InOrStdin(), newOutput(cmd.OutOrStdout()), loggerFromContext(ctx))
			})
		},
	}
	return cmd
}

func watch(ctx context.Context, c *view.Controller, in io.Reader, out *output, log logging.Logger) error {
	states, unsubscribe := c.Subscribe()
	defer unsubscribe()
	done := make(chan error, 1)
	go func() {
		var err error
		for s := range states {
			if rerr := out.render(s); rerr != nil && err == nil {
				err = rerr
			}
		}
		done <- err
	}()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := parseID(line)
		if err != nil {
			log.Warn(ctx, "identifier skipped", "input", line, "error", err)
			continue
		}
		c.OnIdentifierChange(id)
	}
	c.Wait()
	c.Close()
	if err := <-done; err != nil {
		return err
	}
	return scanner.Err()
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load fixtures into the workspace store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ps := fixtures.MockProjects()
			source := "builtin"
			if file != "" {
				ps, err = fixtures.LoadFile(file, cfg.HydrationMode())
				if err != nil {
					return err
				}
				source = file
			}
			return withEngine(cmd.Context(), cfg, func(ctx context.Context, e engine.Engine) error {
				n, err := e.SeedProjects(ctx, ps, source)
				if err != nil {
					return err
				}
				total, err := e.Repo.CountProjects(ctx)
				if err != nil {
					return err
				}
				version, err := migrate.Version(e.DB)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"seeded": n, "source": source, "stored": total, "schema_version": version})
				}
				fmt.Printf("Seeded %d projects from %s into %s (%d stored, schema v%d)\n", n, source, db.Path(viper.GetString("workspace")), total, version)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "fixture YAML file (default: built-in sample projects)")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, from string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt-secret")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("PROJECTDESK_JWT_SECRET is required for bearer auth")
			}
			return withEngine(cmd.Context(), cfg, func(ctx context.Context, e engine.Engine) error {
				srvCfg := server.Config{Projects: e.Repo, Events: &e.Events, BasePath: basePath, Auth: authCfg, Logger: log}
				switch from {
				case config.SourceSQLite:
				case config.SourceFixtures:
					store, err := app.FixtureStore(cfg)
					if err != nil {
						return err
					}
					srvCfg.Projects = store
				default:
					return fmt.Errorf("--from must be sqlite or fixtures")
				}
				handler, err := server.New(srvCfg)
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving projectdesk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().StringVar(&from, "from", config.SourceSQLite, "record source: sqlite or fixtures")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	var save bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("PROJECTDESK_JWT_SECRET is required to sign tokens")
			}
			token, err := server.SignToken(secret, subject, ttl)
			if err != nil {
				return err
			}
			if save {
				path := envPath(viper.GetString("workspace"))
				if err := setEnvValue(path, app.TokenEnv, token); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Set %s in %s\n", app.TokenEnv, path)
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": token, "subject": subject, "expires_in": ttl.String()})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "local-user", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&save, "save", false, "store the token in the workspace .env")
	return cmd
}

func useCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <source>",
		Short: "Set the default fetch source for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := strings.TrimSpace(args[0])
			switch source {
			case config.SourceHTTP, config.SourceSQLite, config.SourceFixtures:
			default:
				return fmt.Errorf("unknown source %q (want http, sqlite or fixtures)", source)
			}
			path := envPath(viper.GetString("workspace"))
			if err := setEnvValue(path, "PROJECTDESK_SOURCE", source); err != nil {
				return err
			}
			fmt.Printf("Set PROJECTDESK_SOURCE=%s in %s\n", source, path)
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long:  "Config lives in projectdesk.yml in the workspace: the fetch source, hydration mode, fetch timeout, API endpoint and logging. Missing keys take their defaults.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		Long:  "Unlike other commands, validate fails when projectdesk.yml is missing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := readConfig(true)
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Transition journal",
		Long:  "Every view transition and store seed, newest first.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, projectID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := events.Filter{Type: evtType, Limit: n}
			if projectID != "" {
				id, err := parseID(projectID)
				if err != nil {
					return err
				}
				f.ProjectID = &id
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), cfg, func(ctx context.Context, e engine.Engine) error {
				items, err := e.Events.Latest(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printEvents(os.Stdout, items)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter (view.transition, store.seed)")
	cmd.Flags().StringVar(&projectID, "project", "", "project id filter")
	return cmd
}

// --- helpers ---

type loggerKey struct{}

func loggerFromContext(ctx context.Context) logging.Logger {
	if l, ok := ctx.Value(loggerKey{}).(logging.Logger); ok {
		return l
	}
	return logging.Nop()
}

func loadConfig() (*config.Config, error) {
	return readConfig(false)
}

// readConfig loads the effective config. With strict set a missing workspace
// config file is an error instead of the defaults.
func readConfig(strict bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch path := viper.GetString("config"); {
	case path != "":
		cfg, err = config.FromFile(path)
	case strict:
		cfg, err = config.Load(viper.GetString("workspace"))
	default:
		cfg, err = config.LoadOptional(viper.GetString("workspace"))
	}
	if err != nil {
		return nil, err
	}
	if s := viper.GetString("source"); s != "" {
		cfg.Source = s
	}
	if l := viper.GetString("log-level"); l != "" {
		cfg.Log.Level = l
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (logging.Logger, error) {
	return logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
}

// withController builds the configured fetcher and a controller that journals
// into the workspace store.
func withController(ctx context.Context, fn func(context.Context, *view.Controller) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	ctx = context.WithValue(ctx, loggerKey{}, logging.Logger(log))
	workspace := viper.GetString("workspace")
	f, err := app.NewFetcher(ctx, workspace, "", cfg)
	if err != nil {
		return err
	}
	defer f.Close()
	conn := f.DB
	if conn == nil {
		conn, err = app.OpenStore(ctx, workspace)
		if err != nil {
			return err
		}
		defer conn.Close()
	}
	e := engine.New(conn)
	e.Log = log
	c := view.New(f,
		view.WithTimeout(cfg.Fetch.Timeout),
		view.WithLogger(log.With("source", f.Source)),
		view.WithObserver(e.Journal(ctx)),
	)
	defer c.Close()
	return fn(ctx, c)
}

func withEngine(ctx context.Context, cfg *config.Config, fn func(context.Context, engine.Engine) error) error {
	conn, err := app.OpenStore(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	e := engine.New(conn)
	if log, err := newLogger(cfg); err == nil {
		e.Log = log
	}
	return fn(ctx, e)
}

// parseID accepts base-10 integers only.
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid project id %q", raw)
	}
	return id, nil
}

type output struct {
	w        io.Writer
	json     bool
	renderer *render.Renderer
}

func newOutput(w io.Writer) *output {
	return &output{w: w, json: viper.GetBool("json"), renderer: render.New(w)}
}

func (o *output) render(s view.State) error {
	if o.json {
		return json.NewEncoder(o.w).Encode(render.Snapshot(s))
	}
	return o.renderer.Render(s)
}

func printEvents(w io.Writer, items []events.Event) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "TS", "Type", "Project", "Gen", "Transition", "Payload"})
	for _, e := range items {
		project := ""
		if e.ProjectID != nil {
			project = strconv.FormatInt(*e.ProjectID, 10)
		}
		transition := ""
		if e.From != "" || e.To != "" {
			transition = e.From + " -> " + e.To
		}
		tw.AppendRow(table.Row{e.ID, e.TS, e.Type, project, e.Generation, transition, e.Payload})
	}
	tw.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".env")
}

// setEnvValue sets key in the dotenv file at path, keeping other entries.
func setEnvValue(path, key, value string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		env = map[string]string{}
	}
	env[key] = value
	return godotenv.Write(env, path)
}
