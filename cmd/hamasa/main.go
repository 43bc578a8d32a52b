package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"hamasa/internal/app"
	"hamasa/internal/config"
	"hamasa/internal/engine"
	"hamasa/internal/logging"
	"hamasa/internal/migrate"
	"hamasa/internal/repo"
	"hamasa/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "hamasa",
	Short: "Hamasa media monitoring backend",
	Long: `Hamasa serves the media monitoring API: client organisations, their projects,
the reports filed against them and the analysis imports that feed those reports.

Configuration comes from hamasa.yml (see 'hamasa config init'), a .env file in the
working directory and HAMASA_* environment variables, in increasing priority.`,
	SilenceUsage: true,
}

func main() {
	_ = godotenv.Load()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HAMASA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "hamasa.yml", "config file")
	rootCmd.PersistentFlags().String("db", "", "database path (overrides database.path)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(clientCmd())
	rootCmd.AddCommand(configCmd())
}

// loadConfig reads the config file when present and applies environment and
// flag overrides on top.
func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if cfg, err = config.FromFile(path); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	overrideString(&cfg.Server.Addr, "server.addr")
	overrideString(&cfg.Server.BasePath, "server.base_path")
	overrideString(&cfg.Database.Path, "database.path")
	overrideString(&cfg.Auth.JWTSecret, "jwt_secret")
	overrideString(&cfg.Log.Level, "log.level")
	overrideString(&cfg.SMS.Provider, "sms.provider")
	overrideString(&cfg.SMS.APIKey, "sms.api_key")
	overrideString(&cfg.SMS.SecretKey, "sms.secret_key")
	if viper.IsSet("server.trust_proxy_headers") {
		cfg.Server.TrustProxyHeaders = viper.GetBool("server.trust_proxy_headers")
	}
	if viper.IsSet("auth.rate_limit_per_minute") {
		cfg.Auth.RateLimitPerMinute = viper.GetInt("auth.rate_limit_per_minute")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideString(dst *string, key string) {
	if v := strings.TrimSpace(viper.GetString(key)); v != "" {
		*dst = v
	}
}

func serveCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("HAMASA_JWT_SECRET is required for bearer auth")
			}
			log, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync()
			rt, err := app.Open(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer rt.Close()
			if seed {
				if _, err := app.SeedCatalog(cmd.Context(), rt.Engine, cfg.Seed); err != nil {
					return err
				}
			}
			handler, err := server.New(server.Config{
				Engine:             rt.Engine,
				BasePath:           cfg.Server.BasePath,
				Logger:             log,
				Metrics:            rt.Metrics,
				RateLimitPerMinute: cfg.Auth.RateLimitPerMinute,
				TrustProxyHeaders:  cfg.Server.TrustProxyHeaders,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info("serving hamasa api",
				zap.String("addr", cfg.Server.Addr),
				zap.String("base_path", cfg.Server.BasePath),
				zap.String("docs", "/docs"),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().String("base-path", "", "API base path (overrides server.base_path)")
	cmd.Flags().BoolVar(&seed, "seed", false, "seed catalog collections before serving")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.base_path", cmd.Flags().Lookup("base-path"))
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				version, err := migrate.Current(ctx, rt.DB)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"schema_version": version, "database": rt.Config.Database.Path})
				}
				fmt.Printf("Database %s at schema version %d\n", rt.Config.Database.Path, version)
				return nil
			})
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed catalog collections from the config seed section",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				res, err := app.SeedCatalog(ctx, rt.Engine, rt.Config.Seed)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Seeded catalog: %d created, %d already present\n", res.Created, res.Skipped)
				return nil
			})
		},
	}
}

func adminCmd() *cobra.Command {
	adm := &cobra.Command{Use: "admin", Short: "Manage administrator accounts"}
	adm.AddCommand(adminCreateCmd())
	return adm
}

func adminCreateCmd() *cobra.Command {
	var opts app.AdminOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a super_admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				created, err := app.CreateSuperAdmin(ctx, rt.Engine, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(created)
				}
				fmt.Printf("Created super_admin %s (%s)\n", created.ID, created.PhoneNumber)
				if created.PlainPassword != "" {
					fmt.Printf("Generated password: %s\n", created.PlainPassword)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&opts.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&opts.PhoneNumber, "phone", "", "phone number")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password (generated when empty)")
	_ = cmd.MarkFlagRequired("first-name")
	_ = cmd.MarkFlagRequired("last-name")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func tokenCmd() *cobra.Command {
	tok := &cobra.Command{Use: "token", Short: "Issue tokens"}
	tok.AddCommand(&cobra.Command{
		Use:   "service",
		Short: "Issue a long-lived token for the analysis service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if rt.Config.Auth.JWTSecret == "" {
					return fmt.Errorf("HAMASA_JWT_SECRET is required to sign tokens")
				}
				res, err := rt.Engine.ServiceToken(ctx, app.System)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Println(res.ServiceToken)
				return nil
			})
		},
	})
	return tok
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Inspect and move projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectStatusCmd())
	prj.AddCommand(projectProgressCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilters
	var page repo.Page
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				res, err := rt.Engine.ListProjects(ctx, app.System, f, page)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Client", "Status", "Updated"})
				for _, p := range res.Results {
					tw.AppendRow(table.Row{p.ID, p.Title, p.ClientID, p.Status, p.UpdatedAt})
				}
				tw.AppendFooter(table.Row{"", "", "", "total", res.Count})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.ClientID, "client-id", "", "client filter")
	cmd.Flags().StringVar(&f.Title, "title", "", "title search")
	cmd.Flags().IntVar(&page.Number, "page", 1, "page number")
	cmd.Flags().IntVar(&page.Size, "page-size", 10, "page size")
	return cmd
}

func projectStatusCmd() *cobra.Command {
	var opts engine.TransitionOptions
	cmd := &cobra.Command{
		Use:   "status <project-id> <status>",
		Short: "Move a project to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Status = args[1]
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				res, err := rt.Engine.TransitionProject(ctx, app.System, args[0], opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Project %s: %s -> %s (stage %d)\n", res.Project.ID, res.Progress.PreviousStatus, res.Progress.CurrentStatus, res.Progress.StageNo)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Action, "action", "", "action label")
	cmd.Flags().StringVar(&opts.Comment, "comment", "", "comment")
	return cmd
}

func projectProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <project-id>",
		Short: "Show a project's status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				entries, err := rt.Engine.ProjectProgress(ctx, app.System, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Stage", "From", "To", "Action", "Owner", "Comment", "At"})
				for _, e := range entries {
					tw.AppendRow(table.Row{e.StageNo, e.PreviousStatus, e.CurrentStatus, e.Action, string(e.OwnerType) + ":" + e.OwnerID, e.Comment, e.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func clientCmd() *cobra.Command {
	cl := &cobra.Command{Use: "client", Short: "Inspect client organisations"}
	var f repo.ClientFilters
	var page repo.Page
	list := &cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				res, err := rt.Engine.ListClients(ctx, app.System, f, page)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Organisation", "Country", "Contact", "Phone", "Email"})
				for _, c := range res.Results {
					tw.AppendRow(table.Row{c.ID, c.Name, c.Country, c.ContactPerson, c.PhoneNumber, c.Email})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&f.Name, "name", "", "name search")
	list.Flags().StringVar(&f.Country, "country", "", "country filter")
	list.Flags().IntVar(&page.Number, "page", 1, "page number")
	list.Flags().IntVar(&page.Size, "page-size", 10, "page size")
	cl.AddCommand(list)
	return cl
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			shown := *cfg
			shown.Auth.JWTSecret = mask(shown.Auth.JWTSecret)
			shown.SMS.APIKey = mask(shown.SMS.APIKey)
			shown.SMS.SecretKey = mask(shown.SMS.SecretKey)
			if viper.GetBool("json") {
				return printJSON(shown)
			}
			return yaml.NewEncoder(os.Stdout).Encode(shown)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
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
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default hamasa.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// --- helpers ---

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()
	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
