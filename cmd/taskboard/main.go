package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Joseda-hg/taskboard/internal/account"
	"github.com/Joseda-hg/taskboard/internal/api"
	"github.com/Joseda-hg/taskboard/internal/auth"
	"github.com/Joseda-hg/taskboard/internal/config"
	"github.com/Joseda-hg/taskboard/internal/db"
	"github.com/Joseda-hg/taskboard/internal/logging"
	"github.com/Joseda-hg/taskboard/internal/tasks"
	"github.com/Joseda-hg/taskboard/internal/tui"
)

var Version = "dev"

type globalFlags struct {
	configPath  string
	apiURL      string
	sessionPath string
}

func (f globalFlags) apply(cfg config.Config) config.Config {
	if f.apiURL != "" {
		cfg.APIBaseURL = f.apiURL
	}
	if f.sessionPath != "" {
		cfg.SessionPath = f.sessionPath
	}
	return cfg
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, api.Message(err, "request failed"))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "taskboard",
		Short:         "Terminal client for the task service",
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), *flags)
		},
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&flags.apiURL, "api", "", "task service base URL")
	rootCmd.PersistentFlags().StringVar(&flags.sessionPath, "session", "", "session database path")

	rootCmd.AddCommand(loginCmd(flags))
	rootCmd.AddCommand(logoutCmd(flags))
	rootCmd.AddCommand(registerCmd(flags))
	rootCmd.AddCommand(whoamiCmd(flags))
	rootCmd.AddCommand(tasksCmd(flags))
	rootCmd.AddCommand(serveCmd(flags))
	return rootCmd
}

type app struct {
	cfg        config.Config
	logger     *zap.Logger
	conn       *sql.DB
	storage    *db.Store
	session    *auth.Store
	client     *api.Client
	account    *account.Service
	collection *tasks.Collection
	mutations  *tasks.Mutations
}

func openApp(flags globalFlags) (*app, error) {
	cfgPath, err := resolveConfigPath(flags.configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	cfg = flags.apply(cfg)
	if err := config.Save(cfgPath, cfg); err != nil {
		return nil, err
	}

	if err := config.LoadEnvFile(".env"); err != nil {
		return nil, err
	}
	cfg, err = config.ApplyEnv(cfg)
	if err != nil {
		return nil, err
	}
	cfg = config.Resolve(flags.apply(cfg), cfgPath)

	logger, err := logging.New(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	conn, err := openSession(cfg.SessionPath)
	if err != nil {
		return nil, err
	}

	storage := db.NewStore(conn)
	session := auth.NewStore(storage, logger.Named("session"))
	client := api.New(cfg.APIBaseURL, session,
		api.WithTimeout(cfg.RequestTimeout()),
		api.WithLogger(logger.Named("api")),
	)

	logger.Info("starting",
		zap.String("version", Version),
		zap.String("api", cfg.APIBaseURL),
		zap.String("session", cfg.SessionPath),
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		conn:       conn,
		storage:    storage,
		session:    session,
		client:     client,
		account:    account.NewService(client, session, logger.Named("account")),
		collection: tasks.NewCollection(client, logger.Named("tasks")),
		mutations: tasks.NewMutations(client,
			tasks.WithStatusEndpoint(cfg.UseStatusEndpoint),
			tasks.WithMutationLogger(logger.Named("mutations")),
		),
	}, nil
}

func (a *app) Close() {
	a.collection.Close()
	_ = a.conn.Close()
	_ = a.logger.Sync()
}

func runTUI(ctx context.Context, flags globalFlags) error {
	a, err := openApp(flags)
	if err != nil {
		return err
	}
	defer a.Close()

	// Another taskboard process logging in or out shows up here.
	watcher := db.NewWatcher(a.storage, a.logger.Named("watcher"), a.cfg.WatchInterval(), func(entry db.Entry) {
		a.session.ExternalChange(entry.Key)
	})
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	return tui.Run(ctx, tui.Deps{
		Session:        a.session,
		Account:        a.account,
		Collection:     a.collection,
		Mutations:      a.mutations,
		Logger:         a.logger.Named("tui"),
		SearchDebounce: a.cfg.SearchDebounce(),
	})
}

func resolveConfigPath(flagValue string) (string, error) {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue, nil
	}
	return config.DefaultConfigPath()
}

func openSession(path string) (*sql.DB, error) {
	if err := config.EnsureDir(path); err != nil {
		return nil, err
	}
	return db.Open(path)
}
