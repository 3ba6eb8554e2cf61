package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shibayu36/salesagent/agent"
	"github.com/shibayu36/salesagent/chart"
	"github.com/shibayu36/salesagent/config"
	"github.com/shibayu36/salesagent/llm"
	"github.com/shibayu36/salesagent/memory"
	"github.com/shibayu36/salesagent/metrics"
	"github.com/shibayu36/salesagent/salesdb"
	"github.com/shibayu36/salesagent/server"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath string
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:          "salesagent",
		Short:        "Conversational assistant for Contoso sales data.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), configPath, verbose, "")
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	var sessionID string
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (default command).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), configPath, verbose, sessionID)
		},
	}
	chatCmd.Flags().StringVarP(&sessionID, "session", "s", "", "resume an existing session by ID")

	var asJSON bool
	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and exit.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), configPath, verbose, args, asJSON)
		},
	}
	askCmd.Flags().BoolVar(&asJSON, "json", false, "print the reply as JSON")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, verbose)
		},
	}

	var limit int
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent sessions for the configured database.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(configPath, verbose, limit)
		},
	}
	sessionsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of sessions to list")

	var withPrompt bool
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the schema description given to the model.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd.Context(), configPath, verbose, withPrompt)
		},
	}
	schemaCmd.Flags().BoolVar(&withPrompt, "prompt", false, "print the full system prompt")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("salesagent %s (commit %s, built %s)\n", version, commit, date)
		},
	}

	rootCmd.AddCommand(chatCmd, askCmd, serveCmd, sessionsCmd, schemaCmd, versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

// app holds the components shared by the commands.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	db     *salesdb.Database
	memory *memory.Manager
	agent  *agent.Agent
}

type appOptions struct {
	configPath string
	verbose    bool
	withAgent  bool
	artifactFn func(string) string
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	log := newLogger(opts.verbose)

	a := &app{cfg: cfg, log: log}
	a.db, err = salesdb.Open(ctx, cfg.Database.Path, salesdb.Options{
		Logger:           log,
		Descriptions:     cfg.Database.Descriptions,
		MandatoryColumns: cfg.Database.MandatoryColumns,
		FilterColumns:    cfg.Database.FilterColumns,
		QueryTimeout:     cfg.Database.QueryTimeout,
		CacheTTL:         cfg.Database.CacheTTL,
	})
	if err != nil {
		return nil, err
	}

	a.memory, err = memory.NewManager(cfg.Memory.Path)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize memory manager: %w", err)
	}

	if !opts.withAgent {
		return a, nil
	}

	if err := cfg.RequireAPIKey(); err != nil {
		a.Close()
		return nil, err
	}
	client, err := llm.New(llm.Config{
		Provider:        cfg.LLM.Provider,
		APIKey:          cfg.LLM.APIKey,
		AzureEndpoint:   cfg.LLM.AzureEndpoint,
		AzureDeployment: cfg.LLM.AzureDeployment,
		BaseURL:         cfg.LLM.BaseURL,
		MaxTokens:       int64(cfg.LLM.MaxTokens),
		MaxTries:        cfg.LLM.MaxTries,
		Logger:          log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := os.MkdirAll(cfg.Agent.ArtifactsDir, 0755); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	instructions, err := agent.LoadInstructions(cfg.Agent.InstructionsFile)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.agent, err = agent.New(agent.Config{
		LLM:              client,
		Model:            cfg.LLM.Model,
		ClassifierModel:  cfg.LLM.ClassifierModel,
		DB:               a.db,
		Memory:           a.memory,
		Charts:           &chart.Runner{},
		Instructions:     instructions,
		ArtifactsDir:     cfg.Agent.ArtifactsDir,
		ArtifactURL:      opts.artifactFn,
		MaxToolSteps:     cfg.Agent.MaxToolSteps,
		MaxChartAttempts: cfg.Agent.MaxChartAttempts,
		HistoryMessages:  cfg.Agent.HistoryMessages,
		Logger:           log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a.memory != nil {
		a.memory.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func runServe(ctx context.Context, configPath string, verbose bool) error {
	a, err := newApp(ctx, appOptions{configPath: configPath, verbose: verbose, withAgent: true, artifactFn: server.ArtifactURL})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	defer a.Close()

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
	go func() {
		listener, err := net.Listen("tcp", a.cfg.Server.MetricsAddr)
		if err != nil {
			a.log.Error("Failed to start prometheus metrics server listener", "error", err)
			return
		}
		a.log.Info("Prometheus metrics server listening", "address", listener.Addr().String())
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		if err := metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Failed to serve prometheus metrics", "error", err)
		}
	}()

	srv := server.New(server.Config{
		Agent:          a.agent,
		Memory:         a.memory,
		Dataset:        a.cfg.Database.Path,
		Model:          a.cfg.LLM.Model,
		ArtifactsDir:   a.cfg.Agent.ArtifactsDir,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		Logger:         a.log,
	})
	return srv.Run(ctx, a.cfg.Server.Addr)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
