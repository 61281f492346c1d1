package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/autograder/internal/analysis"
	"github.com/pavelanni/autograder/internal/grading"
	"github.com/pavelanni/autograder/internal/handler"
	appI18n "github.com/pavelanni/autograder/internal/i18n"
	"github.com/pavelanni/autograder/internal/llm"
	"github.com/pavelanni/autograder/internal/llm/prompts"
	"github.com/pavelanni/autograder/internal/metrics"
	"github.com/pavelanni/autograder/internal/model"
	"github.com/pavelanni/autograder/internal/ratelimit"
	"github.com/pavelanni/autograder/internal/review"
	"github.com/pavelanni/autograder/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "autograder",
		Short: "Automatic grading and review triage for student evaluations",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), gradeCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `autograder --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(f *pflag.FlagSet) {
	f.String("db", "autograder.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addAnalysisFlags(f *pflag.FlagSet) {
	f.String("analysis-backend", "agent", "Semantic analysis backend (agent, openai, none)")
	f.String("agent-url", "http://localhost:8001", "Analysis agent base URL")
	f.String("llm-base-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-api-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading rubric variant (strict, standard, lenient)")
	f.Duration("analysis-timeout", analysis.DefaultTimeout, "Timeout of one semantic analysis call")
	f.String("redis-addr", "", "Redis address for shared rate-limit counters (empty keeps them in memory)")
	f.Int("rate-limit", ratelimit.DefaultLimit, "Analyses allowed per student and evaluation within the window")
	f.Duration("rate-window", ratelimit.DefaultWindow, "Rate-limit window")
	f.Int("workers", grading.DefaultWorkers, "Responses graded concurrently per attempt")
	f.StringP("lang", "l", "en", "Default language for recommendations (en, es)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the grading and review API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("admin-password", "", "Initial admin password (or set AUTOGRADER_ADMIN_PASSWORD)")
	addCommonFlags(f)
	addAnalysisFlags(f)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import evaluation JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	addCommonFlags(cmd.Flags())
	return cmd
}

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Re-run automatic grading of a submitted attempt",
		RunE:  runGrade,
	}
	f := cmd.Flags()
	f.Int64("attempt-id", 0, "Attempt to grade (required)")
	addCommonFlags(f)
	addAnalysisFlags(f)
	_ = cmd.MarkFlagRequired("attempt-id")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the attempts of an evaluation as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.Int64("evaluation-id", 0, "Evaluation to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addCommonFlags(f)
	_ = cmd.MarkFlagRequired("evaluation-id")
	return cmd
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("AUTOGRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("autograder")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/autograder")
	v.AddConfigPath("/etc/autograder")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// setup parses configuration, configures logging and opens the database.
func setup(cmd *cobra.Command) (*viper.Viper, *store.Store, error) {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return v, db, nil
}

// newService builds the configured semantic-analysis backend. A nil result
// means every open answer is scored by the local heuristic.
func newService(ctx context.Context, v *viper.Viper) (analysis.Service, error) {
	switch backend := strings.ToLower(v.GetString("analysis-backend")); backend {
	case "agent":
		agent := analysis.NewAgentClient(v.GetString("agent-url"), &http.Client{})
		if err := agent.Health(ctx); err != nil {
			slog.Warn("analysis agent not reachable, answers will use the fallback until it recovers",
				"url", v.GetString("agent-url"), "error", err)
		} else {
			slog.Info("analysis agent OK", "url", v.GetString("agent-url"))
		}
		return agent, nil
	case "openai":
		client := llm.New(v.GetString("llm-base-url"), v.GetString("llm-api-key"), v.GetString("llm-model"))
		if err := client.Ping(ctx); err != nil {
			slog.Warn("LLM endpoint not reachable, answers will use the fallback until it recovers",
				"url", v.GetString("llm-base-url"), "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", v.GetString("llm-base-url"), "model", v.GetString("llm-model"))
		}
		return client, nil
	case "none":
		slog.Info("semantic analysis disabled, open answers need manual review")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown analysis backend %q", backend)
	}
}

// newLimiter keeps counters in Redis when an address is configured, so that
// several server instances share one quota.
func newLimiter(ctx context.Context, v *viper.Viper) (*ratelimit.Limiter, func(), error) {
	opts := []ratelimit.Option{
		ratelimit.WithLimit(v.GetInt("rate-limit")),
		ratelimit.WithWindow(v.GetDuration("rate-window")),
	}
	addr := v.GetString("redis-addr")
	if addr == "" {
		return ratelimit.New(ratelimit.NewMemoryStore(nil), opts...), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	slog.Info("rate-limit counters in redis", "addr", addr)
	return ratelimit.New(ratelimit.NewRedisStore(client, "autograder:"), opts...), func() { client.Close() }, nil
}

// newOrchestrator wires analysis, rate limiting and grading from configuration.
func newOrchestrator(ctx context.Context, v *viper.Viper, db *store.Store, m *metrics.Metrics) (*grading.Orchestrator, func(), error) {
	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return nil, nil, fmt.Errorf("init i18n: %w", err)
	}

	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", variant)
		variant = string(prompts.PromptStandard)
	}
	rubric, err := prompts.Rubric(prompts.PromptVariant(variant))
	if err != nil {
		return nil, nil, fmt.Errorf("load rubric: %w", err)
	}

	service, err := newService(ctx, v)
	if err != nil {
		return nil, nil, err
	}
	limiter, closeLimiter, err := newLimiter(ctx, v)
	if err != nil {
		return nil, nil, err
	}

	analyzer := analysis.NewAnalyzer(service, limiter,
		analysis.WithRubric(rubric),
		analysis.WithTimeout(v.GetDuration("analysis-timeout")),
		analysis.WithMetrics(m),
	)
	o := grading.New(db, analyzer,
		grading.WithWorkers(v.GetInt("workers")),
		grading.WithMetrics(m),
	)
	return o, closeLimiter, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, db, err := setup(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := db.CleanupExpiredSessions(ctx); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	}

	m := metrics.MustNew(nil)
	grader, closeLimiter, err := newOrchestrator(ctx, v, db, m)
	if err != nil {
		return err
	}
	defer closeLimiter()

	lang := v.GetString("lang")
	h := handler.New(db, grader, review.NewQueue(db, review.WithMetrics(m)), handler.Config{Lang: lang})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	slog.Info("starting server",
		"addr", addr,
		"analysis_backend", v.GetString("analysis-backend"),
		"prompt_variant", v.GetString("prompt-variant"),
		"workers", v.GetInt("workers"),
		"lang", lang,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runImport(cmd *cobra.Command, args []string) error {
	_, db, err := setup(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		id, duplicate, err := db.ImportEvaluationJSON(ctx, data)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\tevaluation %d\tduplicate=%v\n", path, id, duplicate)
	}
	return nil
}

func runGrade(cmd *cobra.Command, _ []string) error {
	v, db, err := setup(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	grader, closeLimiter, err := newOrchestrator(ctx, v, db, nil)
	if err != nil {
		return err
	}
	defer closeLimiter()

	a, err := grader.Grade(ctx, v.GetInt64("attempt-id"))
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), a)
}

func runExport(cmd *cobra.Command, _ []string) error {
	v, db, err := setup(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	export, err := db.ExportEvaluation(cmd.Context(), v.GetInt64("evaluation-id"))
	if err != nil {
		return fmt.Errorf("export evaluation: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeJSON(w, export)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

func seedAdmin(ctx context.Context, db *store.Store, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or AUTOGRADER_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(ctx, model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
