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
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/eduquest/internal/events"
	"github.com/pavelanni/eduquest/internal/exam"
	"github.com/pavelanni/eduquest/internal/handler"
	appI18n "github.com/pavelanni/eduquest/internal/i18n"
	"github.com/pavelanni/eduquest/internal/insight"
	"github.com/pavelanni/eduquest/internal/llm"
	"github.com/pavelanni/eduquest/internal/model"
	"github.com/pavelanni/eduquest/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "eduquest",
		Short: "Assessment dashboard: test composition, timed exams and study plans",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `eduquest --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP dashboard server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", store.MemoryDSN, "SQLite database path (:memory: keeps everything in process memory)")
	f.StringSliceP("questions", "q", []string{"questions/sample.json"}, "Paths to question bank JSON files (repeatable)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.StringP("lang", "l", "en", "UI and study plan language (en, hi)")
	f.Duration("insight-timeout", 60*time.Second, "Deadline for one study plan request (0 = none)")
	f.Bool("auto-insight", true, "Request a study plan for every submitted result")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export submitted results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "eduquest.db", "SQLite database path")
	f.String("student", "", "Only export results of this student")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

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

	v.SetEnvPrefix("EDUQUEST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("eduquest")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/eduquest")
	v.AddConfigPath("/etc/eduquest")
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

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := loadQuestions(db, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	lang := v.GetString("lang")
	if !appI18n.Supported(lang) {
		slog.Warn("unsupported language, using en", "lang", lang)
		lang = "en"
	}
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	llmClient, err := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"), lang)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := llmClient.Ping(pingCtx); err != nil {
		// Study plans degrade to unavailable; exams keep working.
		slog.Warn("LLM endpoint unreachable", "url", v.GetString("llm-url"), "error", err)
	} else {
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	}
	cancelPing()

	cfg := model.ExamConfig{
		Lang:           lang,
		AutoInsight:    v.GetBool("auto-insight"),
		InsightTimeout: v.GetDuration("insight-timeout"),
		TickInterval:   time.Second,
	}

	tracker := insight.NewTracker(llmClient, cfg.InsightTimeout)
	defer tracker.Close()

	bus := events.NewBus(slog.Default())
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := subscribe(ctx, bus, db, tracker, cfg); err != nil {
		return fmt.Errorf("subscribe to events: %w", err)
	}

	h, err := handler.New(db, tracker, bus, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}
	defer h.Close()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"auto_insight", cfg.AutoInsight,
		"insight_timeout", cfg.InsightTimeout,
	)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// subscribe wires the result.submitted consumers: a log line for every result
// and, when enabled, an automatic study plan request.
func subscribe(ctx context.Context, bus *events.Bus, db *store.Store, tracker *insight.Tracker, cfg model.ExamConfig) error {
	err := bus.SubscribeResultSubmitted(ctx, "audit", func(_ context.Context, ev events.ResultSubmittedEvent) error {
		slog.Info("result recorded", "result_id", ev.ResultID, "test_id", ev.TestID,
			"student_id", ev.StudentID, "score", ev.Score, "max_score", ev.MaxScore, "reason", ev.Reason)
		return nil
	})
	if err != nil {
		return err
	}
	err = bus.SubscribeTestComposed(ctx, "audit", func(_ context.Context, ev events.TestComposedEvent) error {
		slog.Info("test composed", "test_id", ev.TestID, "type", ev.TestType,
			"questions", ev.Questions, "total_marks", ev.TotalMarks)
		return nil
	})
	if err != nil {
		return err
	}
	if !cfg.AutoInsight {
		return nil
	}
	return bus.SubscribeResultSubmitted(ctx, "auto-insight", func(_ context.Context, ev events.ResultSubmittedEvent) error {
		_, err := tracker.RequestByID(db, ev.ResultID)
		return err
	})
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportResults(v.GetString("student"))
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported results", "count", export.NumResults, "output", outPath)
	return nil
}

func loadQuestions(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if _, err := db.ImportQuestions(path, data, exam.ValidateQuestion); err != nil {
			return err
		}
	}
	return nil
}

// seedAdmin puts a default administrator on an empty roster.
func seedAdmin(db *store.Store) error {
	users, err := db.ListUsers("")
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}
	if err := db.UpsertUser(model.User{ID: "admin", Name: "Administrator", Role: model.UserRoleAdmin}); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	slog.Info("seeded default admin user", "id", "admin")
	return nil
}
