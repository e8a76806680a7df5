package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/assessor/internal/extract"
	"github.com/pavelanni/assessor/internal/grading"
	"github.com/pavelanni/assessor/internal/handler"
	appI18n "github.com/pavelanni/assessor/internal/i18n"
	"github.com/pavelanni/assessor/internal/llm"
	"github.com/pavelanni/assessor/internal/llm/prompts"
	"github.com/pavelanni/assessor/internal/metrics"
	"github.com/pavelanni/assessor/internal/plagiarism"
	"github.com/pavelanni/assessor/internal/review"
	"github.com/pavelanni/assessor/internal/store"
)

func main() {
	// A missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "assessor",
		Short: "AI-assisted question extraction, grading and plagiarism review",
	}

	serve := serveCmd()
	root.AddCommand(serve, extractCmd(), gradeCmd(), plagiarismCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `assessor --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLoggingFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addLLMFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty for the OpenAI default)")
	f.String("llm-key", "", "API key for the model service")
	f.String("llm-model", "gpt-4o", "Model name")
	f.Duration("llm-timeout", 120*time.Second, "Timeout per model call attempt")
	f.Int("llm-max-tokens", 4096, "Maximum tokens per completion")
	f.Int("llm-retries", 1, "Retries after a transient model failure")
	f.Duration("llm-retry-backoff", 2*time.Second, "Wait before the first retry")
	f.Int("llm-rpm", 0, "Model requests per minute (0 = unlimited)")
	f.Bool("skip-ping", false, "Skip the model endpoint health check at startup")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
}

func addFetchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Duration("fetch-timeout", 30*time.Second, "Timeout for downloading submission files")
	f.String("s3-endpoint", "", "S3-compatible endpoint serving s3:// submission files")
	f.String("s3-access-key", "", "S3 access key")
	f.String("s3-secret-key", "", "S3 secret key")
	f.Bool("s3-secure", true, "Use TLS for the S3 endpoint")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "assessor.db", "SQLite database path")
	f.StringP("lang", "l", "en", "Default message language (en, ru)")
	f.Int("grade-workers", 1, "Concurrent gradings in bulk runs")
	f.Float64("plagiarism-threshold", plagiarism.DefaultThreshold, "Similarity percentage that flags a pair")
	f.Duration("review-ttl", 2*time.Hour, "Idle time after which a review session is dropped")
	addLLMFlags(cmd)
	addFetchFlags(cmd)
	addLoggingFlags(cmd)
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

	v.SetEnvPrefix("ASSESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("assessor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/assessor")
	v.AddConfigPath("/etc/assessor")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func promptVariant(v *viper.Viper) prompts.PromptVariant {
	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", variant)
		return prompts.PromptStandard
	}
	return prompts.PromptVariant(variant)
}

// newLLM creates the model gateway and, unless skipped, checks that the
// endpoint accepts the credential.
func newLLM(ctx context.Context, v *viper.Viper, obs llm.Observer) (*llm.Client, error) {
	client, err := llm.New(llm.Config{
		BaseURL:           v.GetString("llm-url"),
		APIKey:            v.GetString("llm-key"),
		Model:             v.GetString("llm-model"),
		MaxTokens:         v.GetInt("llm-max-tokens"),
		Timeout:           v.GetDuration("llm-timeout"),
		MaxRetries:        v.GetInt("llm-retries"),
		RetryBackoff:      v.GetDuration("llm-retry-backoff"),
		RequestsPerMinute: v.GetInt("llm-rpm"),
		Observer:          obs,
	})
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	if v.GetBool("skip-ping") {
		return client, nil
	}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", client.Model())
	return client, nil
}

// newFetcher creates the submission file fetcher, with s3:// support when
// an endpoint is configured.
func newFetcher(v *viper.Viper) (*grading.HTTPFetcher, error) {
	var objects grading.ObjectStore
	if endpoint := v.GetString("s3-endpoint"); endpoint != "" {
		ms, err := grading.NewMinioStore(endpoint, v.GetString("s3-access-key"), v.GetString("s3-secret-key"), v.GetBool("s3-secure"))
		if err != nil {
			return nil, fmt.Errorf("create object store client: %w", err)
		}
		objects = ms
		slog.Info("object store configured", "endpoint", endpoint)
	}
	return grading.NewHTTPFetcher(v.GetDuration("fetch-timeout"), objects), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	if err := prompts.Load(); err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	m := metrics.New()
	llmClient, err := newLLM(ctx, v, m)
	if err != nil {
		return err
	}
	fetcher, err := newFetcher(v)
	if err != nil {
		return err
	}

	variant := promptVariant(v)
	if err := db.SetMetadata(ctx, store.MetaPromptVariant, string(variant)); err != nil {
		return fmt.Errorf("record prompt variant: %w", err)
	}

	grader := grading.New(llmClient, fetcher, nil, grading.Options{Variant: variant, Observer: m})
	reviews := review.NewRegistry(v.GetDuration("review-ttl"))
	h := handler.New(handler.Deps{
		Store:     db,
		Extractor: extract.New(llmClient, nil, extract.WithObserver(m)),
		Grader:    grader,
		Grading:   grading.NewService(grader, db, nil, v.GetInt("grade-workers")),
		Checker:   plagiarism.NewChecker(db, v.GetFloat64("plagiarism-threshold"), nil, plagiarism.WithObserver(m)),
		Reviews:   reviews,
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)
	r.Use(appI18n.Middleware(lang))
	r.Method(http.MethodGet, "/metrics", m.Handler())
	h.Routes(r)

	go sweepReviews(ctx, reviews, time.Minute)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"model", llmClient.Model(),
			"llm_url", v.GetString("llm-url"),
			"lang", lang,
			"locales", appI18n.Languages(),
			"prompt_variant", variant,
			"grade_workers", v.GetInt("grade-workers"),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func sweepReviews(ctx context.Context, reviews *review.Registry, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := reviews.Sweep(); n > 0 {
				slog.Debug("dropped idle review sessions", "count", n)
			}
		}
	}
}
