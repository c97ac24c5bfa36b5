package main

import (
	"bytes"
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

	"github.com/pavelanni/mentor/internal/handler"
	appI18n "github.com/pavelanni/mentor/internal/i18n"
	"github.com/pavelanni/mentor/internal/model"
	"github.com/pavelanni/mentor/internal/vectorindex"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mentor",
		Short: "Retrieval-augmented study assistant: explanations, quizzes and grading",
	}

	serve := serveCmd()
	root.AddCommand(serve, askCmd(), evaluateCmd(), ingestCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `mentor --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /mentor)")
	addLLMFlags(f)
	addEmbedFlags(f)
	addIndexFlags(f)
	addAssistantFlags(f)
	addLogFlags(f)
	return cmd
}

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask QUERY",
		Short: "Run one query through the assistant",
		Args:  cobra.ExactArgs(1),
		RunE:  runAsk,
	}
	f := cmd.Flags()
	f.String("answers", "", "JSON file mapping question index to answer")
	f.BoolP("interactive", "i", false, "Answer the generated quiz on stdin and grade it")
	f.String("format", "text", "Output format (text, json)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLLMFlags(f)
	addEmbedFlags(f)
	addIndexFlags(f)
	addAssistantFlags(f)
	addLogFlags(f)
	return cmd
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Grade answers to an existing quiz",
		RunE:  runEvaluate,
	}
	f := cmd.Flags()
	f.String("quiz", "", "Quiz JSON file: a question list or the JSON output of ask (required)")
	f.String("answers", "", "JSON file mapping question index to answer (required)")
	f.String("context", "", "File with reference material for grading short answers")
	f.String("format", "text", "Output format (text, json)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLLMFlags(f)
	addAssistantFlags(f)
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("quiz")
	_ = cmd.MarkFlagRequired("answers")

	return cmd
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Split, embed and index a directory of .txt and .md files",
		RunE:  runIngest,
	}
	d := vectorindex.DefaultIngestConfig()
	f := cmd.Flags()
	f.String("data", "data", "Corpus directory or file")
	f.Int("chunk-size", d.ChunkSize, "Maximum chunk length in characters")
	f.Int("chunk-overlap", d.ChunkOverlap, "Characters shared by neighbouring chunks")
	f.Int("batch-size", d.BatchSize, "Chunks per embedding request")
	f.Bool("force", false, "Re-import files whose content is unchanged")
	f.String("format", "text", "Report format (text, json)")
	addLLMFlags(f)
	addEmbedFlags(f)
	addIndexFlags(f)
	addLogFlags(f)
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

	v.SetEnvPrefix("MENTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("mentor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/mentor")
	v.AddConfigPath("/etc/mentor")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// initLang loads the message catalog and returns ctx carrying lang.
func initLang(ctx context.Context, v *viper.Viper) (context.Context, string, error) {
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return ctx, lang, fmt.Errorf("init i18n: %w", err)
	}
	return appI18n.WithLang(ctx, lang), lang, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, lang, err := initLang(ctx, v)
	if err != nil {
		return err
	}

	deps, err := buildAssistant(ctx, v)
	if err != nil {
		return err
	}
	defer deps.Close()

	h := handler.New(deps.assistant, nil, handler.Info{
		Provider: deps.llmCfg.Provider,
		Model:    deps.llmCfg.ModelName(),
		Index:    deps.indexName,
	})

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("starting server",
		"addr", addr,
		"provider", deps.llmCfg.Provider,
		"model", deps.llmCfg.ModelName(),
		"index", deps.indexName,
		"lang", lang,
		"base_path", basePath,
		"strict_upstream", v.GetBool("strict-upstream"),
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runAsk(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, _, err := initLang(ctx, v)
	if err != nil {
		return err
	}

	var answers map[int]string
	if path := v.GetString("answers"); path != "" {
		if answers, err = loadAnswers(path); err != nil {
			return err
		}
	}

	deps, err := buildAssistant(ctx, v)
	if err != nil {
		return err
	}
	defer deps.Close()

	state, err := deps.assistant.ProcessQuery(ctx, args[0], answers)
	if err != nil {
		return fmt.Errorf("process query: %w", err)
	}

	if v.GetBool("interactive") && len(state.Quiz) > 0 && state.Evaluation == nil {
		answers, err := promptAnswers(ctx, cmd.InOrStdin(), cmd.ErrOrStderr(), state.Quiz)
		if err != nil {
			return fmt.Errorf("read answers: %w", err)
		}
		summary, err := deps.assistant.EvaluateQuizDirectly(ctx, state.Quiz, answers, state.Context)
		if err != nil {
			return fmt.Errorf("evaluate quiz: %w", err)
		}
		state.StudentAnswers = answers
		state.Evaluation = &summary
	}

	return writeOutput(v, func(w io.Writer) error {
		if v.GetString("format") == "json" {
			return writeJSON(w, model.RunExport{
				GeneratedAt: time.Now().UTC(),
				Provider:    deps.llmCfg.Provider,
				Model:       deps.llmCfg.ModelName(),
				Index:       deps.indexName,
				State:       state,
			})
		}
		renderState(ctx, w, state)
		return nil
	})
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, _, err := initLang(ctx, v)
	if err != nil {
		return err
	}

	quiz, material, err := loadQuiz(v.GetString("quiz"))
	if err != nil {
		return err
	}
	answers, err := loadAnswers(v.GetString("answers"))
	if err != nil {
		return err
	}
	if path := v.GetString("context"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read context: %w", err)
		}
		material = string(data)
	}

	// Grading never retrieves, so no index is opened.
	v.Set("index", vectorindex.BackendNone)
	deps, err := buildAssistant(ctx, v)
	if err != nil {
		return err
	}
	defer deps.Close()

	summary, err := deps.assistant.EvaluateQuizDirectly(ctx, quiz, answers, material)
	if err != nil {
		return fmt.Errorf("evaluate quiz: %w", err)
	}

	return writeOutput(v, func(w io.Writer) error {
		if v.GetString("format") == "json" {
			return writeJSON(w, model.EvaluationExport{
				GeneratedAt: time.Now().UTC(),
				Provider:    deps.llmCfg.Provider,
				Model:       deps.llmCfg.ModelName(),
				Quiz:        quiz,
				Answers:     answers,
				Summary:     &summary,
			})
		}
		renderEvaluation(ctx, w, &summary)
		return nil
	})
}

func runIngest(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llmCfg := llmConfig(v)
	embedder, cleanup, err := newEmbedder(ctx, v, llmCfg)
	if err != nil {
		return err
	}
	defer cleanup()

	idx, err := vectorindex.Create(ctx, indexConfig(v), embedder)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()

	report, err := vectorindex.Ingest(ctx, idx, embedder, v.GetString("data"), vectorindex.IngestConfig{
		ChunkSize:    v.GetInt("chunk-size"),
		ChunkOverlap: v.GetInt("chunk-overlap"),
		BatchSize:    v.GetInt("batch-size"),
		Force:        v.GetBool("force"),
	})
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	out := cmd.OutOrStdout()
	if v.GetString("format") == "json" {
		return writeJSON(out, report)
	}
	fmt.Fprintf(out, "files: %d, imported: %d, unchanged: %d, chunks: %d, smoke test results: %d\n",
		report.Files, report.Imported, report.Skipped, report.Chunks, report.SmokeResults)
	return nil
}

// loadAnswers reads a JSON object such as {"0": "B) regression"}.
func loadAnswers(path string) (map[int]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answers: %w", err)
	}
	var answers map[int]string
	if err := json.Unmarshal(data, &answers); err != nil {
		return nil, fmt.Errorf("parse answers %s: %w", path, err)
	}
	return answers, nil
}

// loadQuiz accepts a bare question list or a run export, whose retrieved
// context is returned as grading material.
func loadQuiz(path string) ([]model.QuestionRecord, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read quiz: %w", err)
	}
	var quiz []model.QuestionRecord
	var material string
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		err = json.Unmarshal(data, &quiz)
	} else {
		var export model.RunExport
		if err = json.Unmarshal(data, &export); err == nil && export.State != nil {
			quiz, material = export.State.Quiz, export.State.Context
		}
	}
	if err != nil {
		return nil, "", fmt.Errorf("parse quiz %s: %w", path, err)
	}
	if len(quiz) == 0 {
		return nil, "", errors.New("quiz has no questions")
	}
	return quiz, material, nil
}

func writeOutput(v *viper.Viper, fn func(io.Writer) error) error {
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
	if err := fn(w); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
