package main

import (
	"context"
	"database/sql"
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
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/tutor/internal/backend"
	"github.com/pavelanni/tutor/internal/chat"
	"github.com/pavelanni/tutor/internal/console"
	"github.com/pavelanni/tutor/internal/handler"
	appI18n "github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/session"
	"github.com/pavelanni/tutor/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tutor",
		Short: "Interactive language tutor client",
	}

	serve := serveCmd()
	root.AddCommand(serve, playCmd(), transcriptCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `tutor --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// sessionFlags are shared by every command that drives a session.
func sessionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "tutor.db", "SQLite database path")
	f.String("backend-url", "http://localhost:3000/api", "Learning backend base URL")
	f.String("api-token", "", "Bearer token for the learning backend")
	f.Duration("timeout", 2*time.Minute, "Per-request timeout for backend calls (0 = none)")
	f.StringP("lang", "l", "pl", "UI language (pl, en)")
	f.String("language", "en", "Language of the narrated recording")
	f.Duration("typing-tick", 10*time.Millisecond, "Delay between revealed characters")
}

func logFlags(cmd *cobra.Command, level string) {
	f := cmd.Flags()
	f.String("log-level", level, "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API for browser sessions",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /tutor)")
	sessionFlags(cmd)
	logFlags(cmd, "info")
	return cmd
}

func playCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Work on a task in the terminal",
		RunE:  runPlay,
	}
	f := cmd.Flags()
	f.Int64("subject", 0, "Subject id")
	f.Int64("section", 0, "Section id")
	f.Int64("topic", 0, "Topic id")
	f.Int64("task", 0, "Task id (0 = pending or new task of the topic)")
	f.Bool("resume", false, "Continue the last session stored in the database")
	sessionFlags(cmd)
	logFlags(cmd, "warn")
	return cmd
}

func transcriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Inspect chat transcripts",
	}

	parse := &cobra.Command{
		Use:   "parse FILE",
		Short: "Print the blocks of a transcript (FILE may be -)",
		Args:  cobra.ExactArgs(1),
		RunE:  runTranscriptParse,
	}
	parse.Flags().StringP("format", "f", "yaml", "Output format (yaml, json)")

	last := &cobra.Command{
		Use:   "last FILE",
		Short: "Print the last marker of a transcript",
		Args:  cobra.ExactArgs(1),
		RunE:  runTranscriptLast,
	}

	trim := &cobra.Command{
		Use:   "trim FILE",
		Short: "Print a transcript without its last block",
		Args:  cobra.ExactArgs(1),
		RunE:  runTranscriptTrim,
	}

	cmd.AddCommand(parse, last, trim)
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

	v.SetEnvPrefix("TUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("tutor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/tutor")
	v.AddConfigPath("/etc/tutor")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// openSession opens the database, the backend client and the translations
// shared by serve and play.
func openSession(v *viper.Viper) (*store.Store, *backend.Client, session.Options, error) {
	opts := session.Options{
		Language: v.GetString("language"),
		Tick:     v.GetDuration("typing-tick"),
	}
	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return nil, nil, opts, fmt.Errorf("init i18n: %w", err)
	}
	client, err := backend.New(backend.Options{
		BaseURL: v.GetString("backend-url"),
		Token:   v.GetString("api-token"),
		Timeout: v.GetDuration("timeout"),
	})
	if err != nil {
		return nil, nil, opts, fmt.Errorf("create backend client: %w", err)
	}
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, nil, opts, fmt.Errorf("open database: %w", err)
	}
	return db, client, opts, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, client, opts, err := openSession(v)
	if err != nil {
		return err
	}
	defer db.Close()

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	h := handler.New(db, func(sc model.SessionContext) session.API { return client.Tasks(sc) }, opts, basePath)
	defer h.Close()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware())

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	slog.Info("starting server",
		"addr", addr,
		"backend_url", client.BaseURL(),
		"lang", v.GetString("lang"),
		"base_path", basePath,
	)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runPlay(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, client, opts, err := openSession(v)
	if err != nil {
		return err
	}
	defer db.Close()

	rec, err := playSession(db, v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	view := console.NewView(cmd.OutOrStdout(), rec.Lang)
	o := session.New(client.Tasks(rec.Context), view, rec.Context, opts)
	defer o.Close()

	slog.Info("starting session", "session_id", rec.ID, "topic_id", rec.Context.TopicID, "task_id", rec.Context.TaskID)
	err = console.Play(ctx, o, view, cmd.InOrStdin())

	if id := o.Context().TaskID; id != 0 && id != rec.Context.TaskID {
		if err := db.SetSessionTask(rec.ID, id); err != nil {
			slog.Error("record session task", "session_id", rec.ID, "error", err)
		}
	}
	return err
}

// playSession returns the stored session to resume or creates a new one from
// the curriculum flags.
func playSession(db *store.Store, v *viper.Viper) (model.SessionRecord, error) {
	if v.GetBool("resume") {
		rec, err := db.LastSession()
		if errors.Is(err, sql.ErrNoRows) {
			return rec, errors.New("no session to resume")
		}
		if err != nil {
			return rec, fmt.Errorf("load last session: %w", err)
		}
		return rec, nil
	}

	sc := model.SessionContext{
		SubjectID: v.GetInt64("subject"),
		SectionID: v.GetInt64("section"),
		TopicID:   v.GetInt64("topic"),
		TaskID:    v.GetInt64("task"),
	}
	if err := sc.Validate(); err != nil {
		return model.SessionRecord{}, err
	}
	rec, err := db.CreateSession(sc, v.GetString("lang"))
	if err != nil {
		return rec, fmt.Errorf("create session: %w", err)
	}
	return rec, nil
}

func readTranscript(cmd *cobra.Command, path string) (string, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open transcript: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return string(data), nil
}

func runTranscriptParse(cmd *cobra.Command, args []string) error {
	text, err := readTranscript(cmd, args[0])
	if err != nil {
		return err
	}
	blocks := chat.Parse(text)
	if blocks == nil {
		blocks = []chat.Block{}
	}

	w := cmd.OutOrStdout()
	switch format := strings.ToLower(viperForCmd(cmd).GetString("format")); format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(blocks)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(blocks); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want yaml or json)", format)
	}
}

func runTranscriptLast(cmd *cobra.Command, args []string) error {
	text, err := readTranscript(cmd, args[0])
	if err != nil {
		return err
	}
	m, ok := chat.LastMarker(text)
	if !ok {
		return errors.New("no marker in transcript")
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), m)
	return err
}

func runTranscriptTrim(cmd *cobra.Command, args []string) error {
	text, err := readTranscript(cmd, args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), chat.RemoveLastBlock(text))
	return err
}
