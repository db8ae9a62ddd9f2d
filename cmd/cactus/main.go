// Cactus is a conversational agent gateway.
//
// It drives an OpenAI-compatible chat-completions endpoint, lets the
// model request device actions through tools (alarms, phone calls),
// asks the user to confirm each tool batch before anything runs, and
// persists every conversation to SQLite. The gateway exposes a
// websocket for chat UIs plus JSON endpoints for browsing sessions.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	cactus serve                  Start the gateway server
//	cactus chat                   Interactive chat on the terminal
//	cactus sessions               List stored sessions
//	cactus sessions show <id>     Print a session transcript
//	cactus sessions delete <id>   Delete a session
//	cactus version                Print version and build information
//	cactus -o json version        Output version information as JSON
package main

import (
	"bufio"
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

	"github.com/cactuslabs/cactus/internal/buildinfo"
	"github.com/cactuslabs/cactus/internal/chat"
	"github.com/cactuslabs/cactus/internal/config"
	"github.com/cactuslabs/cactus/internal/events"
	"github.com/cactuslabs/cactus/internal/httpkit"
	"github.com/cactuslabs/cactus/internal/llm"
	"github.com/cactuslabs/cactus/internal/store"
	"github.com/cactuslabs/cactus/internal/tools"
	"github.com/cactuslabs/cactus/internal/web"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run] so that the
// full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the cactus command. All OS-level
// dependencies are injected: ctx controls process lifetime, stdout and
// stderr receive output, args is os.Args[1:]. Arguments are parsed by
// hand because the flag package's global state interferes with calling
// run concurrently from tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "chat":
		return runChat(ctx, stdout, configPath)
	case "sessions":
		return runSessions(stdout, configPath, outputFmt, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runServe is the primary operating mode: load config, open the
// session database, start the orchestrator worker and the web gateway,
// and block until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Cactus", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure now that the desired level is known. The initial
	// Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}
	logger.Info("config loaded", "path", cfgPath, "port", cfg.Listen.Port, "model", cfg.API.Model)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := buildDeps(cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	deps.orch.Start(ctx)

	server := web.NewServer(cfg.Listen.Address, cfg.Listen.Port, deps.orch, deps.store, deps.bus, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("shutdown complete", "uptime", buildinfo.Uptime())
	return nil
}

// runChat is an interactive terminal chat against the configured
// endpoint, with the same confirmation flow the gateway uses. Useful
// for smoke tests without a UI.
func runChat(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(io.Discard, slog.LevelInfo)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := buildDeps(cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	sub := deps.bus.Subscribe(64)
	defer deps.bus.Unsubscribe(sub)
	deps.orch.Start(ctx)

	fmt.Fprintln(stdout, buildinfo.String())
	fmt.Fprintln(stdout, "Type a message, or /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" || line == "/exit" {
			return nil
		}
		if line == "" {
			continue
		}

		deps.orch.SendText(line)
		if err := pumpTurn(ctx, stdout, scanner, deps.orch, sub); err != nil {
			return err
		}
	}
}

// pumpTurn prints display events until the turn completes, handling
// confirmation prompts inline on the terminal.
func pumpTurn(ctx context.Context, stdout io.Writer, scanner *bufio.Scanner, orch *chat.Orchestrator, sub <-chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-sub:
			switch ev.Kind {
			case events.KindMessage:
				if ev.Data["role"] == llm.RoleAssistant {
					fmt.Fprintf(stdout, "%s\n", ev.Data["content"])
				}
			case events.KindToolStart:
				fmt.Fprintf(stdout, "[running %s]\n", ev.Data["tool"])
			case events.KindConfirmRequest:
				fmt.Fprintf(stdout, "%s — confirm? [y/N] ", ev.Data["prompt"])
				if !scanner.Scan() {
					orch.Reject()
					continue
				}
				answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
				if answer == "y" || answer == "yes" {
					orch.Confirm()
				} else {
					orch.Reject()
				}
			case events.KindTurnComplete:
				return nil
			}
		}
	}
}

// runSessions lists, shows, or deletes stored sessions.
func runSessions(stdout io.Writer, configPath, outputFmt string, cmdArgs []string) error {
	logger := newLogger(io.Discard, slog.LevelInfo)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	st, db, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(cmdArgs) == 0 {
		return printSessionList(stdout, st, outputFmt)
	}

	switch cmdArgs[0] {
	case "show":
		if len(cmdArgs) < 2 {
			return fmt.Errorf("usage: cactus sessions show <id>")
		}
		return printTranscript(stdout, st, cmdArgs[1], outputFmt)
	case "delete":
		if len(cmdArgs) < 2 {
			return fmt.Errorf("usage: cactus sessions delete <id>")
		}
		if err := st.DeleteSession(cmdArgs[1]); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Deleted session %s\n", cmdArgs[1])
		return nil
	default:
		return fmt.Errorf("unknown sessions subcommand: %s", cmdArgs[0])
	}
}

func printSessionList(stdout io.Writer, st *store.Store, outputFmt string) error {
	sessions, err := st.AllSessions()
	if err != nil {
		return err
	}
	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(stdout, "No sessions.")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(stdout, "%s  %-30s  %3d messages  %s\n",
			s.ID, s.Title, s.MessageCount, s.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func printTranscript(stdout io.Writer, st *store.Store, id, outputFmt string) error {
	sess, err := st.GetSession(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("session %s not found", id)
		}
		return err
	}
	msgs, err := st.MessagesForSession(id)
	if err != nil {
		return err
	}
	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"session": sess, "messages": msgs})
	}
	fmt.Fprintf(stdout, "%s (%d messages)\n\n", sess.Title, sess.MessageCount)
	for _, m := range msgs {
		fmt.Fprintf(stdout, "[%s] %s\n%s\n\n", m.Timestamp.Local().Format("15:04:05"), m.Role, m.Content)
	}
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Cactus - Conversational Agent Gateway")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: cactus [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                  Start the gateway server")
	fmt.Fprintln(w, "  chat                   Interactive chat on the terminal")
	fmt.Fprintln(w, "  sessions               List stored sessions")
	fmt.Fprintln(w, "  sessions show <id>     Print a session transcript")
	fmt.Fprintln(w, "  sessions delete <id>   Delete a session")
	fmt.Fprintln(w, "  version                Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	for _, p := range config.DefaultSearchPaths() {
		fmt.Fprintf(w, "  %s\n", p)
	}
	return nil
}

// deps bundles the wired runtime components shared by serve and chat.
type deps struct {
	db    *sql.DB
	store *store.Store
	bus   *events.Bus
	orch  *chat.Orchestrator
}

func (d *deps) close() {
	if d.db != nil {
		d.db.Close()
	}
}

// buildDeps wires the session store, tool registry, completion client,
// and orchestrator from configuration.
func buildDeps(cfg *config.Config, logger *slog.Logger) (*deps, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, db, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	httpClient := httpkit.NewClient(
		httpkit.WithTimeout(cfg.API.Timeout()),
		httpkit.WithUserAgent(buildinfo.UserAgent()),
	)
	client := llm.NewOpenAIClient(cfg.API.BaseURL, cfg.API.APIKey, cfg.API.Model, logger,
		llm.WithHTTPClient(httpClient),
		llm.WithMaxCompletionTokens(cfg.API.MaxCompletionTokens),
	)

	registry := tools.NewRegistry(tools.LogLauncher{Logger: logger})
	bus := events.New()
	orch := chat.New(logger, client, registry, st, bus)

	return &deps{db: db, store: st, bus: bus, orch: orch}, nil
}

// openStore opens the SQLite session database under the data directory.
func openStore(cfg *config.Config, logger *slog.Logger) (*store.Store, *sql.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}
	dbPath := cfg.DataDir + "/cactus.db"
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, nil, fmt.Errorf("open session database %s: %w", dbPath, err)
	}
	st, err := store.NewStore(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("session database opened", "path", dbPath)
	return st, db, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty, that exact path is used. Otherwise
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}
